package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/aliskhannn/competence-bot/internal/docstore"
	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

// SessionsCollection is the collection holding session records.
const SessionsCollection = "testSessions"

// Session document fields.
const (
	fieldUserID               = "userId"
	fieldCompetence           = "competence"
	fieldLevel                = "level"
	fieldQuestions            = "questions"
	fieldAnswers              = "answers"
	fieldCurrentQuestionIndex = "currentQuestionIndex"
	fieldStartTime            = "startTime"
	fieldEndTime              = "endTime"
	fieldScore                = "score"
	fieldPassed               = "passed"
)

var ErrMalformedSession = errors.New("malformed session record")

// MalformedRecord is a stored session that could not be decoded.
type MalformedRecord struct {
	ID  string
	Err error
}

// SessionRepository maps sessions onto the testSessions collection.
type SessionRepository struct {
	store docstore.Store
}

// NewSessionRepository creates a new SessionRepository on top of a store.
func NewSessionRepository(store docstore.Store) *SessionRepository {
	return &SessionRepository{store: store}
}

// FindByKey returns every session of the (user, competence, level) triple.
// Stored level strings are matched through entities.ParseLevel, so legacy
// spellings such as "básico" land in the same group the aggregator uses.
// Records that fail to decode are returned separately.
func (r *SessionRepository) FindByKey(
	ctx context.Context, userID, competence string, level entities.Level,
) ([]*entities.Session, []MalformedRecord, error) {
	if r.store == nil {
		return nil, nil, entities.ErrStoreUnavailable
	}

	docs, err := r.store.Query(ctx, SessionsCollection,
		docstore.Eq(fieldUserID, userID),
		docstore.Eq(fieldCompetence, competence),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("find sessions: %w", err)
	}

	decoded, malformed := DecodeSessions(docs)

	sessions := decoded[:0]
	for _, s := range decoded {
		if s.NormalizedLevel() == level {
			sessions = append(sessions, s)
		}
	}
	return sessions, malformed, nil
}

// All returns every session record. Used by maintenance sweeps.
func (r *SessionRepository) All(ctx context.Context) ([]*entities.Session, []MalformedRecord, error) {
	if r.store == nil {
		return nil, nil, entities.ErrStoreUnavailable
	}

	docs, err := r.store.Query(ctx, SessionsCollection)
	if err != nil {
		return nil, nil, fmt.Errorf("list sessions: %w", err)
	}

	sessions, malformed := DecodeSessions(docs)
	return sessions, malformed, nil
}

// Create inserts a new session and returns its id.
func (r *SessionRepository) Create(ctx context.Context, s *entities.Session) (string, error) {
	if r.store == nil {
		return "", entities.ErrStoreUnavailable
	}

	id, err := r.store.Insert(ctx, SessionsCollection, toDocument(s))
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	return id, nil
}

// SaveAnswers writes the answer slots and the current question index.
func (r *SessionRepository) SaveAnswers(ctx context.Context, id string, answers []*int, currentIndex int) error {
	return r.update(ctx, "save answers", id, docstore.Document{
		fieldAnswers:              encodeAnswers(answers),
		fieldCurrentQuestionIndex: currentIndex,
	})
}

// SaveQuestions replaces the question snapshot together with the resized
// answer slots.
func (r *SessionRepository) SaveQuestions(
	ctx context.Context, id string, questions []entities.Question, answers []*int, currentIndex int,
) error {
	return r.update(ctx, "save questions", id, docstore.Document{
		fieldQuestions:            encodeQuestions(questions),
		fieldAnswers:              encodeAnswers(answers),
		fieldCurrentQuestionIndex: currentIndex,
	})
}

// SaveCompletion writes end time, score and passed.
func (r *SessionRepository) SaveCompletion(ctx context.Context, id string, endTime time.Time, score int, passed bool) error {
	return r.update(ctx, "save completion", id, docstore.Document{
		fieldEndTime: endTime.UTC(),
		fieldScore:   score,
		fieldPassed:  passed,
	})
}

// SubscribeByUser delivers every session of the user on each change.
func (r *SessionRepository) SubscribeByUser(
	ctx context.Context,
	userID string,
	fn func(sessions []*entities.Session, malformed []MalformedRecord),
) (docstore.Unsubscribe, error) {
	if r.store == nil {
		return nil, entities.ErrStoreUnavailable
	}

	unsubscribe, err := r.store.Subscribe(ctx, SessionsCollection,
		[]docstore.Filter{docstore.Eq(fieldUserID, userID)},
		func(docs []docstore.Document) {
			fn(DecodeSessions(docs))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("subscribe sessions: %w", err)
	}

	return unsubscribe, nil
}

func (r *SessionRepository) update(ctx context.Context, op, id string, patch docstore.Document) error {
	if id == "" {
		return fmt.Errorf("%s: %w", op, entities.ErrNotPersisted)
	}
	if r.store == nil {
		return entities.ErrStoreUnavailable
	}

	err := r.store.Update(ctx, SessionsCollection, id, patch)
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s: %w: %w", op, entities.ErrNotPersisted, err)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// sessionRecord is the stored shape of a session.
type sessionRecord struct {
	ID                   string              `mapstructure:"id"`
	UserID               string              `mapstructure:"userId"`
	Competence           string              `mapstructure:"competence"`
	Level                string              `mapstructure:"level"`
	Questions            []entities.Question `mapstructure:"questions"`
	Answers              []*int              `mapstructure:"answers"`
	CurrentQuestionIndex int                 `mapstructure:"currentQuestionIndex"`
	StartTime            time.Time           `mapstructure:"startTime"`
	EndTime              *time.Time          `mapstructure:"endTime"`
	Score                int                 `mapstructure:"score"`
	Passed               bool                `mapstructure:"passed"`
}

// DecodeSessions decodes documents, isolating the ones that fail.
func DecodeSessions(docs []docstore.Document) ([]*entities.Session, []MalformedRecord) {
	sessions := make([]*entities.Session, 0, len(docs))
	var malformed []MalformedRecord

	for _, doc := range docs {
		s, err := decodeSession(doc)
		if err != nil {
			malformed = append(malformed, MalformedRecord{ID: doc.ID(), Err: err})
			continue
		}
		sessions = append(sessions, s)
	}

	return sessions, malformed
}

func decodeSession(doc docstore.Document) (*entities.Session, error) {
	var rec sessionRecord
	if err := decode(doc, &rec); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSession, err)
	}

	switch {
	case rec.ID == "":
		return nil, fmt.Errorf("%w: missing id", ErrMalformedSession)
	case rec.UserID == "" || rec.Competence == "":
		return nil, fmt.Errorf("%w: missing key fields", ErrMalformedSession)
	case len(rec.Questions) == 0:
		return nil, fmt.Errorf("%w: no questions", ErrMalformedSession)
	}

	// Older records may carry fewer slots than questions; pad them so the
	// length invariant holds for everything downstream.
	answers := make([]*int, len(rec.Questions))
	copy(answers, rec.Answers)

	var endTime *time.Time
	if rec.EndTime != nil && !rec.EndTime.IsZero() {
		end := *rec.EndTime
		endTime = &end
	}

	return &entities.Session{
		ID:                   rec.ID,
		UserID:               rec.UserID,
		Competence:           rec.Competence,
		Level:                rec.Level,
		Questions:            rec.Questions,
		Answers:              answers,
		CurrentQuestionIndex: rec.CurrentQuestionIndex,
		StartTime:            rec.StartTime,
		EndTime:              endTime,
		Score:                rec.Score,
		Passed:               rec.Passed,
	}, nil
}

func toDocument(s *entities.Session) docstore.Document {
	doc := docstore.Document{
		fieldUserID:               s.UserID,
		fieldCompetence:           s.Competence,
		fieldLevel:                s.Level,
		fieldQuestions:            encodeQuestions(s.Questions),
		fieldAnswers:              encodeAnswers(s.Answers),
		fieldCurrentQuestionIndex: s.CurrentQuestionIndex,
		fieldStartTime:            s.StartTime.UTC(),
		fieldEndTime:              nil,
		fieldScore:                s.Score,
		fieldPassed:               s.Passed,
	}
	if s.EndTime != nil {
		doc[fieldEndTime] = s.EndTime.UTC()
	}
	return doc
}

func encodeQuestions(questions []entities.Question) []any {
	out := make([]any, len(questions))
	for i, q := range questions {
		options := make([]any, len(q.Options))
		for j, o := range q.Options {
			options[j] = o
		}
		out[i] = map[string]any{
			"id":           q.ID,
			"text":         q.Text,
			"options":      options,
			"correctIndex": q.CorrectIndex,
		}
	}
	return out
}

func encodeAnswers(answers []*int) []any {
	out := make([]any, len(answers))
	for i, a := range answers {
		if a != nil {
			out[i] = *a
		}
	}
	return out
}

// decode converts a document into a tagged struct. Times may arrive as
// time.Time (memory, mongo) or RFC 3339 strings (postgres jsonb), numbers as
// any numeric type.
func decode(doc docstore.Document, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]any(doc))
}
