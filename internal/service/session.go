package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

// SessionService creates, resumes and finishes quiz attempts. Sessions it
// returns are private copies; callers pass them back in to mutate them and
// must not write them to the store directly.
type SessionService struct {
	repo      SessionRepository
	coalescer *Coalescer[*entities.Session]
	clock     Clock
	logger    *zap.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	repo SessionRepository,
	coalescer *Coalescer[*entities.Session],
	clock Clock,
	logger *zap.Logger,
) *SessionService {
	if clock == nil {
		clock = SystemClock{}
	}
	if coalescer == nil {
		coalescer = NewCoalescer[*entities.Session](DefaultGracePeriod, clock)
	}
	return &SessionService{
		repo:      repo,
		coalescer: coalescer,
		clock:     clock,
		logger:    logger,
	}
}

func sessionKey(userID, competence string, level entities.Level) string {
	return userID + "|" + competence + "|" + level.Code()
}

// GetOrCreateSession returns the attempt of the user at competence and
// level, creating it when none exists. A completed attempt is returned as
// is. An unfinished one gets its questions replaced by the given set,
// keeping answers whose index is still in range.
//
// Concurrent calls for the same triple share a single lookup, so at most
// one of them inserts.
func (s *SessionService) GetOrCreateSession(
	ctx context.Context,
	userID, competence string,
	level entities.Level,
	questions []entities.Question,
) (*entities.Session, error) {
	if len(questions) == 0 {
		return nil, fmt.Errorf("get or create session: no questions: %w", entities.ErrInsufficientData)
	}
	if !level.Valid() {
		return nil, fmt.Errorf("get or create session: level %q: %w", level, entities.ErrOutOfRange)
	}

	key := sessionKey(userID, competence, level)
	session, err := s.coalescer.Do(ctx, key, func(ctx context.Context) (*entities.Session, error) {
		return s.findOrCreate(ctx, userID, competence, level, questions)
	})
	if err != nil {
		return nil, err
	}

	return session.Clone(), nil
}

func (s *SessionService) findOrCreate(
	ctx context.Context,
	userID, competence string,
	level entities.Level,
	questions []entities.Question,
) (*entities.Session, error) {
	existing, malformed, err := s.repo.FindByKey(ctx, userID, competence, level)
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	for _, m := range malformed {
		s.logger.Warn("skipping malformed session",
			zap.String("session_id", m.ID),
			zap.String("user_id", userID),
			zap.Error(m.Err),
		)
	}

	if len(existing) == 0 {
		return s.create(ctx, userID, competence, level, questions)
	}

	result, err := Consolidate(existing)
	if err != nil {
		return nil, err
	}
	if len(result.Duplicates) > 0 {
		s.logger.Info("duplicate sessions found",
			zap.String("user_id", userID),
			zap.String("competence", competence),
			zap.String("level", level.String()),
			zap.String("canonical_id", result.Canonical.ID),
			zap.Int("duplicates", len(result.Duplicates)),
		)
	}

	session := result.Canonical
	if session.IsCompleted() {
		return session, nil
	}

	if entities.QuestionsEqual(session.Questions, questions) {
		return session, nil
	}

	session.ReplaceQuestions(questions)
	err = s.repo.SaveQuestions(ctx, session.ID, session.Questions, session.Answers, session.CurrentQuestionIndex)
	if err != nil {
		return nil, fmt.Errorf("refresh questions: %w", err)
	}

	return session, nil
}

func (s *SessionService) create(
	ctx context.Context,
	userID, competence string,
	level entities.Level,
	questions []entities.Question,
) (*entities.Session, error) {
	session := entities.NewSession(userID, competence, level, questions, s.clock.Now())

	id, err := s.repo.Create(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	session.ID = id

	s.logger.Info("session created",
		zap.String("session_id", id),
		zap.String("user_id", userID),
		zap.String("competence", competence),
		zap.String("level", level.String()),
	)

	return session, nil
}

// RecordAnswer stores the option chosen for a question and moves the
// current index to the next unanswered question.
func (s *SessionService) RecordAnswer(
	ctx context.Context,
	session *entities.Session,
	questionIndex, answerIndex int,
) (*entities.Session, error) {
	if session == nil || !session.IsPersisted() {
		return nil, fmt.Errorf("record answer: %w", entities.ErrNotPersisted)
	}
	if session.IsCompleted() {
		return nil, fmt.Errorf("record answer: %w", entities.ErrSessionCompleted)
	}
	if questionIndex < 0 || questionIndex >= len(session.Answers) {
		return nil, fmt.Errorf("record answer: question %d of %d: %w",
			questionIndex, len(session.Answers), entities.ErrOutOfRange)
	}
	if opts := len(session.Questions[questionIndex].Options); opts > 0 && (answerIndex < 0 || answerIndex >= opts) {
		return nil, fmt.Errorf("record answer: option %d of %d: %w", answerIndex, opts, entities.ErrOutOfRange)
	}

	updated := session.Clone()
	answer := answerIndex
	updated.Answers[questionIndex] = &answer
	updated.CurrentQuestionIndex = updated.NextUnansweredIndex(questionIndex + 1)

	if err := s.repo.SaveAnswers(ctx, updated.ID, updated.Answers, updated.CurrentQuestionIndex); err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}
	s.forget(updated)

	return updated, nil
}

// CompleteSession grades the attempt and records its end. It must be called
// once per attempt; a copy that is already completed is rejected.
func (s *SessionService) CompleteSession(
	ctx context.Context,
	session *entities.Session,
	correctCount int,
) (*entities.Session, error) {
	if session == nil || !session.IsPersisted() {
		return nil, fmt.Errorf("complete session: %w", entities.ErrNotPersisted)
	}
	if session.IsCompleted() {
		return nil, fmt.Errorf("complete session: %w", entities.ErrSessionCompleted)
	}

	total := session.TotalQuestions()
	if correctCount < 0 || correctCount > total {
		return nil, fmt.Errorf("complete session: %d correct of %d: %w", correctCount, total, entities.ErrOutOfRange)
	}

	updated := session.Clone()
	end := s.clock.Now()
	updated.EndTime = &end
	updated.Score = entities.ScoreFor(correctCount, total)
	updated.Passed = entities.IsPassing(correctCount)

	if err := s.repo.SaveCompletion(ctx, updated.ID, end, updated.Score, updated.Passed); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	s.forget(updated)

	s.logger.Info("session completed",
		zap.String("session_id", updated.ID),
		zap.String("user_id", updated.UserID),
		zap.String("competence", updated.Competence),
		zap.Int("score", updated.Score),
		zap.Bool("passed", updated.Passed),
	)

	return updated, nil
}

// CorrectCount returns how many recorded answers are right.
func (s *SessionService) CorrectCount(session *entities.Session) int {
	return session.CorrectCount()
}

// forget drops the shared lookup result so the next lookup sees the write.
func (s *SessionService) forget(session *entities.Session) {
	s.coalescer.Forget(sessionKey(session.UserID, session.Competence, session.NormalizedLevel()))
}
