package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

var (
	ErrUnknownCompetence = errors.New("unknown competence")
	ErrCompetenceLocked  = errors.New("competence locked")
)

// StartResult is the attempt a user lands on when opening a quiz.
type StartResult struct {
	Session          *entities.Session
	Competence       *entities.Competence
	AlreadyCompleted bool
}

// AnswerResult describes what happened to an answer.
type AnswerResult struct {
	Session    *entities.Session
	Competence *entities.Competence
	Correct    bool
	Duplicate  bool // the question had been answered already
	Finished   bool // this answer completed the attempt
}

// QuizFlow ties sessions, progress and profiles into the steps the bot
// exposes: start a quiz, answer a question, suggest what comes next.
type QuizFlow struct {
	sessions *SessionService
	progress *ProgressAggregator
	catalog  CatalogProvider
	users    *UserService
	events   EventPublisher
	logger   *zap.Logger
}

func NewQuizFlow(
	sessions *SessionService,
	progress *ProgressAggregator,
	catalog CatalogProvider,
	users *UserService,
	events EventPublisher,
	logger *zap.Logger,
) *QuizFlow {
	return &QuizFlow{
		sessions: sessions,
		progress: progress,
		catalog:  catalog,
		users:    users,
		events:   events,
		logger:   logger,
	}
}

// Start opens the quiz of a competence at level. Competences are unlocked
// in code order inside their dimension.
func (f *QuizFlow) Start(ctx context.Context, userID, competence string, level entities.Level) (*StartResult, error) {
	catalog, err := f.catalog.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	comp, ok := catalog.Competence(competence)
	if !ok {
		return nil, fmt.Errorf("start quiz %s: %w", competence, ErrUnknownCompetence)
	}

	snap, err := f.progress.Snapshot(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("start quiz: %w", err)
	}
	if !NewProgression(catalog, snap.Progress).IsPreviousCompetenceCompleted(competence, level) {
		return nil, fmt.Errorf("start quiz %s: %w", competence, ErrCompetenceLocked)
	}

	session, err := f.openSession(ctx, userID, comp, level)
	if err != nil {
		return nil, fmt.Errorf("start quiz: %w", err)
	}

	return &StartResult{
		Session:          session,
		Competence:       comp,
		AlreadyCompleted: session.IsCompleted(),
	}, nil
}

// Answer records the chosen option. Once every question is answered the
// attempt is graded; a pass is added to the user's profile.
func (f *QuizFlow) Answer(
	ctx context.Context,
	userID, competence string,
	level entities.Level,
	questionIndex, answerIndex int,
) (*AnswerResult, error) {
	catalog, err := f.catalog.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	comp, ok := catalog.Competence(competence)
	if !ok {
		return nil, fmt.Errorf("answer %s: %w", competence, ErrUnknownCompetence)
	}

	session, err := f.openSession(ctx, userID, comp, level)
	if err != nil {
		return nil, fmt.Errorf("answer: %w", err)
	}
	if session.IsCompleted() {
		return nil, fmt.Errorf("answer: %w", entities.ErrSessionCompleted)
	}
	if questionIndex < 0 || questionIndex >= len(session.Answers) {
		return nil, fmt.Errorf("answer: question %d: %w", questionIndex, entities.ErrOutOfRange)
	}

	// Telegram redelivers taps on slow networks; keep the first answer.
	if prev := session.Answers[questionIndex]; prev != nil {
		return &AnswerResult{
			Session:    session,
			Competence: comp,
			Correct:    session.Questions[questionIndex].IsCorrect(*prev),
			Duplicate:  true,
		}, nil
	}

	session, err = f.sessions.RecordAnswer(ctx, session, questionIndex, answerIndex)
	if err != nil {
		return nil, err
	}

	result := &AnswerResult{
		Session:    session,
		Competence: comp,
		Correct:    session.Questions[questionIndex].IsCorrect(answerIndex),
	}
	if !session.AllAnswered() {
		return result, nil
	}

	session, err = f.sessions.CompleteSession(ctx, session, f.sessions.CorrectCount(session))
	if err != nil {
		return nil, err
	}
	result.Session = session
	result.Finished = true

	f.afterCompletion(ctx, session, level)

	return result, nil
}

// Next returns the suggested competence per dimension and the progress it
// was derived from.
func (f *QuizFlow) Next(ctx context.Context, userID string) ([]Suggestion, entities.ProgressSnapshot, error) {
	catalog, err := f.catalog.Catalog(ctx)
	if err != nil {
		return nil, entities.ProgressSnapshot{}, err
	}

	snap, err := f.progress.Snapshot(ctx, userID)
	if err != nil {
		return nil, entities.ProgressSnapshot{}, fmt.Errorf("next: %w", err)
	}

	return NewProgression(catalog, snap.Progress).Suggestions(), snap, nil
}

// Progress returns the user's current progress and the catalog it covers.
func (f *QuizFlow) Progress(ctx context.Context, userID string) (*entities.Catalog, entities.ProgressSnapshot, error) {
	catalog, err := f.catalog.Catalog(ctx)
	if err != nil {
		return nil, entities.ProgressSnapshot{}, err
	}

	snap, err := f.progress.Snapshot(ctx, userID)
	if err != nil {
		return nil, entities.ProgressSnapshot{}, fmt.Errorf("progress: %w", err)
	}

	return catalog, snap, nil
}

func (f *QuizFlow) openSession(
	ctx context.Context,
	userID string,
	comp *entities.Competence,
	level entities.Level,
) (*entities.Session, error) {
	questions := comp.QuestionsFor(level)
	if len(questions) < entities.QuestionsPerSession {
		return nil, fmt.Errorf("competence %s at %s has %d questions: %w",
			comp.Code, level, len(questions), entities.ErrInsufficientData)
	}

	return f.sessions.GetOrCreateSession(ctx, userID, comp.Code, level, questions[:entities.QuestionsPerSession])
}

// afterCompletion runs the side effects of a graded attempt. They are
// logged on failure; the attempt itself is already stored.
func (f *QuizFlow) afterCompletion(ctx context.Context, session *entities.Session, level entities.Level) {
	if err := f.events.PublishSessionCompleted(ctx, session); err != nil {
		f.logger.Warn("failed to publish session completed",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}

	if !session.Passed {
		return
	}

	if err := f.users.MarkCompetenceCompleted(ctx, session.UserID, session.Competence); err != nil {
		f.logger.Error("failed to mark competence completed",
			zap.String("user_id", session.UserID),
			zap.String("competence", session.Competence),
			zap.Error(err),
		)
	}

	if err := f.events.PublishCompetencePassed(ctx, session.UserID, session.Competence, level); err != nil {
		f.logger.Warn("failed to publish competence passed",
			zap.String("user_id", session.UserID),
			zap.Error(err),
		)
	}
}
