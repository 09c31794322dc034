package service

import (
	"context"
	"time"

	"github.com/aliskhannn/competence-bot/internal/docstore"
	"github.com/aliskhannn/competence-bot/internal/domain/entities"
	"github.com/aliskhannn/competence-bot/internal/repository"
)

// SessionRepository persists sessions.
type SessionRepository interface {
	FindByKey(ctx context.Context, userID, competence string, level entities.Level) ([]*entities.Session, []repository.MalformedRecord, error)
	All(ctx context.Context) ([]*entities.Session, []repository.MalformedRecord, error)
	Create(ctx context.Context, s *entities.Session) (string, error)
	SaveAnswers(ctx context.Context, id string, answers []*int, currentIndex int) error
	SaveQuestions(ctx context.Context, id string, questions []entities.Question, answers []*int, currentIndex int) error
	SaveCompletion(ctx context.Context, id string, endTime time.Time, score int, passed bool) error
	SubscribeByUser(
		ctx context.Context,
		userID string,
		fn func(sessions []*entities.Session, malformed []repository.MalformedRecord),
	) (docstore.Unsubscribe, error)
}

type UserRepository interface {
	GetByUserID(ctx context.Context, userID string) (*entities.User, error)
	SaveUser(ctx context.Context, user *entities.User) error
	UpdateChat(ctx context.Context, id string, chatID int64, displayName string) error
	SetCompletedCompetences(ctx context.Context, id string, codes []string) error
}

// CatalogLoader reads the competence catalog from its source.
type CatalogLoader interface {
	Load() (*entities.Catalog, error)
}

// CatalogProvider returns the current catalog.
type CatalogProvider interface {
	Catalog(ctx context.Context) (*entities.Catalog, error)
}

// EventPublisher announces completed attempts to other systems.
type EventPublisher interface {
	PublishSessionCompleted(ctx context.Context, s *entities.Session) error
	PublishCompetencePassed(ctx context.Context, userID, competence string, level entities.Level) error
}

// Clock abstracts time so expiry and timestamps are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
