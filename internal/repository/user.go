package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aliskhannn/competence-bot/internal/docstore"
	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

// UsersCollection is the collection holding user profiles.
const UsersCollection = "users"

var ErrUserNotFound = errors.New("user not found")

// UserRepository provides access to user profiles in the document store.
type UserRepository struct {
	store docstore.Store
}

// NewUserRepository creates a new UserRepository with the provided store.
func NewUserRepository(store docstore.Store) *UserRepository {
	return &UserRepository{store: store}
}

type userRecord struct {
	ID                   string    `mapstructure:"id"`
	UserID               string    `mapstructure:"userId"`
	ChatID               int64     `mapstructure:"chatId"`
	DisplayName          string    `mapstructure:"displayName"`
	CompletedCompetences []string  `mapstructure:"completedCompetences"`
	CreatedAt            time.Time `mapstructure:"createdAt"`
}

// GetByUserID returns the profile of an identity. If several records exist
// the oldest one wins.
func (r *UserRepository) GetByUserID(ctx context.Context, userID string) (*entities.User, error) {
	docs, err := r.store.Query(ctx, UsersCollection, docstore.Eq(fieldUserID, userID))
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrUserNotFound
	}

	var rec userRecord
	if err = decode(docs[0], &rec); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", docs[0].ID(), err)
	}

	return &entities.User{
		ID:                   rec.ID,
		UserID:               rec.UserID,
		ChatID:               rec.ChatID,
		DisplayName:          rec.DisplayName,
		CompletedCompetences: rec.CompletedCompetences,
		CreatedAt:            rec.CreatedAt,
	}, nil
}

// SaveUser inserts a new profile and sets its ID.
func (r *UserRepository) SaveUser(ctx context.Context, user *entities.User) error {
	id, err := r.store.Insert(ctx, UsersCollection, docstore.Document{
		fieldUserID:            user.UserID,
		"chatId":               user.ChatID,
		"displayName":          user.DisplayName,
		"completedCompetences": stringsToAny(user.CompletedCompetences),
		"createdAt":            user.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	user.ID = id
	return nil
}

// UpdateChat records the chat a user talks from.
func (r *UserRepository) UpdateChat(ctx context.Context, id string, chatID int64, displayName string) error {
	err := r.store.Update(ctx, UsersCollection, id, docstore.Document{
		"chatId":      chatID,
		"displayName": displayName,
	})
	if err != nil {
		return fmt.Errorf("update chat: %w", err)
	}
	return nil
}

// SetCompletedCompetences overwrites the completed competence list.
func (r *UserRepository) SetCompletedCompetences(ctx context.Context, id string, codes []string) error {
	err := r.store.Update(ctx, UsersCollection, id, docstore.Document{
		"completedCompetences": stringsToAny(codes),
	})
	if err != nil {
		return fmt.Errorf("set completed competences: %w", err)
	}
	return nil
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
