package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
	"github.com/aliskhannn/competence-bot/internal/repository"
)

type UserService struct {
	repository UserRepository
	clock      Clock
}

func NewUserService(repository UserRepository, clock Clock) *UserService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &UserService{repository: repository, clock: clock}
}

// EnsureUser returns the profile of userID, creating it on first contact.
// The chat and display name are refreshed when they changed.
func (s *UserService) EnsureUser(ctx context.Context, userID string, chatID int64, displayName string) (*entities.User, error) {
	user, err := s.repository.GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		user = entities.NewUser(userID, chatID, displayName, s.clock.Now())
		if err = s.repository.SaveUser(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	}
	if err != nil {
		return nil, err
	}

	if user.ChatID != chatID || user.DisplayName != displayName {
		if err = s.repository.UpdateChat(ctx, user.ID, chatID, displayName); err != nil {
			return nil, err
		}
		user.ChatID = chatID
		user.DisplayName = displayName
	}

	return user, nil
}

func (s *UserService) Get(ctx context.Context, userID string) (*entities.User, error) {
	return s.repository.GetByUserID(ctx, userID)
}

// MarkCompetenceCompleted adds competence to the user's completed list.
// Marking an already listed competence is a no-op.
func (s *UserService) MarkCompetenceCompleted(ctx context.Context, userID, competence string) error {
	user, err := s.repository.GetByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("mark competence completed: %w", err)
	}
	if user.HasCompleted(competence) {
		return nil
	}

	codes := append(slices.Clone(user.CompletedCompetences), competence)
	slices.Sort(codes)

	if err = s.repository.SetCompletedCompetences(ctx, user.ID, codes); err != nil {
		return fmt.Errorf("mark competence completed: %w", err)
	}
	return nil
}
