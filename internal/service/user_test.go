package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/competence-bot/internal/infra/memory"
	"github.com/aliskhannn/competence-bot/internal/repository"
)

func TestUserService_EnsureUser(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(repository.NewUserRepository(memory.NewStore()), newFakeClock())

	u, err := svc.EnsureUser(ctx, "tg:1", 1, "Ana")
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)

	again, err := svc.EnsureUser(ctx, "tg:1", 2, "Ana")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, int64(2), again.ChatID)

	stored, err := svc.Get(ctx, "tg:1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.ChatID)
}

func TestUserService_MarkCompetenceCompleted(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(repository.NewUserRepository(memory.NewStore()), newFakeClock())

	_, err := svc.EnsureUser(ctx, "tg:1", 1, "Ana")
	require.NoError(t, err)

	require.NoError(t, svc.MarkCompetenceCompleted(ctx, "tg:1", "1.2"))
	require.NoError(t, svc.MarkCompetenceCompleted(ctx, "tg:1", "1.1"))
	require.NoError(t, svc.MarkCompetenceCompleted(ctx, "tg:1", "1.2"))

	u, err := svc.Get(ctx, "tg:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1.1", "1.2"}, u.CompletedCompetences)

	err = svc.MarkCompetenceCompleted(ctx, "tg:404", "1.1")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}
