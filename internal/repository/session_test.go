package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/competence-bot/internal/docstore"
	"github.com/aliskhannn/competence-bot/internal/domain/entities"
	"github.com/aliskhannn/competence-bot/internal/infra/memory"
)

func questions(ids ...string) []entities.Question {
	qs := make([]entities.Question, len(ids))
	for i, id := range ids {
		qs[i] = entities.Question{ID: id, Text: "q " + id, Options: []string{"x", "y", "z"}, CorrectIndex: 1}
	}
	return qs
}

func TestSessionRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(memory.NewStore())
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	s := entities.NewSession("u1", "1.1", entities.LevelBasic, questions("a", "b", "c"), start)
	id, err := repo.Create(ctx, s)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, malformed, err := repo.FindByKey(ctx, "u1", "1.1", entities.LevelBasic)
	require.NoError(t, err)
	assert.Empty(t, malformed)
	require.Len(t, got, 1)

	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, "u1", got[0].UserID)
	assert.Equal(t, entities.LevelBasic, got[0].NormalizedLevel())
	assert.Equal(t, start, got[0].StartTime)
	assert.Nil(t, got[0].EndTime)
	assert.Len(t, got[0].Answers, 3)
	assert.Equal(t, "b", got[0].Questions[1].ID)
	assert.Equal(t, 1, got[0].Questions[1].CorrectIndex)

	other, _, err := repo.FindByKey(ctx, "u1", "1.1", entities.LevelIntermediate)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestSessionRepository_SaveAnswersAndCompletion(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(memory.NewStore())

	s := entities.NewSession("u1", "1.1", entities.LevelBasic, questions("a", "b", "c"), time.Now())
	id, err := repo.Create(ctx, s)
	require.NoError(t, err)

	one, two := 1, 2
	require.NoError(t, repo.SaveAnswers(ctx, id, []*int{&one, nil, &two}, 1))

	end := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveCompletion(ctx, id, end, 67, true))

	got, _, err := repo.FindByKey(ctx, "u1", "1.1", entities.LevelBasic)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, 2, got[0].AnsweredCount())
	assert.Equal(t, 1, *got[0].Answers[0])
	assert.Nil(t, got[0].Answers[1])
	assert.Equal(t, 1, got[0].CurrentQuestionIndex)
	require.NotNil(t, got[0].EndTime)
	assert.Equal(t, end, *got[0].EndTime)
	assert.Equal(t, 67, got[0].Score)
	assert.True(t, got[0].Passed)
	assert.Equal(t, entities.StateCompleted, got[0].State())
}

func TestSessionRepository_UpdateRequiresID(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(memory.NewStore())

	err := repo.SaveAnswers(ctx, "", nil, 0)
	assert.ErrorIs(t, err, entities.ErrNotPersisted)

	err = repo.SaveAnswers(ctx, "missing", []*int{nil}, 0)
	assert.ErrorIs(t, err, entities.ErrNotPersisted)
}

func TestSessionRepository_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := NewSessionRepository(store)

	store.SetFailure(errors.New("connection reset"))

	_, _, err := repo.FindByKey(ctx, "u1", "1.1", entities.LevelBasic)
	assert.ErrorIs(t, err, entities.ErrStoreUnavailable)

	_, err = repo.Create(ctx, entities.NewSession("u1", "1.1", entities.LevelBasic, questions("a"), time.Now()))
	assert.ErrorIs(t, err, entities.ErrStoreUnavailable)
}

func TestSessionRepository_MalformedRecordsAreIsolated(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := NewSessionRepository(store)

	_, err := repo.Create(ctx, entities.NewSession("u1", "1.1", entities.LevelBasic, questions("a", "b", "c"), time.Now()))
	require.NoError(t, err)

	badID, err := store.Insert(ctx, SessionsCollection, docstore.Document{
		"userId":     "u1",
		"competence": "1.1",
		"level":      "Básico",
		"startTime":  "yesterday",
		"questions":  []any{map[string]any{"id": "a"}},
	})
	require.NoError(t, err)

	got, malformed, err := repo.FindByKey(ctx, "u1", "1.1", entities.LevelBasic)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	require.Len(t, malformed, 1)
	assert.Equal(t, badID, malformed[0].ID)
	assert.ErrorIs(t, malformed[0].Err, ErrMalformedSession)
}

func TestSessionRepository_FindByKeyNormalizesLevel(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	repo := NewSessionRepository(store)

	for _, level := range []string{"básico", "BÁSICO", "Intermedio"} {
		_, err := store.Insert(ctx, SessionsCollection, docstore.Document{
			"userId":     "u1",
			"competence": "1.1",
			"level":      level,
			"questions":  []any{map[string]any{"id": "a"}},
			"startTime":  time.Now().UTC().Format(time.RFC3339Nano),
		})
		require.NoError(t, err)
	}

	basic, malformed, err := repo.FindByKey(ctx, "u1", "1.1", entities.LevelBasic)
	require.NoError(t, err)
	assert.Empty(t, malformed)
	assert.Len(t, basic, 2)

	intermediate, _, err := repo.FindByKey(ctx, "u1", "1.1", entities.LevelIntermediate)
	require.NoError(t, err)
	assert.Len(t, intermediate, 1)
}

func TestDecodeSessions_JSONShapes(t *testing.T) {
	// Shape produced by a jsonb round trip: strings for times, float64 for
	// numbers, fewer answer slots than questions.
	docs := []docstore.Document{{
		"id":                   "s1",
		"userId":               "u1",
		"competence":           "2.1",
		"level":                "intermedio",
		"questions":            []any{map[string]any{"id": "a", "correctIndex": float64(0), "options": []any{"x"}}, map[string]any{"id": "b"}},
		"answers":              []any{float64(0)},
		"currentQuestionIndex": float64(1),
		"startTime":            "2024-03-01T10:00:00.5Z",
		"endTime":              nil,
		"score":                float64(0),
		"passed":               false,
	}}

	sessions, malformed := DecodeSessions(docs)
	require.Empty(t, malformed)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, entities.LevelIntermediate, s.NormalizedLevel())
	assert.Len(t, s.Answers, 2)
	require.NotNil(t, s.Answers[0])
	assert.Equal(t, 0, *s.Answers[0])
	assert.Nil(t, s.Answers[1])
	assert.Equal(t, 1, s.CurrentQuestionIndex)
	assert.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 500_000_000, time.UTC), s.StartTime)
	assert.Nil(t, s.EndTime)
	assert.Equal(t, entities.StateInProgress, s.State())
}

func TestSessionRepository_SubscribeByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(memory.NewStore())

	counts := make(chan int, 16)
	unsubscribe, err := repo.SubscribeByUser(ctx, "u1", func(sessions []*entities.Session, _ []MalformedRecord) {
		counts <- len(sessions)
	})
	require.NoError(t, err)
	defer unsubscribe()

	assert.Equal(t, 0, <-counts)

	_, err = repo.Create(ctx, entities.NewSession("u2", "1.1", entities.LevelBasic, questions("a"), time.Now()))
	require.NoError(t, err)
	_, err = repo.Create(ctx, entities.NewSession("u1", "1.1", entities.LevelBasic, questions("a"), time.Now()))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		for {
			select {
			case n := <-counts:
				if n == 1 {
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)
}
