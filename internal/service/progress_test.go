package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aliskhannn/competence-bot/internal/docstore"
	"github.com/aliskhannn/competence-bot/internal/domain/entities"
	"github.com/aliskhannn/competence-bot/internal/infra/memory"
	"github.com/aliskhannn/competence-bot/internal/repository"
)

func TestBuildProgress_InitializesEveryCell(t *testing.T) {
	catalog := testCatalog()

	snap, excluded := BuildProgress(catalog, nil)
	assert.Empty(t, excluded)

	for _, c := range catalog.Competences() {
		for _, level := range entities.Levels {
			assert.Equal(t, entities.EmptyStatus(), snap.Progress.Status(c.Code, level))
		}
	}
	assert.Equal(t, 3, entities.EmptyStatus().Total)
	assert.Equal(t, entities.AreaLevelStats{CompletedCount: 0, TotalCount: 3}, snap.Areas["1"][entities.LevelBasic])
	assert.Equal(t, entities.AreaLevelStats{CompletedCount: 0, TotalCount: 1}, snap.Areas["2"][entities.LevelAdvanced])
}

func TestBuildProgress_GroupsAndConsolidates(t *testing.T) {
	catalog := testCatalog()

	done := newTestSession("done", completedAt(t0.Add(time.Hour), 100, true), answered(intp(1), intp(1), intp(1)))
	done.Level = "BÁSICO"
	stray := newTestSession("stray", answered(intp(1), nil, nil), startedAt(t0.Add(2*time.Hour)))
	stray.Level = "Básico 1"

	inter := newTestSession("inter", answered(intp(1), intp(2), nil))
	inter.Level = "intermedio"
	inter.Competence = "1.2"

	unknownLevel := newTestSession("weird")
	unknownLevel.Level = "experto"
	unknownComp := newTestSession("ghost")
	unknownComp.Competence = "9.9"

	snap, excluded := BuildProgress(catalog, []*entities.Session{stray, inter, unknownLevel, done, unknownComp})

	st := snap.Progress.Status("1.1", entities.LevelBasic)
	assert.True(t, st.Completed)
	assert.Equal(t, 100, st.ProgressPct)

	st = snap.Progress.Status("1.2", entities.LevelIntermediate)
	assert.True(t, st.InProgress)
	assert.Equal(t, 2, st.Answered)
	assert.Equal(t, 67, st.ProgressPct)

	assert.False(t, snap.Progress.IsCompleted("1.2", entities.LevelBasic))

	assert.Equal(t, 5, snap.Sessions)
	assert.Equal(t, 2, snap.Excluded)
	require.Len(t, excluded, 2)
	assert.ElementsMatch(t, []ExcludedRecord{
		{SessionID: "weird", Reason: ExcludedUnknownLevel, Detail: "experto"},
		{SessionID: "ghost", Reason: ExcludedUnknownCompetence, Detail: "9.9"},
	}, excluded)

	assert.Equal(t, entities.AreaLevelStats{CompletedCount: 1, TotalCount: 3}, snap.Areas["1"][entities.LevelBasic])
	assert.Equal(t, entities.AreaLevelStats{CompletedCount: 0, TotalCount: 3}, snap.Areas["1"][entities.LevelIntermediate])
}

func TestBuildProgress_ProgressNeverExceedsAnswered(t *testing.T) {
	catalog := testCatalog()

	for n := 0; n <= 3; n++ {
		answers := make([]*int, 3)
		for i := 0; i < n; i++ {
			answers[i] = intp(0)
		}
		s := newTestSession("s", answered(answers...))

		snap, _ := BuildProgress(catalog, []*entities.Session{s})
		st := snap.Progress.Status("1.1", entities.LevelBasic)

		assert.LessOrEqual(t, st.ProgressPct, entities.ScoreFor(n, 3))
		assert.Less(t, st.ProgressPct, 100)
	}
}

type progressFixture struct {
	store *memory.Store
	repo  *repository.SessionRepository
	agg   *ProgressAggregator
}

func newProgressFixture() *progressFixture {
	store := memory.NewStore()
	repo := repository.NewSessionRepository(store)
	return &progressFixture{
		store: store,
		repo:  repo,
		agg:   NewProgressAggregator(repo, staticCatalog{testCatalog()}, newFakeClock(), zap.NewNop()),
	}
}

func waitFor(t *testing.T, w *ProgressWatch, cond func(entities.ProgressSnapshot) bool) entities.ProgressSnapshot {
	t.Helper()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap := <-w.Updates():
			if cond(snap) {
				return snap
			}
		case <-timeout:
			t.Fatal("timed out waiting for progress snapshot")
			return entities.ProgressSnapshot{}
		}
	}
}

func TestProgressAggregator_WatchRebuildsOnChange(t *testing.T) {
	f := newProgressFixture()
	ctx := context.Background()

	w, err := f.agg.Watch(ctx, "u1")
	require.NoError(t, err)
	defer w.Close()

	first := waitFor(t, w, func(entities.ProgressSnapshot) bool { return true })
	assert.Equal(t, "u1", first.UserID)
	assert.Equal(t, 0, first.Sessions)

	s := entities.NewSession("u1", "1.1", entities.LevelBasic, testQuestions(3), t0)
	id, err := f.repo.Create(ctx, s)
	require.NoError(t, err)
	require.NoError(t, f.repo.SaveAnswers(ctx, id, []*int{intp(1), nil, nil}, 1))

	snap := waitFor(t, w, func(s entities.ProgressSnapshot) bool {
		return s.Progress.Status("1.1", entities.LevelBasic).Answered == 1
	})
	assert.True(t, snap.Progress.Status("1.1", entities.LevelBasic).InProgress)

	require.NoError(t, f.repo.SaveCompletion(ctx, id, t0.Add(time.Hour), 67, true))
	waitFor(t, w, func(s entities.ProgressSnapshot) bool {
		return s.Progress.IsCompleted("1.1", entities.LevelBasic)
	})

	latest, ok := w.Latest()
	require.True(t, ok)
	assert.Equal(t, 1, latest.Areas["1"][entities.LevelBasic].CompletedCount)
}

func TestProgressAggregator_MalformedRecordIsExcluded(t *testing.T) {
	f := newProgressFixture()
	ctx := context.Background()

	_, err := f.repo.Create(ctx, entities.NewSession("u1", "1.1", entities.LevelBasic, testQuestions(3), t0))
	require.NoError(t, err)
	_, err = f.store.Insert(ctx, repository.SessionsCollection, docstore.Document{"userId": "u1", "questions": "nope"})
	require.NoError(t, err)

	snap, err := f.agg.Snapshot(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Sessions)
	assert.Equal(t, 1, snap.Excluded)
	assert.Equal(t, 3, snap.Progress.Status("1.1", entities.LevelBasic).Total)
}

func TestProgressAggregator_CloseReleasesSubscription(t *testing.T) {
	f := newProgressFixture()

	w, err := f.agg.Watch(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, 1, f.store.Subscribers())

	w.Close()
	w.Close()
	assert.Equal(t, 0, f.store.Subscribers())

	ctx, cancel := context.WithCancel(context.Background())
	_, err = f.agg.Watch(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, f.store.Subscribers())

	cancel()
	assert.Eventually(t, func() bool { return f.store.Subscribers() == 0 }, time.Second, time.Millisecond)
}
