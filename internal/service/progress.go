package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
	"github.com/aliskhannn/competence-bot/internal/repository"
)

// ExcludedReason says why a session record was left out of aggregation.
type ExcludedReason string

const (
	ExcludedMalformed         ExcludedReason = "malformed"
	ExcludedUnknownLevel      ExcludedReason = "unknown_level"
	ExcludedUnknownCompetence ExcludedReason = "unknown_competence"
)

// ExcludedRecord is a session record that did not contribute to progress.
type ExcludedRecord struct {
	SessionID string
	Reason    ExcludedReason
	Detail    string
}

type groupKey struct {
	competence string
	level      entities.Level
}

// BuildProgress rebuilds a progress snapshot from the complete set of a
// user's sessions. Every catalog competence gets a status at every level;
// sessions are grouped by competence and normalized level and each group is
// consolidated. Sessions with an unknown level or competence are returned
// as excluded.
func BuildProgress(catalog *entities.Catalog, sessions []*entities.Session) (entities.ProgressSnapshot, []ExcludedRecord) {
	progress := make(entities.ProgressMap)
	for _, c := range catalog.Competences() {
		for _, level := range entities.Levels {
			progress.Set(c.Code, level, entities.EmptyStatus())
		}
	}

	var excluded []ExcludedRecord
	groups := make(map[groupKey][]*entities.Session)
	for _, s := range sessions {
		level := s.NormalizedLevel()
		if !level.Valid() {
			excluded = append(excluded, ExcludedRecord{SessionID: s.ID, Reason: ExcludedUnknownLevel, Detail: s.Level})
			continue
		}
		if _, ok := catalog.Competence(s.Competence); !ok {
			excluded = append(excluded, ExcludedRecord{SessionID: s.ID, Reason: ExcludedUnknownCompetence, Detail: s.Competence})
			continue
		}

		key := groupKey{competence: s.Competence, level: level}
		groups[key] = append(groups[key], s)
	}

	for key, group := range groups {
		result, err := Consolidate(group)
		if err != nil {
			continue
		}
		progress.Set(key.competence, key.level, result.Status)
	}

	areas := make(entities.AreaStats, len(catalog.Dimensions()))
	for _, d := range catalog.Dimensions() {
		comps := catalog.CompetencesOf(d.ID)
		byLevel := make(map[entities.Level]entities.AreaLevelStats, len(entities.Levels))
		for _, level := range entities.Levels {
			st := entities.AreaLevelStats{TotalCount: len(comps)}
			for _, c := range comps {
				if progress.IsCompleted(c.Code, level) {
					st.CompletedCount++
				}
			}
			byLevel[level] = st
		}
		areas[d.ID] = byLevel
	}

	return entities.ProgressSnapshot{
		Progress: progress,
		Areas:    areas,
		Sessions: len(sessions),
		Excluded: len(excluded),
	}, excluded
}

// ProgressAggregator keeps per-user progress live by rebuilding it from
// every change of the user's sessions.
type ProgressAggregator struct {
	repo    SessionRepository
	catalog CatalogProvider
	clock   Clock
	logger  *zap.Logger
}

// NewProgressAggregator creates a new ProgressAggregator.
func NewProgressAggregator(repo SessionRepository, catalog CatalogProvider, clock Clock, logger *zap.Logger) *ProgressAggregator {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ProgressAggregator{
		repo:    repo,
		catalog: catalog,
		clock:   clock,
		logger:  logger,
	}
}

// ProgressWatch is a live progress subscription. It must be closed.
type ProgressWatch struct {
	updates chan entities.ProgressSnapshot
	ready   chan struct{}
	stop    chan struct{}

	mu          sync.Mutex
	latest      entities.ProgressSnapshot
	hasLatest   bool
	closed      bool
	unsubscribe func()
	readyOnce   sync.Once
}

// Updates delivers snapshots. Only the newest undelivered snapshot is kept,
// so a slow reader skips intermediate ones.
func (w *ProgressWatch) Updates() <-chan entities.ProgressSnapshot {
	return w.updates
}

// Ready is closed once the first snapshot has been built.
func (w *ProgressWatch) Ready() <-chan struct{} {
	return w.ready
}

// Latest returns the newest snapshot, if any.
func (w *ProgressWatch) Latest() (entities.ProgressSnapshot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latest, w.hasLatest
}

// Close releases the subscription. It is safe to call more than once.
func (w *ProgressWatch) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.stop)
	unsubscribe := w.unsubscribe
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (w *ProgressWatch) publish(snap entities.ProgressSnapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	w.latest = snap
	w.hasLatest = true

	// Drop a pending snapshot nobody read yet, then push the new one.
	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- snap:
	default:
	}

	w.readyOnce.Do(func() { close(w.ready) })
}

// Watch subscribes to all sessions of the user. The watch ends when Close
// is called or ctx is done.
func (a *ProgressAggregator) Watch(ctx context.Context, userID string) (*ProgressWatch, error) {
	w := &ProgressWatch{
		updates: make(chan entities.ProgressSnapshot, 1),
		ready:   make(chan struct{}),
		stop:    make(chan struct{}),
	}

	onChange := func(sessions []*entities.Session, malformed []repository.MalformedRecord) {
		snap, err := a.rebuild(ctx, userID, sessions, malformed)
		if err != nil {
			a.logger.Error("failed to rebuild progress",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			return
		}
		w.publish(snap)
	}

	unsubscribe, err := a.repo.SubscribeByUser(ctx, userID, onChange)
	if err != nil {
		return nil, fmt.Errorf("watch progress: %w", err)
	}

	w.mu.Lock()
	w.unsubscribe = unsubscribe
	w.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			w.Close()
		case <-w.stop:
		}
	}()

	return w, nil
}

// SnapshotTimeout bounds Snapshot when ctx carries no deadline.
const SnapshotTimeout = 10 * time.Second

// Snapshot builds the current progress of the user once.
func (a *ProgressAggregator) Snapshot(ctx context.Context, userID string) (entities.ProgressSnapshot, error) {
	var cancel context.CancelFunc
	if _, ok := ctx.Deadline(); ok {
		ctx, cancel = context.WithCancel(ctx)
	} else {
		ctx, cancel = context.WithTimeout(ctx, SnapshotTimeout)
	}
	defer cancel()

	w, err := a.Watch(ctx, userID)
	if err != nil {
		return entities.ProgressSnapshot{}, err
	}
	defer w.Close()

	select {
	case <-w.Ready():
		snap, _ := w.Latest()
		return snap, nil
	case <-ctx.Done():
		return entities.ProgressSnapshot{}, fmt.Errorf("progress snapshot: %w", ctx.Err())
	}
}

func (a *ProgressAggregator) rebuild(
	ctx context.Context,
	userID string,
	sessions []*entities.Session,
	malformed []repository.MalformedRecord,
) (entities.ProgressSnapshot, error) {
	catalog, err := a.catalog.Catalog(ctx)
	if err != nil {
		return entities.ProgressSnapshot{}, err
	}

	snap, excluded := BuildProgress(catalog, sessions)

	for _, m := range malformed {
		a.logger.Warn("session excluded from progress",
			zap.String("user_id", userID),
			zap.String("session_id", m.ID),
			zap.String("reason", string(ExcludedMalformed)),
			zap.Error(m.Err),
		)
	}
	for _, e := range excluded {
		a.logger.Warn("session excluded from progress",
			zap.String("user_id", userID),
			zap.String("session_id", e.SessionID),
			zap.String("reason", string(e.Reason)),
			zap.String("detail", e.Detail),
		)
	}

	snap.UserID = userID
	snap.Sessions += len(malformed)
	snap.Excluded += len(malformed)
	snap.BuiltAt = a.clock.Now()

	return snap, nil
}
