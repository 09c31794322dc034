package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

// DefaultMaintenanceSchedule runs the duplicate sweep nightly.
const DefaultMaintenanceSchedule = "0 3 * * *"

// DuplicateGroup is one (user, competence, level) bucket holding more than
// one session.
type DuplicateGroup struct {
	UserID      string
	Competence  string
	Level       entities.Level
	CanonicalID string
	State       entities.SessionState
	Duplicates  []string
}

// DuplicateReport is the outcome of one sweep.
type DuplicateReport struct {
	Sessions     int
	Malformed    int
	UnknownLevel int
	Groups       []DuplicateGroup
	StartedAt    time.Time
	Duration     time.Duration
}

// MaintenanceService reports duplicate sessions on a schedule. It never
// deletes or rewrites records.
type MaintenanceService struct {
	repo     SessionRepository
	schedule string
	clock    Clock
	logger   *zap.Logger
	sweepers map[string]Sweeper
}

// Sweeper drops expired in-memory entries and reports how many it removed.
type Sweeper interface {
	Sweep() int
}

// CacheSweepSchedule is how often registered sweepers run.
const CacheSweepSchedule = "@every 1m"

// NewMaintenanceService creates a new maintenance service.
func NewMaintenanceService(repo SessionRepository, schedule string, clock Clock, logger *zap.Logger) *MaintenanceService {
	if schedule == "" {
		schedule = DefaultMaintenanceSchedule
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &MaintenanceService{
		repo:     repo,
		schedule: schedule,
		clock:    clock,
		logger:   logger,
		sweepers: make(map[string]Sweeper),
	}
}

// AddSweeper registers an in-memory cache to be swept on CacheSweepSchedule.
func (s *MaintenanceService) AddSweeper(name string, sw Sweeper) {
	s.sweepers[name] = sw
}

// Start runs the sweep on schedule until ctx is done.
func (s *MaintenanceService) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC))

	_, err := c.AddFunc(s.schedule, func() {
		s.logger.Info("cron triggered: sweeping duplicate sessions")
		if _, err := s.SweepDuplicates(ctx); err != nil {
			s.logger.Error("failed to sweep duplicate sessions", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("add cron job %q: %w", s.schedule, err)
	}

	if len(s.sweepers) > 0 {
		if _, err = c.AddFunc(CacheSweepSchedule, s.sweepCaches); err != nil {
			return fmt.Errorf("add cron job %q: %w", CacheSweepSchedule, err)
		}
	}

	c.Start()
	s.logger.Info("maintenance scheduler started", zap.String("schedule", s.schedule))

	<-ctx.Done()

	<-c.Stop().Done()
	s.logger.Info("maintenance scheduler stopped")

	return nil
}

func (s *MaintenanceService) sweepCaches() {
	for name, sw := range s.sweepers {
		if n := sw.Sweep(); n > 0 {
			s.logger.Debug("swept expired entries",
				zap.String("cache", name),
				zap.Int("removed", n),
			)
		}
	}
}

// SweepDuplicates groups every stored session and reports the groups with
// more than one record, together with the session each one resolves to.
func (s *MaintenanceService) SweepDuplicates(ctx context.Context) (*DuplicateReport, error) {
	start := s.clock.Now()

	sessions, malformed, err := s.repo.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep duplicates: %w", err)
	}

	report := &DuplicateReport{
		Sessions:  len(sessions) + len(malformed),
		Malformed: len(malformed),
		StartedAt: start,
	}

	type key struct {
		userID     string
		competence string
		level      entities.Level
	}
	groups := make(map[key][]*entities.Session)
	for _, sess := range sessions {
		level := sess.NormalizedLevel()
		if !level.Valid() {
			report.UnknownLevel++
			continue
		}
		k := key{userID: sess.UserID, competence: sess.Competence, level: level}
		groups[k] = append(groups[k], sess)
	}

	for k, group := range groups {
		if len(group) < 2 {
			continue
		}

		result, err := Consolidate(group)
		if err != nil {
			continue
		}

		dup := DuplicateGroup{
			UserID:      k.userID,
			Competence:  k.competence,
			Level:       k.level,
			CanonicalID: result.Canonical.ID,
			State:       result.State,
		}
		for _, d := range result.Duplicates {
			dup.Duplicates = append(dup.Duplicates, d.ID)
		}
		slices.Sort(dup.Duplicates)
		report.Groups = append(report.Groups, dup)
	}

	slices.SortFunc(report.Groups, func(a, b DuplicateGroup) int {
		return cmp.Or(
			cmp.Compare(a.UserID, b.UserID),
			cmp.Compare(a.Competence, b.Competence),
			cmp.Compare(a.Level, b.Level),
		)
	})

	report.Duration = s.clock.Now().Sub(start)

	s.logger.Info("duplicate sweep finished",
		zap.Int("sessions", report.Sessions),
		zap.Int("malformed", report.Malformed),
		zap.Int("unknown_level", report.UnknownLevel),
		zap.Int("duplicate_groups", len(report.Groups)),
		zap.Duration("duration", report.Duration),
	)
	for _, g := range report.Groups {
		s.logger.Info("duplicate group",
			zap.String("user_id", g.UserID),
			zap.String("competence", g.Competence),
			zap.String("level", g.Level.String()),
			zap.String("canonical_id", g.CanonicalID),
			zap.Strings("duplicates", g.Duplicates),
		)
	}

	return report, nil
}
