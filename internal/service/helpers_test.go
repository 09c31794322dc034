package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aliskhannn/competence-bot/internal/docstore"
	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// gatedStore counts inserts and can hold queries until released.
type gatedStore struct {
	docstore.Store

	inserts atomic.Int32
	queries atomic.Int32
	gate    chan struct{}
}

func newGatedStore(inner docstore.Store) *gatedStore {
	return &gatedStore{Store: inner}
}

// Hold makes every following Query block until Release.
func (s *gatedStore) Hold() {
	s.gate = make(chan struct{})
}

func (s *gatedStore) Release() {
	close(s.gate)
}

func (s *gatedStore) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	s.queries.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.Store.Query(ctx, collection, filters...)
}

func (s *gatedStore) Insert(ctx context.Context, collection string, doc docstore.Document) (string, error) {
	s.inserts.Add(1)
	return s.Store.Insert(ctx, collection, doc)
}

func intp(v int) *int { return &v }

func testQuestions(n int) []entities.Question {
	qs := make([]entities.Question, n)
	for i := range qs {
		qs[i] = entities.Question{
			ID:           string(rune('a' + i)),
			Text:         fmt.Sprintf("question %d", i+1),
			Options:      []string{"x", "y", "z"},
			CorrectIndex: 1,
		}
	}
	return qs
}

// testCatalog has dimension "1" with 1.1, 1.2, 1.3 and dimension "2" with
// 2.1. Every competence has three questions at every level.
func testCatalog() *entities.Catalog {
	questions := map[string][]entities.Question{
		"Básico":     testQuestions(3),
		"Intermedio": testQuestions(3),
		"Avanzado":   testQuestions(3),
	}
	comp := func(code string) *entities.Competence {
		return &entities.Competence{Code: code, Name: "Competence " + code, Questions: questions}
	}

	return entities.NewCatalog([]*entities.Dimension{
		{ID: "1", Name: "Información", Competences: []*entities.Competence{comp("1.3"), comp("1.1"), comp("1.2")}},
		{ID: "2", Name: "Comunicación", Competences: []*entities.Competence{comp("2.1")}},
	})
}

type staticCatalog struct {
	catalog *entities.Catalog
}

func (s staticCatalog) Catalog(context.Context) (*entities.Catalog, error) {
	return s.catalog, nil
}

type sessionOpt func(*entities.Session)

func completedAt(t time.Time, score int, passed bool) sessionOpt {
	return func(s *entities.Session) {
		s.EndTime = &t
		s.Score = score
		s.Passed = passed
	}
}

func answered(answers ...*int) sessionOpt {
	return func(s *entities.Session) {
		s.Answers = answers
	}
}

func startedAt(t time.Time) sessionOpt {
	return func(s *entities.Session) {
		s.StartTime = t
	}
}

func newTestSession(id string, opts ...sessionOpt) *entities.Session {
	s := entities.NewSession("u1", "1.1", entities.LevelBasic, testQuestions(3),
		time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	s.ID = id
	for _, opt := range opts {
		opt(s)
	}
	return s
}
