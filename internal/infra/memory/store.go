// Package memory provides an in-process document store. It backs local
// runs and tests, and mirrors the semantics of the remote backends: no
// transactions, full-snapshot subscriptions.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/aliskhannn/competence-bot/internal/docstore"
	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

type subscription struct {
	collection string
	refresher  *docstore.Refresher
}

// Store keeps documents per collection in insertion order.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]docstore.Document
	order       map[string][]string
	subs        map[uint64]*subscription
	nextSubID   uint64
	failure     error
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]map[string]docstore.Document),
		order:       make(map[string][]string),
		subs:        make(map[uint64]*subscription),
	}
}

// SetFailure makes every subsequent call fail with err wrapped in
// entities.ErrStoreUnavailable. Pass nil to recover.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// Query returns the documents of collection matching all filters.
func (s *Store) Query(_ context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failureLocked(); err != nil {
		return nil, err
	}

	return s.queryLocked(collection, filters), nil
}

// Insert stores a copy of doc under a new id.
func (s *Store) Insert(_ context.Context, collection string, doc docstore.Document) (string, error) {
	s.mu.Lock()

	if err := s.failureLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}

	id := uuid.NewString()
	stored := docstore.Clone(doc)
	stored[docstore.FieldID] = id

	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]docstore.Document)
		s.collections[collection] = docs
	}
	docs[id] = stored
	s.order[collection] = append(s.order[collection], id)

	refreshers := s.refreshersLocked(collection)
	s.mu.Unlock()

	notify(refreshers)
	return id, nil
}

// Update merges patch into the document with the given id.
func (s *Store) Update(_ context.Context, collection, id string, patch docstore.Document) error {
	s.mu.Lock()

	if err := s.failureLocked(); err != nil {
		s.mu.Unlock()
		return err
	}

	doc, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("update %s/%s: %w", collection, id, docstore.ErrNotFound)
	}

	for k, v := range docstore.Clone(patch) {
		if k == docstore.FieldID {
			continue
		}
		doc[k] = v
	}

	refreshers := s.refreshersLocked(collection)
	s.mu.Unlock()

	notify(refreshers)
	return nil
}

// Subscribe delivers the matching set now and after every write to the
// collection.
func (s *Store) Subscribe(
	ctx context.Context,
	collection string,
	filters []docstore.Filter,
	onChange docstore.ChangeFunc,
) (docstore.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failureLocked(); err != nil {
		return nil, err
	}

	query := func(ctx context.Context) ([]docstore.Document, error) {
		return s.Query(ctx, collection, filters...)
	}

	id := s.nextSubID
	s.nextSubID++
	sub := &subscription{
		collection: collection,
		refresher:  docstore.StartRefresher(ctx, query, onChange, nil),
	}
	s.subs[id] = sub

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			sub.refresher.Stop()
		})
	}, nil
}

// Subscribers returns the number of live subscriptions.
func (s *Store) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *Store) queryLocked(collection string, filters []docstore.Filter) []docstore.Document {
	docs := s.collections[collection]
	out := make([]docstore.Document, 0, len(docs))
	for _, id := range s.order[collection] {
		doc := docs[id]
		if docstore.Matches(doc, filters) {
			out = append(out, docstore.Clone(doc))
		}
	}
	return out
}

func (s *Store) refreshersLocked(collection string) []*docstore.Refresher {
	var out []*docstore.Refresher
	for _, sub := range s.subs {
		if sub.collection == collection {
			out = append(out, sub.refresher)
		}
	}
	return out
}

func (s *Store) failureLocked() error {
	if s.failure != nil {
		return fmt.Errorf("%w: %v", entities.ErrStoreUnavailable, s.failure)
	}
	return nil
}

func notify(refreshers []*docstore.Refresher) {
	for _, r := range refreshers {
		r.Signal()
	}
}
