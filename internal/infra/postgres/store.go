package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/aliskhannn/competence-bot/internal/docstore"
	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

// NotifyChannel is the LISTEN/NOTIFY channel used for change fan-out.
const NotifyChannel = "documents_changed"

const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		id          TEXT PRIMARY KEY,
		collection  TEXT NOT NULL,
		body        JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS documents_collection_idx ON documents (collection, created_at);
	CREATE INDEX IF NOT EXISTS documents_body_idx ON documents USING GIN (body jsonb_path_ops);
`

const reconnectDelay = time.Second

type subscription struct {
	collection string
	refresher  *docstore.Refresher
}

// Store keeps documents as jsonb rows of a single table.
type Store struct {
	pool   *pgxpool.Pool
	tx     *Transactor
	logger *zap.Logger

	mu        sync.Mutex
	subs      map[uint64]*subscription
	nextSubID uint64

	listenOnce   sync.Once
	listenCancel context.CancelFunc
	listenDone   chan struct{}
}

// NewStore creates a store on top of an open pool.
func NewStore(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	return &Store{
		pool:   pool,
		tx:     NewTransactor(pool, NotifyChannel),
		logger: logger,
		subs:   make(map[uint64]*subscription),
	}
}

// Migrate creates the documents table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Query returns documents of collection whose body contains every filter.
func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	if s == nil || s.pool == nil {
		return nil, entities.ErrStoreUnavailable
	}

	containment, err := json.Marshal(filterObject(filters))
	if err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}

	query := `
		SELECT id, body
		FROM documents
		WHERE collection = $1 AND body @> $2::jsonb
		ORDER BY created_at, id
	`

	rows, err := s.pool.Query(ctx, query, collection, string(containment))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w: %w", collection, entities.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var (
			id   string
			body []byte
		)
		if err = rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w: %w", collection, entities.ErrStoreUnavailable, err)
		}

		doc := docstore.Document{}
		if err = json.Unmarshal(body, &doc); err != nil {
			// A broken body is kept as an id-only document; decoders
			// downstream report it as malformed instead of failing the set.
			doc = docstore.Document{}
		}
		doc[docstore.FieldID] = id
		docs = append(docs, doc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w: %w", collection, entities.ErrStoreUnavailable, err)
	}

	return docs, nil
}

// Insert stores doc under a new id and notifies listeners on commit.
func (s *Store) Insert(ctx context.Context, collection string, doc docstore.Document) (string, error) {
	if s == nil || s.pool == nil {
		return "", entities.ErrStoreUnavailable
	}

	body, err := json.Marshal(withoutID(doc))
	if err != nil {
		return "", fmt.Errorf("encode document: %w", err)
	}

	id := uuid.NewString()
	err = s.tx.WriteAndNotify(ctx, collection, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO documents (id, collection, body) VALUES ($1, $2, $3::jsonb)`,
			id, collection, string(body),
		)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("insert %s: %w: %w", collection, entities.ErrStoreUnavailable, err)
	}

	return id, nil
}

// Update merges patch into the stored body.
func (s *Store) Update(ctx context.Context, collection, id string, patch docstore.Document) error {
	if s == nil || s.pool == nil {
		return entities.ErrStoreUnavailable
	}

	body, err := json.Marshal(withoutID(patch))
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	var affected int64
	err = s.tx.WriteAndNotify(ctx, collection, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE documents
			SET body = body || $3::jsonb,
			    updated_at = now()
			WHERE collection = $1 AND id = $2
		`, collection, id, string(body))
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w: %w", collection, id, entities.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, docstore.ErrNotFound)
	}

	return nil
}

// Subscribe re-queries the matching set on every notification for the
// collection. The first subscription starts the shared listener.
func (s *Store) Subscribe(
	ctx context.Context,
	collection string,
	filters []docstore.Filter,
	onChange docstore.ChangeFunc,
) (docstore.Unsubscribe, error) {
	if s == nil || s.pool == nil {
		return nil, entities.ErrStoreUnavailable
	}

	s.listenOnce.Do(s.startListener)

	query := func(ctx context.Context) ([]docstore.Document, error) {
		return s.Query(ctx, collection, filters...)
	}
	onError := func(err error) {
		s.logger.Warn("subscription refresh failed",
			zap.String("collection", collection),
			zap.Error(err),
		)
	}

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	sub := &subscription{
		collection: collection,
		refresher:  docstore.StartRefresher(ctx, query, onChange, onError),
	}
	s.subs[id] = sub
	s.mu.Unlock()

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

// Close stops the listener. The pool is owned by the caller.
func (s *Store) Close() {
	if s.listenCancel != nil {
		s.listenCancel()
		<-s.listenDone
	}
}

func (s *Store) startListener() {
	ctx, cancel := context.WithCancel(context.Background())
	s.listenCancel = cancel
	s.listenDone = make(chan struct{})

	go func() {
		defer close(s.listenDone)

		for {
			err := s.listen(ctx)
			if ctx.Err() != nil {
				return
			}

			s.logger.Warn("change listener disconnected, reconnecting",
				zap.Error(err),
				zap.Duration("delay", reconnectDelay),
			)

			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
}

// listen holds one pooled connection in LISTEN mode until it fails.
func (s *Store) listen(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire: %w", err)
	}
	defer conn.Release()

	if _, err = conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	// Notifications may have been missed while disconnected.
	s.signalAll("")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("wait for notification: %w", err)
		}
		s.signalAll(n.Payload)
	}
}

// signalAll wakes subscriptions of collection, or all of them when
// collection is empty.
func (s *Store) signalAll(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subs {
		if collection == "" || sub.collection == collection {
			sub.refresher.Signal()
		}
	}
}

func filterObject(filters []docstore.Filter) map[string]any {
	obj := make(map[string]any, len(filters))
	for _, f := range filters {
		obj[f.Field] = f.Value
	}
	return obj
}

func withoutID(doc docstore.Document) docstore.Document {
	out := make(docstore.Document, len(doc))
	for k, v := range doc {
		if k != docstore.FieldID {
			out[k] = v
		}
	}
	return out
}
