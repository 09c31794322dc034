// Package mongodb implements the document store on MongoDB. Subscriptions use
// change streams and fall back to polling on servers without them.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/aliskhannn/competence-bot/internal/docstore"
	"github.com/aliskhannn/competence-bot/internal/domain/entities"
)

// Store maps collections of the docstore contract onto one database.
type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	pollInterval time.Duration
	logger       *zap.Logger
}

// Connect opens a client and verifies the server is reachable.
func Connect(ctx context.Context, uri, database string, pollInterval time.Duration, logger *zap.Logger) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping: %w", err)
	}

	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	return &Store{
		client:       client,
		db:           client.Database(database),
		pollInterval: pollInterval,
		logger:       logger,
	}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Query returns documents of collection matching all filters, oldest first.
func (s *Store) Query(ctx context.Context, collection string, filters ...docstore.Filter) ([]docstore.Document, error) {
	if s == nil || s.db == nil {
		return nil, entities.ErrStoreUnavailable
	}

	cursor, err := s.db.Collection(collection).Find(ctx, toFilter(filters),
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w: %w", collection, entities.ErrStoreUnavailable, err)
	}

	var raw []bson.M
	if err = cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %w", collection, entities.ErrStoreUnavailable, err)
	}

	docs := make([]docstore.Document, 0, len(raw))
	for _, m := range raw {
		docs = append(docs, fromBSON(m))
	}

	return docs, nil
}

// Insert stores doc and returns the hex ObjectID.
func (s *Store) Insert(ctx context.Context, collection string, doc docstore.Document) (string, error) {
	if s == nil || s.db == nil {
		return "", entities.ErrStoreUnavailable
	}

	res, err := s.db.Collection(collection).InsertOne(ctx, toBSON(doc))
	if err != nil {
		return "", fmt.Errorf("insert %s: %w: %w", collection, entities.ErrStoreUnavailable, err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("insert %s: unexpected id type %T", collection, res.InsertedID)
	}

	return oid.Hex(), nil
}

// Update applies patch with $set.
func (s *Store) Update(ctx context.Context, collection, id string, patch docstore.Document) error {
	if s == nil || s.db == nil {
		return entities.ErrStoreUnavailable
	}

	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, docstore.ErrNotFound)
	}

	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": toBSON(patch)},
	)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w: %w", collection, id, entities.ErrStoreUnavailable, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update %s/%s: %w", collection, id, docstore.ErrNotFound)
	}

	return nil
}

// Subscribe re-queries the matching set on every change stream event of the
// collection, or every poll interval when change streams are unavailable.
func (s *Store) Subscribe(
	ctx context.Context,
	collection string,
	filters []docstore.Filter,
	onChange docstore.ChangeFunc,
) (docstore.Unsubscribe, error) {
	if s == nil || s.db == nil {
		return nil, entities.ErrStoreUnavailable
	}

	ctx, cancel := context.WithCancel(ctx)

	query := func(ctx context.Context) ([]docstore.Document, error) {
		return s.Query(ctx, collection, filters...)
	}
	onError := func(err error) {
		s.logger.Warn("subscription refresh failed",
			zap.String("collection", collection),
			zap.Error(err),
		)
	}
	refresher := docstore.StartRefresher(ctx, query, onChange, onError)

	go s.watch(ctx, collection, refresher)

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			refresher.Stop()
		})
	}, nil
}

func (s *Store) watch(ctx context.Context, collection string, refresher *docstore.Refresher) {
	stream, err := s.db.Collection(collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Info("change streams unavailable, polling instead",
				zap.String("collection", collection),
				zap.Duration("interval", s.pollInterval),
				zap.Error(err),
			)
			s.poll(ctx, refresher)
		}
		return
	}
	defer func() { _ = stream.Close(context.Background()) }()

	for stream.Next(ctx) {
		refresher.Signal()
	}

	if err = stream.Err(); err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		s.logger.Warn("change stream closed, polling instead",
			zap.String("collection", collection),
			zap.Error(err),
		)
		s.poll(ctx, refresher)
	}
}

func (s *Store) poll(ctx context.Context, refresher *docstore.Refresher) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresher.Signal()
		}
	}
}

func toFilter(filters []docstore.Filter) bson.M {
	m := bson.M{}
	for _, f := range filters {
		m[f.Field] = f.Value
	}
	return m
}

func toBSON(doc docstore.Document) bson.M {
	m := bson.M{}
	for k, v := range doc {
		if k == docstore.FieldID {
			continue
		}
		m[k] = v
	}
	return m
}

// fromBSON converts a decoded document into the plain shapes the rest of
// the module expects.
func fromBSON(m bson.M) docstore.Document {
	doc := docstore.Document{}
	for k, v := range m {
		if k == "_id" {
			doc[docstore.FieldID] = normalize(v)
			continue
		}
		doc[k] = normalize(v)
	}
	return doc
}

func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalize(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return int(t)
	case int64:
		return int(t)
	default:
		return v
	}
}
