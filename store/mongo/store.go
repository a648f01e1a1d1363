// Package mongo implements progress.KV on a single MongoDB collection.
// Each key is a document: {_id: key, value: <binary>, updated_at: <ts>}.
//
// Usage:
//
//	client, err := mongo.Connect(options.Client().ApplyURI(uri))
//	kv := mongostore.New(client.Database("app"))
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/onboard/progress"
)

// Compile-time interface check.
var _ progress.KV = (*Store)(nil)

const defaultCollection = "onboard_kv"

type kvDoc struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(s *Store) { s.collection = name }
}

// Store implements progress.KV backed by MongoDB. The caller owns the
// client lifecycle.
type Store struct {
	db         *mongo.Database
	collection string
	logger     *slog.Logger
}

// New creates a Mongo-backed store over the given database.
func New(db *mongo.Database, opts ...Option) *Store {
	s := &Store{
		db:         db,
		collection: defaultCollection,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) coll() *mongo.Collection {
	return s.db.Collection(s.collection)
}

// Ping verifies the MongoDB connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Get returns the value for key, or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var doc kvDoc
	err := s.coll().FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("onboard/mongo: get %q: %w", key, err)
	}
	return doc.Value, nil
}

// Set stores value under key, replacing any existing value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	doc := kvDoc{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := s.coll().ReplaceOne(ctx,
		bson.M{"_id": key},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("onboard/mongo: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.coll().DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("onboard/mongo: delete %q: %w", key, err)
	}
	return nil
}
