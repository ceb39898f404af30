// Package mongo provides a MongoDB store backend using the official
// driver. Collections live in a single database owned by the caller.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/mmont5/megarray/content"
	"github.com/mmont5/megarray/recurring"
	"github.com/mmont5/megarray/schedule"
)

// Collection name constants.
const (
	colContent   = "megarray_content"
	colVersions  = "megarray_content_versions"
	colApprovals = "megarray_approvals"
	colRecurring = "megarray_recurring_jobs"
	colSessions  = "megarray_sessions"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ content.Store         = (*Store)(nil)
	_ recurring.Store       = (*Store)(nil)
	_ schedule.SessionStore = (*Store)(nil)
)

// Store is a MongoDB implementation of store.Store. The caller owns the
// *mongo.Database lifecycle; Store never disconnects the client.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB store. The caller owns the database lifecycle;
// the Store will not disconnect it on Close().
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *mongo.Database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates indexes for all megarray collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}

		_, err := s.db.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("megarray/mongo: migrate %s indexes: %w", col, err)
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

// Close is a no-op because the caller owns the database lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "E11000")
}

// uniqueIndex returns index options with the unique constraint set.
func uniqueIndex() *options.IndexOptionsBuilder {
	return options.Index().SetUnique(true)
}

// migrationIndexes returns the index definitions for all megarray
// collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colContent: {
			// Sweep and reconciliation index: status + scheduled_for.
			{Keys: bson.D{
				{Key: "status", Value: 1},
				{Key: "scheduled_for", Value: 1},
			}},
			// List index: org + owner + created_at.
			{Keys: bson.D{
				{Key: "org_id", Value: 1},
				{Key: "owner_id", Value: 1},
				{Key: "created_at", Value: -1},
			}},
		},
		colVersions: {
			// One version number per content item.
			{
				Keys: bson.D{
					{Key: "content_id", Value: 1},
					{Key: "number", Value: 1},
				},
				Options: uniqueIndex(),
			},
		},
		colApprovals: {
			// Pending lookup index.
			{Keys: bson.D{
				{Key: "content_id", Value: 1},
				{Key: "status", Value: 1},
			}},
		},
		colRecurring: {
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{
				{Key: "org_id", Value: 1},
				{Key: "created_at", Value: -1},
			}},
		},
		colSessions: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
	}
}
