// Package store defines the aggregate persistence interface. Each subsystem
// (content, recurring) defines its own store interface; the composite Store
// composes them all plus the session cleanup hook. Backends: Mongo and
// Memory.
package store

import (
	"context"

	"github.com/mmont5/megarray/content"
	"github.com/mmont5/megarray/recurring"
	"github.com/mmont5/megarray/schedule"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface; a single backend
// (mongo, memory) implements all of them.
type Store interface {
	content.Store
	recurring.Store
	schedule.SessionStore

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
