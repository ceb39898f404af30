// Package megarray is the content-publishing orchestration core of a
// multi-tenant content platform. It governs how a piece of content moves
// from draft through approval to published state, and it drives the
// time-based execution of one-off publish events and recurring
// content-generation jobs.
//
// Megarray is designed as a library, not a service. Import it, configure a
// store and the platform/generation collaborators, and embed the engine:
//
//	eng, err := engine.New(st, publisher, generator,
//	    engine.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := eng.Start(ctx); err != nil { ... }
//
// # Architecture
//
// Megarray follows a composable store pattern where each subsystem
// (content, recurring) defines its own store interface. A single backend
// (memory, mongo) implements all of them. Timers live only in the in-memory
// job registry; the store is the durable source of truth, and a startup
// reconciliation pass rebuilds the registry from persisted state.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package megarray
