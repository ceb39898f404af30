package megarray

import (
	"context"
	"time"
)

// Task is a unit of scheduled work executed by the scheduler when a timer
// fires. Tasks are runtime-only; they are never persisted. The scheduler
// runs every task through its middleware chain (recover, timeout, logging,
// optional metrics/tracing).
type Task struct {
	// ID is the job registry identifier: "content:<id>" for one-off
	// publishes, "recurring:<id>" for recurring generation jobs,
	// "system:<name>" for maintenance jobs.
	ID string

	// Description is a human-readable summary used in logs.
	Description string

	// Timeout bounds a single execution. Zero means no task-level
	// deadline.
	Timeout time.Duration

	// Run executes the task body. It must honor ctx cancellation.
	Run func(ctx context.Context) error
}
