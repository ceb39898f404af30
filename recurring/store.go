package recurring

import (
	"context"

	"github.com/mmont5/megarray/id"
)

// Store defines the persistence contract for recurring jobs.
type Store interface {
	// SaveRecurringJob inserts or fully replaces a recurring job.
	SaveRecurringJob(ctx context.Context, j *Job) error

	// GetRecurringJob retrieves a recurring job by ID. Returns
	// megarray.ErrRecurringNotFound if absent.
	GetRecurringJob(ctx context.Context, jobID id.RecurringID) (*Job, error)

	// ListRecurringJobs returns all recurring jobs for an organization.
	// An empty orgID means all organizations.
	ListRecurringJobs(ctx context.Context, orgID string) ([]*Job, error)

	// ListActiveRecurringJobs returns every ACTIVE recurring job. Used by
	// startup reconciliation.
	ListActiveRecurringJobs(ctx context.Context) ([]*Job, error)
}

// Generator produces content on behalf of a recurring job. Implementations
// live outside this module (AI text generation clients).
type Generator interface {
	// Generate returns a title and body for the given generation params.
	Generate(ctx context.Context, p Params) (title, text string, err error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, p Params) (string, string, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, p Params) (string, string, error) {
	return f(ctx, p)
}
