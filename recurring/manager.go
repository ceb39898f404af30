package recurring

import (
	"context"
	"fmt"
	"log/slog"

	cronlib "github.com/robfig/cron/v3"

	"github.com/mmont5/megarray"
	"github.com/mmont5/megarray/content"
	"github.com/mmont5/megarray/id"
	"github.com/mmont5/megarray/schedule"
)

// Drafter creates draft content from generated output. content.Service
// satisfies this interface.
type Drafter interface {
	Create(ctx context.Context, p content.CreateParams) (*content.Content, error)
}

// Timers arms and disarms recurring timer chains. schedule.Scheduler
// satisfies this interface.
type Timers interface {
	ArmRecurring(jobID string, sched cronlib.Schedule, task *megarray.Task)
	DisarmRecurring(jobID string)
}

// CreateParams holds the caller-supplied fields for a new recurring job.
type CreateParams struct {
	Name     string
	Schedule string
	Params   Params
	OwnerID  string
	OrgID    string
}

// Manager owns the recurring job lifecycle: create, pause, resume, cancel,
// reschedule, and the per-fire generation run.
type Manager struct {
	store   Store
	gen     Generator
	drafter Drafter
	timers  Timers
	clock   megarray.Clock
	cfg     megarray.Config
	logger  *slog.Logger
}

// NewManager creates a recurring job manager.
func NewManager(
	store Store,
	gen Generator,
	drafter Drafter,
	timers Timers,
	clock megarray.Clock,
	cfg megarray.Config,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:   store,
		gen:     gen,
		drafter: drafter,
		timers:  timers,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "recurring")),
	}
}

// Create validates the schedule, persists the job as ACTIVE, and arms its
// timer chain. An unparseable expression is rejected before anything is
// persisted.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Job, error) {
	sched, err := schedule.ParseSchedule(p.Schedule)
	if err != nil {
		return nil, err
	}

	j := &Job{
		Entity:   megarray.NewEntity(),
		ID:       id.NewRecurringID(),
		Name:     p.Name,
		Schedule: p.Schedule,
		Params:   p.Params,
		Status:   StatusActive,
		OwnerID:  p.OwnerID,
		OrgID:    p.OrgID,
	}
	if err := m.store.SaveRecurringJob(ctx, j); err != nil {
		return nil, fmt.Errorf("create recurring job: %w", err)
	}

	m.arm(j, sched)

	m.logger.Info("recurring job created",
		slog.String("job_id", j.ID.String()),
		slog.String("schedule", j.Schedule),
		slog.String("org_id", j.OrgID))
	return j, nil
}

// UpdateStatus transitions a job between ACTIVE, PAUSED, and CANCELLED.
// CANCELLED is terminal; any further change fails with
// megarray.ErrInvalidState. Activation re-arms the timer from the stored
// expression; pausing or cancelling disarms it.
func (m *Manager) UpdateStatus(ctx context.Context, jobID id.RecurringID, status Status) (*Job, error) {
	switch status {
	case StatusActive, StatusPaused, StatusCancelled:
	default:
		return nil, fmt.Errorf("unknown status %q: %w", status, megarray.ErrInvalidState)
	}

	j, err := m.store.GetRecurringJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status == StatusCancelled {
		return nil, fmt.Errorf("recurring job is cancelled: %w", megarray.ErrInvalidState)
	}
	if j.Status == status {
		return j, nil
	}

	j.Status = status
	j.Touch()
	if err := m.store.SaveRecurringJob(ctx, j); err != nil {
		return nil, fmt.Errorf("update recurring job status: %w", err)
	}

	switch status {
	case StatusActive:
		sched, err := schedule.ParseSchedule(j.Schedule)
		if err != nil {
			return nil, err
		}
		m.arm(j, sched)
	case StatusPaused, StatusCancelled:
		m.timers.DisarmRecurring(schedule.RecurringJobID(jobID))
	}

	m.logger.Info("recurring job status updated",
		slog.String("job_id", jobID.String()),
		slog.String("status", string(status)))
	return j, nil
}

// Reschedule replaces the cron expression. The new expression is validated
// before persisting; the timer is re-armed only when the job is ACTIVE.
func (m *Manager) Reschedule(ctx context.Context, jobID id.RecurringID, expr string) (*Job, error) {
	sched, err := schedule.ParseSchedule(expr)
	if err != nil {
		return nil, err
	}

	j, err := m.store.GetRecurringJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status == StatusCancelled {
		return nil, fmt.Errorf("recurring job is cancelled: %w", megarray.ErrInvalidState)
	}

	j.Schedule = expr
	j.Touch()
	if err := m.store.SaveRecurringJob(ctx, j); err != nil {
		return nil, fmt.Errorf("reschedule recurring job: %w", err)
	}

	if j.Status == StatusActive {
		m.arm(j, sched)
	}

	m.logger.Info("recurring job rescheduled",
		slog.String("job_id", jobID.String()),
		slog.String("schedule", expr))
	return j, nil
}

// Cancel terminally stops a recurring job.
func (m *Manager) Cancel(ctx context.Context, jobID id.RecurringID) (*Job, error) {
	return m.UpdateStatus(ctx, jobID, StatusCancelled)
}

// Get retrieves a recurring job by ID.
func (m *Manager) Get(ctx context.Context, jobID id.RecurringID) (*Job, error) {
	return m.store.GetRecurringJob(ctx, jobID)
}

// List returns recurring jobs for an organization; empty orgID means all.
func (m *Manager) List(ctx context.Context, orgID string) ([]*Job, error) {
	return m.store.ListRecurringJobs(ctx, orgID)
}

// ArmActive re-arms every ACTIVE recurring job from persisted state. The
// scheduler calls it during startup reconciliation. It returns the number
// of jobs armed.
func (m *Manager) ArmActive(ctx context.Context) (int, error) {
	jobs, err := m.store.ListActiveRecurringJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active recurring jobs: %w", err)
	}

	armed := 0
	for _, j := range jobs {
		sched, err := schedule.ParseSchedule(j.Schedule)
		if err != nil {
			// A persisted expression that no longer parses should not
			// block the rest of reconciliation.
			m.logger.Error("skipping recurring job with bad schedule",
				slog.String("job_id", j.ID.String()),
				slog.String("schedule", j.Schedule),
				slog.String("error", err.Error()))
			continue
		}
		m.arm(j, sched)
		armed++
	}
	return armed, nil
}

// arm registers the timer chain for a job. The task body re-reads the job
// each fire so pauses and edits take effect without tearing down the chain.
func (m *Manager) arm(j *Job, sched cronlib.Schedule) {
	jobID := j.ID
	m.timers.ArmRecurring(schedule.RecurringJobID(jobID), sched, &megarray.Task{
		ID:          schedule.RecurringJobID(jobID),
		Description: "recurring generation: " + j.Name,
		Timeout:     m.cfg.TaskTimeout,
		Run: func(ctx context.Context) error {
			return m.runOnce(ctx, jobID)
		},
	})
}

// runOnce executes a single fire: generate, create a draft, record the
// outcome. Failures increment ErrorCount and record LastError; the job
// stays armed either way.
func (m *Manager) runOnce(ctx context.Context, jobID id.RecurringID) error {
	j, err := m.store.GetRecurringJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status != StatusActive {
		// Stale fire from a chain raced with a pause or cancel.
		return nil
	}

	title, text, err := m.gen.Generate(ctx, j.Params)
	if err != nil {
		m.recordFailure(ctx, jobID, err)
		return fmt.Errorf("%w: %w", megarray.ErrGenerationFailed, err)
	}

	_, err = m.drafter.Create(ctx, content.CreateParams{
		Title:    title,
		Text:     text,
		Type:     j.Params.Type,
		Platform: j.Params.Platform,
		Tags:     []string{"generated"},
		Metadata: map[string]any{"recurring_job_id": j.ID.String()},
		OwnerID:  j.OwnerID,
		OrgID:    j.OrgID,
	})
	if err != nil {
		m.recordFailure(ctx, jobID, err)
		return fmt.Errorf("create generated draft: %w", err)
	}

	now := m.clock.Now()
	m.recordOutcome(ctx, jobID, func(cur *Job) {
		cur.LastRunAt = &now
	})

	m.logger.Info("recurring job ran",
		slog.String("job_id", j.ID.String()),
		slog.String("name", j.Name))
	return nil
}

// recordOutcome re-reads the job and applies run bookkeeping to the fresh
// row. The run can outlast a status change; saving the snapshot read before
// the generation call would write the old status back over a pause or
// cancel that landed mid-run.
func (m *Manager) recordOutcome(ctx context.Context, jobID id.RecurringID, apply func(*Job)) {
	cur, err := m.store.GetRecurringJob(ctx, jobID)
	if err != nil {
		m.logger.Error("failed to load recurring job for run bookkeeping",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()))
		return
	}
	apply(cur)
	cur.Touch()
	if err := m.store.SaveRecurringJob(ctx, cur); err != nil {
		m.logger.Error("failed to record recurring job run",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()))
	}
}

func (m *Manager) recordFailure(ctx context.Context, jobID id.RecurringID, cause error) {
	count := 0
	m.recordOutcome(ctx, jobID, func(cur *Job) {
		cur.ErrorCount++
		cur.LastError = cause.Error()
		count = cur.ErrorCount
	})

	m.logger.Warn("recurring job run failed",
		slog.String("job_id", jobID.String()),
		slog.Int("error_count", count),
		slog.String("error", cause.Error()))
}
