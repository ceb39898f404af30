package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/mmont5/megarray"
	"github.com/mmont5/megarray/content"
	"github.com/mmont5/megarray/id"
	"github.com/mmont5/megarray/middleware"
)

// Lifecycle is the slice of the content service the scheduler drives.
// Defined here to break the import cycle: content arms timers through
// content.Armer, the scheduler publishes through Lifecycle.
type Lifecycle interface {
	Publish(ctx context.Context, contentID id.ContentID) (*content.Content, error)
	Schedule(ctx context.Context, contentID id.ContentID, ownerID string, at time.Time) (*content.Content, error)
	CancelSchedule(ctx context.Context, contentID id.ContentID, ownerID string) (*content.Content, error)
}

// SessionStore deletes expired auth sessions. The session-cleanup system
// job delegates to it; when absent the job logs a skip.
type SessionStore interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// TokenRefresher refreshes platform credentials expiring within the given
// window. The token-refresh system job delegates to it; when absent the
// job logs a skip.
type TokenRefresher interface {
	RefreshExpiring(ctx context.Context, within time.Duration) (int, error)
}

// RecurringSource re-arms active recurring jobs during reconciliation.
// recurring.Manager satisfies this interface.
type RecurringSource interface {
	ArmActive(ctx context.Context) (int, error)
}

// SweepResult records the outcome of one publish attempt during a sweep.
type SweepResult struct {
	ContentID id.ContentID
	Err       error
}

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
// Exported for use by recurring.Manager and the engine.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", megarray.ErrInvalidSchedule, expr, err)
	}
	return sched, nil
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMiddleware sets the middleware chain applied to every task run.
func WithMiddleware(mw middleware.Middleware) Option {
	return func(s *Scheduler) { s.mw = mw }
}

// WithSessionStore wires the session-cleanup collaborator.
func WithSessionStore(ss SessionStore) Option {
	return func(s *Scheduler) { s.sessions = ss }
}

// WithTokenRefresher wires the token-refresh collaborator.
func WithTokenRefresher(tr TokenRefresher) Option {
	return func(s *Scheduler) { s.tokens = tr }
}

// Scheduler arms and fires timers for one-off publishes, recurring
// generation jobs, and system maintenance jobs. It implements
// content.Armer.
type Scheduler struct {
	registry  *Registry
	store     content.Store
	lifecycle Lifecycle
	clock     megarray.Clock
	cfg       megarray.Config
	logger    *slog.Logger
	mw        middleware.Middleware

	sessions  SessionStore
	tokens    TokenRefresher
	recurring RecurringSource

	stopOnce sync.Once
	stopCh   chan struct{}

	// stopMu orders wg.Add against Stop's wg.Wait: once stopped is set no
	// new work is tracked, so a timer fire racing shutdown cannot Add
	// after Wait returned.
	stopMu  sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a Scheduler. The lifecycle is set separately via
// SetLifecycle when the content service is built after the scheduler.
func NewScheduler(
	registry *Registry,
	store content.Store,
	clock megarray.Clock,
	cfg megarray.Config,
	logger *slog.Logger,
	opts ...Option,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		registry: registry,
		store:    store,
		clock:    clock,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "scheduler")),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLifecycle wires the content service in. The engine calls this once
// during wiring; it is not safe concurrently with operations.
func (s *Scheduler) SetLifecycle(lc Lifecycle) {
	s.lifecycle = lc
}

// SetRecurringSource wires the recurring job manager for reconciliation.
func (s *Scheduler) SetRecurringSource(rs RecurringSource) {
	s.recurring = rs
}

// Registry exposes the job registry for introspection.
func (s *Scheduler) Registry() *Registry {
	return s.registry
}

// Start registers the system maintenance jobs. It does not reconcile;
// the engine runs Reconcile explicitly before Start.
func (s *Scheduler) Start(_ context.Context) error {
	systemJobs := []struct {
		name string
		expr string
		run  func(ctx context.Context) error
	}{
		{SystemSweep, s.cfg.SweepSchedule, s.runSweep},
		{SystemTokenRefresh, s.cfg.TokenRefreshSchedule, s.runTokenRefresh},
		{SystemSessionCleanup, s.cfg.SessionCleanupSchedule, s.runSessionCleanup},
	}

	for _, sj := range systemJobs {
		sched, err := ParseSchedule(sj.expr)
		if err != nil {
			return fmt.Errorf("system job %s: %w", sj.name, err)
		}
		s.ArmRecurring(SystemJobID(sj.name), sched, &megarray.Task{
			ID:          SystemJobID(sj.name),
			Description: "system maintenance: " + sj.name,
			Timeout:     s.cfg.TaskTimeout,
			Run:         sj.run,
		})
	}

	s.logger.Info("scheduler started",
		slog.String("sweep_schedule", s.cfg.SweepSchedule),
		slog.Int("registered_jobs", s.registry.Len()))
	return nil
}

// Stop cancels every armed timer and waits for in-flight task bodies up to
// Config.ShutdownTimeout.
func (s *Scheduler) Stop(_ context.Context) error {
	s.stopOnce.Do(func() {
		s.stopMu.Lock()
		s.stopped = true
		s.stopMu.Unlock()
		close(s.stopCh)
	})
	s.registry.Clear()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		s.logger.Warn("scheduler stop timed out waiting for in-flight tasks")
		return context.DeadlineExceeded
	}
}

// ──────────────────────────────────────────────────
// One-off publish timers (content.Armer)
// ──────────────────────────────────────────────────

// ArmPublish registers an absolute-deadline timer that publishes the
// content when it fires. Re-arming the same content replaces the previous
// timer. The caller persists SCHEDULED state before arming.
func (s *Scheduler) ArmPublish(contentID id.ContentID, at time.Time) {
	jobID := ContentJobID(contentID)
	h := &oneOffHandle{}

	task := &megarray.Task{
		ID:          jobID,
		Description: "publish scheduled content",
		Timeout:     s.cfg.TaskTimeout,
		Run: func(ctx context.Context) error {
			_, err := s.lifecycle.Publish(ctx, contentID)
			return err
		},
	}

	// Registered before arming so a concurrent disarm always finds the
	// handle. A disarm in the gap marks the handle stopped and arm
	// becomes a no-op.
	s.registry.Put(jobID, h)

	delay := at.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	h.arm(delay, func() {
		defer s.registry.Remove(jobID, h)
		s.execute(task)
	})

	s.logger.Debug("publish timer armed",
		slog.String("job_id", jobID),
		slog.Time("at", at))
}

// DisarmPublish cancels the publish timer for the content, if armed.
func (s *Scheduler) DisarmPublish(contentID id.ContentID) {
	if s.registry.Cancel(ContentJobID(contentID)) {
		s.logger.Debug("publish timer disarmed",
			slog.String("job_id", ContentJobID(contentID)))
	}
}

// ──────────────────────────────────────────────────
// Caller-facing one-off API
// ──────────────────────────────────────────────────

// ScheduleOneOff persists a publish schedule and arms its timer via the
// lifecycle.
func (s *Scheduler) ScheduleOneOff(ctx context.Context, contentID id.ContentID, ownerID string, at time.Time) (*content.Content, error) {
	return s.lifecycle.Schedule(ctx, contentID, ownerID, at)
}

// CancelOneOff cancels a persisted schedule and disarms its timer.
func (s *Scheduler) CancelOneOff(ctx context.Context, contentID id.ContentID, ownerID string) (*content.Content, error) {
	return s.lifecycle.CancelSchedule(ctx, contentID, ownerID)
}

// Reschedule replaces a persisted schedule with a new time. The registry
// arm is last-writer-wins, so the old timer is stopped.
func (s *Scheduler) Reschedule(ctx context.Context, contentID id.ContentID, ownerID string, newAt time.Time) (*content.Content, error) {
	return s.lifecycle.Schedule(ctx, contentID, ownerID, newAt)
}

// CancelJob cancels any registered timer by its job ID, whether a one-off
// publish, a recurring chain, or a system job. Unknown IDs are reported as
// megarray.ErrJobNotFound. Persisted state is untouched; use the lifecycle
// or the recurring manager to change it.
func (s *Scheduler) CancelJob(jobID string) error {
	if !s.registry.Cancel(jobID) {
		return fmt.Errorf("%w: %s", megarray.ErrJobNotFound, jobID)
	}
	s.logger.Debug("job cancelled", slog.String("job_id", jobID))
	return nil
}

// ──────────────────────────────────────────────────
// Recurring timers
// ──────────────────────────────────────────────────

// ArmRecurring registers a timer chain that fires the task at each time
// the schedule yields. Re-arming the same job ID replaces the chain.
func (s *Scheduler) ArmRecurring(jobID string, sched cronlib.Schedule, task *megarray.Task) {
	h := newRecurringHandle()
	s.registry.Put(jobID, h)

	if !s.track() {
		s.registry.Cancel(jobID)
		return
	}
	go s.runChain(h, sched, task)

	s.logger.Debug("recurring timer armed", slog.String("job_id", jobID))
}

// DisarmRecurring cancels the timer chain for the given job ID.
func (s *Scheduler) DisarmRecurring(jobID string) {
	if s.registry.Cancel(jobID) {
		s.logger.Debug("recurring timer disarmed", slog.String("job_id", jobID))
	}
}

// runChain sleeps until the next fire time, executes the task, and
// repeats until the handle or the scheduler is stopped.
func (s *Scheduler) runChain(h *recurringHandle, sched cronlib.Schedule, task *megarray.Task) {
	defer s.wg.Done()

	for {
		next := sched.Next(s.clock.Now())
		if next.IsZero() {
			return
		}
		timer := time.NewTimer(next.Sub(s.clock.Now()))

		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-h.stop:
			timer.Stop()
			return
		case <-timer.C:
			s.execute(task)
		}
	}
}

// execute runs a task body through the middleware chain. The task error is
// handled by the chain (logging); fire-and-forget from the timer's view.
func (s *Scheduler) execute(task *megarray.Task) {
	if !s.track() {
		return
	}
	defer s.wg.Done()

	ctx := context.Background()
	if s.mw != nil {
		_ = s.mw(ctx, task, task.Run)
		return
	}
	_ = task.Run(ctx)
}

// track registers one unit of in-flight work with the shutdown WaitGroup.
// It refuses after Stop.
func (s *Scheduler) track() bool {
	s.stopMu.Lock()
	defer s.stopMu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

// ──────────────────────────────────────────────────
// System jobs
// ──────────────────────────────────────────────────

// SweepDue publishes every SCHEDULED content item whose time has passed.
// Failures do not stop the sweep; each outcome is reported. Failed items
// stay SCHEDULED and are retried on the next sweep.
func (s *Scheduler) SweepDue(ctx context.Context) ([]SweepResult, error) {
	due, err := s.store.ListScheduledDue(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("list due content: %w", err)
	}

	results := make([]SweepResult, 0, len(due))
	for _, c := range due {
		_, err := s.lifecycle.Publish(ctx, c.ID)
		if err != nil {
			s.logger.Warn("sweep publish failed",
				slog.String("content_id", c.ID.String()),
				slog.String("error", err.Error()))
		}
		results = append(results, SweepResult{ContentID: c.ID, Err: err})
	}

	if len(results) > 0 {
		s.logger.Info("sweep completed", slog.Int("processed", len(results)))
	}
	return results, nil
}

func (s *Scheduler) runSweep(ctx context.Context) error {
	_, err := s.SweepDue(ctx)
	return err
}

func (s *Scheduler) runTokenRefresh(ctx context.Context) error {
	if s.tokens == nil {
		s.logger.Debug("token refresh skipped, no refresher configured")
		return nil
	}
	n, err := s.tokens.RefreshExpiring(ctx, s.cfg.TokenRefreshWindow)
	if err != nil {
		return fmt.Errorf("refresh expiring tokens: %w", err)
	}
	s.logger.Info("tokens refreshed", slog.Int("count", n))
	return nil
}

func (s *Scheduler) runSessionCleanup(ctx context.Context) error {
	if s.sessions == nil {
		s.logger.Debug("session cleanup skipped, no session store configured")
		return nil
	}
	n, err := s.sessions.DeleteExpiredSessions(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("delete expired sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("expired sessions removed", slog.Int64("count", n))
	}
	return nil
}

// ──────────────────────────────────────────────────
// Reconciliation
// ──────────────────────────────────────────────────

// Reconcile rebuilds the registry from persisted state after a restart:
// one timer per SCHEDULED content item with a future time, one chain per
// ACTIVE recurring job. Overdue content is left for the sweep.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	items, err := s.store.ListScheduledAfter(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("list scheduled content: %w", err)
	}
	for _, c := range items {
		if c.ScheduledFor == nil {
			continue
		}
		s.ArmPublish(c.ID, *c.ScheduledFor)
	}

	armed := 0
	if s.recurring != nil {
		armed, err = s.recurring.ArmActive(ctx)
		if err != nil {
			return fmt.Errorf("arm recurring jobs: %w", err)
		}
	}

	s.logger.Info("reconciliation complete",
		slog.Int("content_timers", len(items)),
		slog.Int("recurring_jobs", armed))
	return nil
}
