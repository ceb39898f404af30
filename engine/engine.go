// Package engine wires all megarray subsystems together: store, content
// lifecycle, scheduler, recurring job manager, platform limiter, and the
// task middleware chain.
//
// This package exists to break import cycles: content and schedule talk to
// each other through small interfaces (content.Armer, schedule.Lifecycle),
// and the engine layer plugs the concrete implementations together.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/mmont5/megarray"
	"github.com/mmont5/megarray/content"
	mw "github.com/mmont5/megarray/middleware"
	"github.com/mmont5/megarray/platform"
	"github.com/mmont5/megarray/recurring"
	"github.com/mmont5/megarray/schedule"
	"github.com/mmont5/megarray/store"
)

// Engine is the assembled orchestration core. Build one with New, call
// Start to reconcile persisted state and arm the system jobs, and Stop to
// shut down cleanly.
type Engine struct {
	cfg    megarray.Config
	clock  megarray.Clock
	logger *slog.Logger

	st        store.Store
	publisher content.Publisher
	generator recurring.Generator

	limiter   *platform.Limiter
	registry  *schedule.Registry
	scheduler *schedule.Scheduler
	contents  *content.Service
	recurMgr  *recurring.Manager

	platformConfigs []platform.Config
	orgConfigs      []platform.OrgConfig
	tokenRefresher  schedule.TokenRefresher
	mws             []mw.Middleware

	// OpenTelemetry providers (optional; nil means middleware is omitted).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. Defaults to a text handler on stderr.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithConfig sets the engine configuration. Defaults to DefaultConfig().
func WithConfig(cfg megarray.Config) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithClock sets the time source. Defaults to the system clock.
func WithClock(c megarray.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithPlatformLimits registers per-platform rate limiting and concurrency
// configurations. Platforms not listed have no limits.
func WithPlatformLimits(configs ...platform.Config) Option {
	return func(e *Engine) {
		e.platformConfigs = append(e.platformConfigs, configs...)
	}
}

// WithOrgLimits registers per-organization limits on specific platforms.
func WithOrgLimits(configs ...platform.OrgConfig) Option {
	return func(e *Engine) {
		e.orgConfigs = append(e.orgConfigs, configs...)
	}
}

// WithTokenRefresher wires the collaborator the token-refresh system job
// delegates to. Without it the job logs a skip.
func WithTokenRefresher(tr schedule.TokenRefresher) Option {
	return func(e *Engine) { e.tokenRefresher = tr }
}

// WithMiddleware appends extra middleware to the task chain, after the
// built-in recover/timeout/logging stages.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithTracerProvider enables the tracing middleware using the given
// provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider enables the metrics middleware using the given
// provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// New assembles an Engine. The store and publisher are required; the
// generator may be nil when no recurring jobs are used, in which case
// creating one fails with megarray.ErrNoGenerator.
func New(st store.Store, publisher content.Publisher, generator recurring.Generator, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, megarray.ErrNoStore
	}
	if publisher == nil {
		return nil, megarray.ErrNoPublisher
	}

	e := &Engine{
		cfg:       megarray.DefaultConfig(),
		clock:     megarray.SystemClock(),
		st:        st,
		publisher: publisher,
		generator: generator,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	// Publishes flow through the platform limiter so scheduled fires and
	// direct calls share the same limits.
	e.limiter = platform.NewLimiter(e.platformConfigs...)
	for _, oc := range e.orgConfigs {
		e.limiter.SetOrgConfig(oc)
	}
	pub := e.limiter.WrapPublisher(e.publisher)

	chain := []mw.Middleware{
		mw.Recover(e.logger),
		mw.Timeout(e.logger),
		mw.Logging(e.logger),
	}
	if e.meterProvider != nil {
		chain = append(chain, mw.MetricsWithMeter(e.meterProvider.Meter("megarray")))
	}
	if e.tracerProvider != nil {
		chain = append(chain, mw.TracingWithTracer(e.tracerProvider.Tracer("megarray")))
	}
	chain = append(chain, e.mws...)

	e.registry = schedule.NewRegistry()
	e.scheduler = schedule.NewScheduler(e.registry, e.st, e.clock, e.cfg, e.logger,
		schedule.WithMiddleware(mw.Chain(chain...)),
		schedule.WithSessionStore(e.st),
		schedule.WithTokenRefresher(e.tokenRefresher),
	)

	e.contents = content.NewService(e.st, pub, e.clock, e.logger)
	e.contents.SetArmer(e.scheduler)
	e.scheduler.SetLifecycle(e.contents)

	if e.generator != nil {
		e.recurMgr = recurring.NewManager(e.st, e.generator, e.contents, e.scheduler, e.clock, e.cfg, e.logger)
		e.scheduler.SetRecurringSource(e.recurMgr)
	}

	return e, nil
}

// Start reconciles persisted state into armed timers and registers the
// system maintenance jobs.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.scheduler.Reconcile(ctx); err != nil {
		return fmt.Errorf("engine: reconcile: %w", err)
	}
	if err := e.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("engine: start scheduler: %w", err)
	}
	e.logger.Info("engine started")
	return nil
}

// Stop cancels all timers and waits for in-flight tasks.
func (e *Engine) Stop(ctx context.Context) error {
	if err := e.scheduler.Stop(ctx); err != nil {
		return fmt.Errorf("engine: stop scheduler: %w", err)
	}
	e.logger.Info("engine stopped")
	return nil
}

// Content returns the content lifecycle service.
func (e *Engine) Content() *content.Service {
	return e.contents
}

// Scheduler returns the timer scheduler.
func (e *Engine) Scheduler() *schedule.Scheduler {
	return e.scheduler
}

// Recurring returns the recurring job manager, or an error when no
// generator was configured.
func (e *Engine) Recurring() (*recurring.Manager, error) {
	if e.recurMgr == nil {
		return nil, megarray.ErrNoGenerator
	}
	return e.recurMgr, nil
}

// Limiter returns the platform publish limiter.
func (e *Engine) Limiter() *platform.Limiter {
	return e.limiter
}

// Registry returns the job registry for introspection.
func (e *Engine) Registry() *schedule.Registry {
	return e.registry
}

// Store returns the backing store.
func (e *Engine) Store() store.Store {
	return e.st
}
