package megarray

import "time"

// Config holds configuration for the orchestration engine.
type Config struct {
	// SweepSchedule is the cron cadence of the scheduled-content sweep,
	// which publishes any overdue SCHEDULED content.
	SweepSchedule string

	// TokenRefreshSchedule is the cron cadence of the integration token
	// refresh system job.
	TokenRefreshSchedule string

	// SessionCleanupSchedule is the cron cadence of the expired-session
	// cleanup system job.
	SessionCleanupSchedule string

	// TokenRefreshWindow is how far ahead of expiry credentials are
	// refreshed.
	TokenRefreshWindow time.Duration

	// TaskTimeout bounds the execution of a single fired job task.
	// Timeout is treated as a task failure.
	TaskTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight job
	// tasks during graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults. The system job
// cadences match the production schedule: sweep every five minutes, token
// refresh at midnight, session cleanup at 02:00.
func DefaultConfig() Config {
	return Config{
		SweepSchedule:          "*/5 * * * *",
		TokenRefreshSchedule:   "0 0 * * *",
		SessionCleanupSchedule: "0 2 * * *",
		TokenRefreshWindow:     24 * time.Hour,
		TaskTimeout:            2 * time.Minute,
		ShutdownTimeout:        30 * time.Second,
	}
}
