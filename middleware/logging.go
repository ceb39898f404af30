package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmont5/megarray"
)

// Logging returns middleware that logs task start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *megarray.Task, next Handler) error {
		logger.Info("task started",
			slog.String("task_id", t.ID),
			slog.String("description", t.Description),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("task failed",
				slog.String("task_id", t.ID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("task completed",
				slog.String("task_id", t.ID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
