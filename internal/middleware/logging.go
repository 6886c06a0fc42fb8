package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mmynk/mealsync/internal/storage"
)

// Logging returns a middleware that logs every command: its name, user ID,
// duration and any error. Storage write failures are logged as errors; other
// failures are usually user mistakes and are logged as warnings.
func Logging(logger *slog.Logger) Middleware {
	return func(name string, next Handler) Handler {
		return func(ctx context.Context, args []string) error {
			start := time.Now()

			err := next(ctx, args)

			userID := GetUserID(ctx) // empty if the command needs no identity
			duration := time.Since(start).Milliseconds()
			if err != nil {
				var writeErr *storage.WriteError
				if errors.As(err, &writeErr) {
					logger.Error("Command failed",
						"command", name,
						"key", writeErr.Key,
						"error", err,
						"user_id", userID,
						"duration_ms", duration,
					)
				} else {
					logger.Warn("Command error",
						"command", name,
						"error", err,
						"user_id", userID,
						"duration_ms", duration,
					)
				}
			} else {
				logger.Debug("Command ok",
					"command", name,
					"user_id", userID,
					"duration_ms", duration,
				)
			}

			return err
		}
	}
}
