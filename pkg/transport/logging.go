package transport

import (
	"context"
	"log/slog"
	"time"
)

// Logging returns middleware that emits one structured log entry per
// turn, including thread ID, request ID, duration, and outcome.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next TurnRunner) TurnRunner {
		return TurnRunnerFunc(func(ctx context.Context, req *ChatRequest, w EventWriter) error {
			start := time.Now()
			requestID := RequestIDFromContext(ctx)

			err := next.RunTurn(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", requestID),
				slog.String("thread_id", req.ThreadID),
				slog.String("user", req.User),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "turn failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "turn completed", attrs...)
			}

			return err
		})
	}
}
