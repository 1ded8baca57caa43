package transport

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// RequestID returns middleware that assigns a unique request ID to each
// turn. If the incoming context already carries a request ID (set by the
// HTTP layer from the X-Request-ID header), that value is kept.
func RequestID() Middleware {
	return func(next TurnRunner) TurnRunner {
		return TurnRunnerFunc(func(ctx context.Context, req *ChatRequest, w EventWriter) error {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, generateRequestID())
			}
			return next.RunTurn(ctx, req, w)
		})
	}
}

// generateRequestID creates a new unique request ID as a hex string.
func generateRequestID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
