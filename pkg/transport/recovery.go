package transport

import (
	"context"
	"fmt"

	"github.com/buhlergroup/chatengine/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to server errors. The server keeps accepting new
// requests after a recovered panic.
func Recovery() Middleware {
	return func(next TurnRunner) TurnRunner {
		return TurnRunnerFunc(func(ctx context.Context, req *ChatRequest, w EventWriter) (retErr error) {
			defer func() {
				if r := recover(); r != nil {
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.RunTurn(ctx, req, w)
		})
	}
}
