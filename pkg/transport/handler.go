package transport

import (
	"context"

	"github.com/buhlergroup/chatengine/pkg/tools"
)

// ChatRequest is the decoded body of a chat turn request.
type ChatRequest struct {
	// ThreadID identifies the conversation thread. Required.
	ThreadID string `json:"threadId"`

	// Message is the user's text for this turn. Required.
	Message string `json:"message"`

	// ImageURL optionally attaches an image to the message.
	ImageURL string `json:"imageUrl,omitempty"`

	// User identifies the requesting user.
	User string `json:"user,omitempty"`

	// Tools are dynamic tool descriptors registered for this request.
	Tools []tools.Descriptor `json:"tools,omitempty"`

	// ToolHeaders are per-request headers forwarded to dynamic tool
	// endpoints, e.g. resolved secrets.
	ToolHeaders map[string]string `json:"toolHeaders,omitempty"`
}

// TurnRunner conducts one conversation turn, writing the outward event
// stream through the EventWriter. It is the contract between the
// transport layer and the conversation engine.
type TurnRunner interface {
	RunTurn(ctx context.Context, req *ChatRequest, w EventWriter) error
}

// TurnRunnerFunc adapts a function to the TurnRunner interface.
type TurnRunnerFunc func(ctx context.Context, req *ChatRequest, w EventWriter) error

// RunTurn calls f.
func (f TurnRunnerFunc) RunTurn(ctx context.Context, req *ChatRequest, w EventWriter) error {
	return f(ctx, req, w)
}

// Middleware wraps a TurnRunner to add cross-cutting behavior.
// Middleware is applied in order: the first middleware in the chain is
// the outermost wrapper.
type Middleware func(TurnRunner) TurnRunner

// Chain composes multiple middleware into a single middleware.
// Chain(a, b, c) produces a(b(c(handler))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next TurnRunner) TurnRunner {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// requestIDKeyType is the context key type for request IDs.
type requestIDKeyType struct{}

var requestIDKey = requestIDKeyType{}

// RequestIDFromContext extracts the request ID from the context.
// Returns an empty string if no request ID is set.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a new context with the given request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
