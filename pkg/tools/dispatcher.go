package tools

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/buhlergroup/chatengine/pkg/upstream"
)

// Call represents a model's request to invoke a tool.
type Call struct {
	// ID is the unique call identifier (e.g. "call_abc123").
	ID string

	// Name is the tool function name.
	Name string

	// Arguments is the JSON-encoded arguments string.
	Arguments string

	// User identifies the requesting user; dynamic tool calls carry it
	// outward as a signed identity assertion.
	User string

	// Headers are per-request context headers forwarded to dynamic tool
	// endpoints. They override a descriptor's static headers but never
	// the signed identity header.
	Headers map[string]string
}

// Result represents the output of a tool execution. An IsError result is
// still a valid output: it is appended to the conversation input so the
// model can self-correct.
type Result struct {
	// CallID matches the originating Call.ID.
	CallID string

	// Output is the tool output content.
	Output string

	// IsError indicates that the output is an error payload.
	IsError bool
}

// Dispatcher routes tool calls to their handlers. Implementations must be
// safe for concurrent readers: multiple request flows share one dispatcher.
type Dispatcher interface {
	// Definitions returns the tool definitions to offer the model,
	// schemas already normalized into strict mode.
	Definitions() []upstream.ToolDefinition

	// CanExecute reports whether the named tool is registered.
	CanExecute(name string) bool

	// Execute runs the tool and returns the result. Unknown tools and
	// handler failures produce an IsError result, not an error: the
	// call/output pairing must survive every failure mode.
	Execute(ctx context.Context, call Call) (*Result, error)
}

// Provider is a pluggable built-in tool provider. Each provider
// contributes tool definitions, an execution handler, and optional
// Prometheus collectors.
type Provider interface {
	// Name returns a unique identifier for this provider.
	Name() string

	// Tools returns the tool definitions this provider contributes.
	Tools() []upstream.ToolDefinition

	// Execute runs a tool call and returns the result.
	Execute(ctx context.Context, call Call) (*Result, error)

	// Collectors returns Prometheus collectors for provider-specific
	// metrics.
	Collectors() []prometheus.Collector

	// Close releases any resources held by the provider.
	Close() error
}
