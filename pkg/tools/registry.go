package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/sjson"

	"github.com/buhlergroup/chatengine/pkg/upstream"
)

// Prometheus metrics for tool execution.
var (
	toolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatengine_tool_executions_total",
			Help: "Total tool executions",
		},
		[]string{"kind", "tool_name", "status"},
	)

	toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatengine_tool_duration_seconds",
			Help:    "Tool execution duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind", "tool_name"},
	)
)

func init() {
	prometheus.MustRegister(toolExecutions, toolDuration)
}

// Registry is the dispatcher implementation. Each server process (or
// request scope, when dynamic tools differ per request) constructs its
// own instance: there is no global mutable registry. Registration happens
// during setup; execution takes only read locks.
type Registry struct {
	mu sync.RWMutex

	// providers stores built-in providers in insertion order.
	providers []Provider

	// builtins maps tool name to the provider that owns it.
	builtins map[string]Provider

	// dynamic maps tool name to an HTTP-backed descriptor. Unlike
	// builtins, dynamic entries may be re-registered with fresh headers.
	dynamic map[string]*dynamicTool

	// dynamicOrder preserves registration order for Definitions.
	dynamicOrder []string

	executor *dynamicExecutor
}

// Compile-time check that Registry implements Dispatcher.
var _ Dispatcher = (*Registry)(nil)

// NewRegistry creates an empty registry. The signer, when non-nil, is
// used to attach a signed user identity header to dynamic tool calls.
func NewRegistry(signer *IdentitySigner) *Registry {
	return &Registry{
		builtins: make(map[string]Provider),
		dynamic:  make(map[string]*dynamicTool),
		executor: newDynamicExecutor(signer),
	}
}

// RegisterProvider adds a built-in provider. A tool name already claimed
// by any provider or dynamic descriptor is an error: built-ins are wired
// once at startup and a duplicate means misconfiguration.
//
// Provider-specific Prometheus collectors are registered as a side
// effect.
func (r *Registry) RegisterProvider(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs := p.Tools()
	for _, td := range defs {
		if _, ok := r.builtins[td.Name]; ok {
			return fmt.Errorf("tools: %q is already registered", td.Name)
		}
		if _, ok := r.dynamic[td.Name]; ok {
			return fmt.Errorf("tools: %q is already registered as a dynamic tool", td.Name)
		}
	}

	r.providers = append(r.providers, p)
	for _, td := range defs {
		r.builtins[td.Name] = p
	}

	for _, c := range p.Collectors() {
		if err := prometheus.Register(c); err != nil {
			// Already registered is not worth crashing for.
			slog.Debug("collector already registered", "provider", p.Name(), "error", err)
		}
	}

	slog.Info("registered builtin provider", "provider", p.Name(), "tools", len(defs))
	return nil
}

// RegisterDynamic adds an HTTP-backed tool descriptor. Re-registering an
// existing dynamic tool replaces it, headers included: clients resend
// their descriptors on every request. Colliding with a built-in is an
// error. The parameter schema is normalized into strict mode here, once.
func (r *Registry) RegisterDynamic(d Descriptor) error {
	if err := d.validate(); err != nil {
		return err
	}

	params, err := NormalizeStrict(d.Parameters)
	if err != nil {
		return fmt.Errorf("tools: normalize schema for %q: %w", d.Name, err)
	}
	d.Parameters = params

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.builtins[d.Name]; ok {
		return fmt.Errorf("tools: %q is already registered as a builtin", d.Name)
	}
	if _, ok := r.dynamic[d.Name]; !ok {
		r.dynamicOrder = append(r.dynamicOrder, d.Name)
	}
	r.dynamic[d.Name] = &dynamicTool{desc: d}

	slog.Debug("registered dynamic tool", "tool", d.Name, "endpoint", d.Endpoint)
	return nil
}

// Definitions returns all registered tool definitions: built-ins in
// provider insertion order, then dynamic tools in registration order.
// Provider schemas are normalized into strict mode here rather than at
// registration because some providers discover their tools lazily.
func (r *Registry) Definitions() []upstream.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []upstream.ToolDefinition
	for _, p := range r.providers {
		for _, td := range p.Tools() {
			params, err := NormalizeStrict(td.Parameters)
			if err != nil {
				slog.Warn("tool schema is not valid JSON, offering as-is",
					"tool", td.Name, "error", err)
			} else {
				td.Parameters = params
			}
			td.Strict = true
			defs = append(defs, td)
		}
	}
	for _, name := range r.dynamicOrder {
		defs = append(defs, r.dynamic[name].definition())
	}
	return defs
}

// CanExecute reports whether the named tool is registered.
func (r *Registry) CanExecute(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, builtin := r.builtins[name]
	_, dyn := r.dynamic[name]
	return builtin || dyn
}

// Execute routes the call to its handler, records metrics, and recovers
// from handler panics. An unknown tool name yields a structured error
// result so the caller can still append the call/output pair.
func (r *Registry) Execute(ctx context.Context, call Call) (result *Result, err error) {
	r.mu.RLock()
	p, isBuiltin := r.builtins[call.Name]
	dt, isDynamic := r.dynamic[call.Name]
	r.mu.RUnlock()

	if !isBuiltin && !isDynamic {
		toolExecutions.WithLabelValues("unknown", call.Name, "not_found").Inc()
		return errorResult(call.ID, fmt.Sprintf("tool not found: %q", call.Name)), nil
	}

	kind := "builtin"
	if isDynamic {
		kind = "dynamic"
	}
	start := time.Now()

	// Recover from panics inside the handler.
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("tool handler panicked", "tool", call.Name, "panic", rec)
			result = errorResult(call.ID, fmt.Sprintf("internal error: tool %q panicked", call.Name))
			err = nil

			toolExecutions.WithLabelValues(kind, call.Name, "panic").Inc()
			toolDuration.WithLabelValues(kind, call.Name).Observe(time.Since(start).Seconds())
		}
	}()

	if isBuiltin {
		result, err = p.Execute(ctx, call)
	} else {
		result, err = r.executor.execute(ctx, dt.desc, call)
	}
	duration := time.Since(start).Seconds()

	status := "success"
	if err != nil {
		status = "error"
	} else if result != nil && result.IsError {
		status = "tool_error"
	}

	toolExecutions.WithLabelValues(kind, call.Name, status).Inc()
	toolDuration.WithLabelValues(kind, call.Name).Observe(duration)

	return result, err
}

// Close closes all registered providers, returning the last error
// encountered.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			slog.Warn("failed to close tool provider", "provider", p.Name(), "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// errorResult builds a structured error result. The payload is JSON so
// the model receives a machine-readable shape, not a bare string.
func errorResult(callID, message string) *Result {
	payload, err := sjson.Set("{}", "error", message)
	if err != nil {
		payload = `{"error":"tool execution failed"}`
	}
	return &Result{CallID: callID, Output: payload, IsError: true}
}
