package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"

	"github.com/buhlergroup/chatengine/pkg/upstream"
)

// mockProvider implements Provider for testing.
type mockProvider struct {
	name     string
	toolDefs []upstream.ToolDefinition
	execFn   func(context.Context, Call) (*Result, error)
	closed   bool
}

func (m *mockProvider) Name() string                        { return m.name }
func (m *mockProvider) Tools() []upstream.ToolDefinition    { return m.toolDefs }
func (m *mockProvider) Collectors() []prometheus.Collector  { return nil }

func (m *mockProvider) Execute(ctx context.Context, call Call) (*Result, error) {
	if m.execFn != nil {
		return m.execFn(ctx, call)
	}
	return &Result{CallID: call.ID, Output: "default"}, nil
}

func (m *mockProvider) Close() error {
	m.closed = true
	return nil
}

var _ Provider = (*mockProvider)(nil)

func TestRegistry_Definitions(t *testing.T) {
	reg := NewRegistry(nil)

	p := &mockProvider{
		name: "test-provider",
		toolDefs: []upstream.ToolDefinition{
			{Type: "function", Name: "tool_a", Description: "Tool A"},
			{Type: "function", Name: "tool_b", Description: "Tool B"},
		},
	}
	if err := reg.RegisterProvider(p); err != nil {
		t.Fatalf("RegisterProvider: %v", err)
	}
	if err := reg.RegisterDynamic(Descriptor{Name: "tool_c", Endpoint: "http://example.com"}); err != nil {
		t.Fatalf("RegisterDynamic: %v", err)
	}

	defs := reg.Definitions()
	if len(defs) != 3 {
		t.Fatalf("Definitions() returned %d tools, want 3", len(defs))
	}
	if defs[0].Name != "tool_a" || defs[1].Name != "tool_b" || defs[2].Name != "tool_c" {
		t.Errorf("definition order = %q %q %q", defs[0].Name, defs[1].Name, defs[2].Name)
	}
	if !defs[2].Strict {
		t.Error("dynamic definition not marked strict")
	}
}

func TestRegistry_DuplicateBuiltinIsError(t *testing.T) {
	reg := NewRegistry(nil)

	p := &mockProvider{
		name:     "first",
		toolDefs: []upstream.ToolDefinition{{Type: "function", Name: "dup"}},
	}
	if err := reg.RegisterProvider(p); err != nil {
		t.Fatalf("first RegisterProvider: %v", err)
	}

	q := &mockProvider{
		name:     "second",
		toolDefs: []upstream.ToolDefinition{{Type: "function", Name: "dup"}},
	}
	if err := reg.RegisterProvider(q); err == nil {
		t.Error("expected error for duplicate builtin tool name")
	}

	if err := reg.RegisterDynamic(Descriptor{Name: "dup", Endpoint: "http://example.com"}); err == nil {
		t.Error("expected error for dynamic tool colliding with builtin")
	}
}

func TestRegistry_DynamicReregisterReplacesHeaders(t *testing.T) {
	reg := NewRegistry(nil)

	first := Descriptor{Name: "lookup", Endpoint: "http://a", Headers: map[string]string{"X-Key": "old"}}
	if err := reg.RegisterDynamic(first); err != nil {
		t.Fatalf("first RegisterDynamic: %v", err)
	}

	second := Descriptor{Name: "lookup", Endpoint: "http://b", Headers: map[string]string{"X-Key": "new"}}
	if err := reg.RegisterDynamic(second); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	reg.mu.RLock()
	dt := reg.dynamic["lookup"]
	reg.mu.RUnlock()
	if dt.desc.Endpoint != "http://b" || dt.desc.Headers["X-Key"] != "new" {
		t.Errorf("descriptor not replaced: %+v", dt.desc)
	}

	if len(reg.Definitions()) != 1 {
		t.Errorf("re-register duplicated the definition list")
	}
}

func TestRegistry_UnknownToolReturnsStructuredResult(t *testing.T) {
	reg := NewRegistry(nil)

	result, err := reg.Execute(context.Background(), Call{ID: "call_1", Name: "missing"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError result")
	}
	if result.CallID != "call_1" {
		t.Errorf("CallID = %q, want call_1", result.CallID)
	}
	msg := gjson.Get(result.Output, "error").String()
	if !strings.Contains(msg, "tool not found") {
		t.Errorf("error payload = %q", result.Output)
	}
}

func TestRegistry_ExecuteRoutesToProvider(t *testing.T) {
	reg := NewRegistry(nil)

	p := &mockProvider{
		name:     "echo",
		toolDefs: []upstream.ToolDefinition{{Type: "function", Name: "echo"}},
		execFn: func(_ context.Context, call Call) (*Result, error) {
			var args struct {
				Text string `json:"text"`
			}
			json.Unmarshal([]byte(call.Arguments), &args)
			return &Result{CallID: call.ID, Output: args.Text}, nil
		},
	}
	if err := reg.RegisterProvider(p); err != nil {
		t.Fatalf("RegisterProvider: %v", err)
	}

	result, err := reg.Execute(context.Background(), Call{ID: "call_2", Name: "echo", Arguments: `{"text":"hi"}`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output != "hi" || result.IsError {
		t.Errorf("result = %+v", result)
	}
}

func TestRegistry_PanicRecovery(t *testing.T) {
	reg := NewRegistry(nil)

	p := &mockProvider{
		name:     "bomb",
		toolDefs: []upstream.ToolDefinition{{Type: "function", Name: "bomb"}},
		execFn: func(context.Context, Call) (*Result, error) {
			panic("boom")
		},
	}
	if err := reg.RegisterProvider(p); err != nil {
		t.Fatalf("RegisterProvider: %v", err)
	}

	result, err := reg.Execute(context.Background(), Call{ID: "call_3", Name: "bomb"})
	if err != nil {
		t.Fatalf("Execute returned error after panic: %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatalf("expected structured error result, got %+v", result)
	}
	if result.CallID != "call_3" {
		t.Errorf("CallID = %q", result.CallID)
	}
}

func TestRegistry_Close(t *testing.T) {
	reg := NewRegistry(nil)

	p := &mockProvider{
		name:     "closeme",
		toolDefs: []upstream.ToolDefinition{{Type: "function", Name: "closeme"}},
	}
	if err := reg.RegisterProvider(p); err != nil {
		t.Fatalf("RegisterProvider: %v", err)
	}
	if err := reg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !p.closed {
		t.Error("provider not closed")
	}
}

func TestRegistry_DefinitionsNormalizeProviderSchemas(t *testing.T) {
	reg := NewRegistry(nil)

	p := &mockProvider{
		name: "loose-schemas",
		toolDefs: []upstream.ToolDefinition{{
			Type: "function",
			Name: "lookup",
			Parameters: json.RawMessage(
				`{"type":"object","properties":{"a":{"type":"string"},"b":{"type":"string"}},"required":["a"]}`),
		}},
	}
	if err := reg.RegisterProvider(p); err != nil {
		t.Fatalf("RegisterProvider: %v", err)
	}

	defs := reg.Definitions()
	if len(defs) != 1 {
		t.Fatalf("Definitions() returned %d tools, want 1", len(defs))
	}
	def := defs[0]
	if !def.Strict {
		t.Error("definition not flagged strict")
	}

	schema := gjson.ParseBytes(def.Parameters)
	if ap := schema.Get("additionalProperties"); !ap.Exists() || ap.Bool() {
		t.Errorf("additionalProperties = %v, want false", ap.Value())
	}
	var required []string
	for _, r := range schema.Get("required").Array() {
		required = append(required, r.String())
	}
	if len(required) != 2 || required[0] != "a" || required[1] != "b" {
		t.Errorf("required = %v, want all declared properties [a b]", required)
	}
}
