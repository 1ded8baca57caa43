package mcp

import (
	"context"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/buhlergroup/chatengine/pkg/tools"
)

// setupTestServer creates a test MCP server with tools and connects it
// to a client via in-memory transports.
func setupTestServer(t *testing.T, serverTools map[string]mcp.ToolHandler) *Client {
	t.Helper()

	server := mcp.NewServer(
		&mcp.Implementation{Name: "test-server", Version: "1.0.0"},
		nil,
	)

	for name, handler := range serverTools {
		server.AddTool(
			&mcp.Tool{
				Name:        name,
				Description: "Test tool: " + name,
				InputSchema: map[string]any{"type": "object"},
			},
			handler,
		)
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()
	go func() {
		_ = server.Run(ctx, serverTransport)
	}()

	client := NewClient(ServerConfig{Name: "test-server"})
	if err := client.ConnectWithTransport(ctx, clientTransport); err != nil {
		t.Fatalf("ConnectWithTransport failed: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

func textTool(text string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	}
}

func TestProvider_Tools(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"get_weather": textTool("sunny"),
		"get_time":    textTool("12:00"),
	})

	p := NewProvider(map[string]*Client{"test-server": client})
	defer p.Close()

	discovered := p.Tools()
	if len(discovered) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(discovered))
	}

	names := map[string]bool{}
	for _, td := range discovered {
		names[td.Name] = true
		if td.Type != "function" {
			t.Errorf("type = %q for tool %q, want function", td.Type, td.Name)
		}
	}
	if !names["get_weather"] || !names["get_time"] {
		t.Errorf("discovered = %v", names)
	}

	// Discovery is cached.
	if len(p.Tools()) != len(discovered) {
		t.Error("cached tools mismatch")
	}
}

func TestProvider_Execute(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"get_weather": textTool("sunny"),
	})

	p := NewProvider(map[string]*Client{"test-server": client})
	defer p.Close()

	result, err := p.Execute(context.Background(), tools.Call{
		ID:        "call_1",
		Name:      "get_weather",
		Arguments: `{}`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("error result: %s", result.Output)
	}
	if result.Output != "sunny" {
		t.Errorf("output = %q", result.Output)
	}
	if result.CallID != "call_1" {
		t.Errorf("CallID = %q", result.CallID)
	}
}

func TestProvider_ExecuteUnknownTool(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"known": textTool("ok"),
	})

	p := NewProvider(map[string]*Client{"test-server": client})
	defer p.Close()

	result, err := p.Execute(context.Background(), tools.Call{ID: "call_1", Name: "unknown"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for unknown tool")
	}
}

func TestProvider_ExecuteInvalidArguments(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"known": textTool("ok"),
	})

	p := NewProvider(map[string]*Client{"test-server": client})
	defer p.Close()

	result, err := p.Execute(context.Background(), tools.Call{
		ID:        "call_1",
		Name:      "known",
		Arguments: `{broken`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for invalid arguments")
	}
}

func TestProvider_ToolErrorResult(t *testing.T) {
	client := setupTestServer(t, map[string]mcp.ToolHandler{
		"failing": func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: "backend unavailable"}},
				IsError: true,
			}, nil
		},
	})

	p := NewProvider(map[string]*Client{"test-server": client})
	defer p.Close()

	result, err := p.Execute(context.Background(), tools.Call{ID: "call_1", Name: "failing", Arguments: "{}"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Error("expected IsError result")
	}
	if result.Output != "backend unavailable" {
		t.Errorf("output = %q", result.Output)
	}
}
