package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/buhlergroup/chatengine/pkg/tools"
	"github.com/buhlergroup/chatengine/pkg/upstream"
)

// Provider implements tools.Provider for MCP server tools. It manages
// connections to multiple MCP servers, discovers their tools and routes
// calls to the right server.
type Provider struct {
	mu sync.RWMutex

	// clients maps server name to Client.
	clients map[string]*Client

	// toolToServer maps tool name to the server that provides it.
	toolToServer map[string]string

	// discovered tracks whether lazy tool discovery has run.
	discovered bool

	calls *prometheus.CounterVec
}

// Ensure Provider implements tools.Provider at compile time.
var _ tools.Provider = (*Provider)(nil)

// NewProvider creates a Provider over the given connected clients.
func NewProvider(clients map[string]*Client) *Provider {
	return &Provider{
		clients:      clients,
		toolToServer: make(map[string]string),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatengine_mcp_calls_total",
				Help: "Total MCP tool calls",
			},
			[]string{"server", "status"},
		),
	}
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return "mcp"
}

// Tools returns all tools discovered from connected MCP servers,
// triggering lazy discovery on first use.
func (p *Provider) Tools() []upstream.ToolDefinition {
	p.ensureDiscovered()

	p.mu.RLock()
	defer p.mu.RUnlock()

	var allTools []upstream.ToolDefinition
	for _, client := range p.clients {
		client.mu.Lock()
		allTools = append(allTools, client.cachedTools...)
		client.mu.Unlock()
	}
	return allTools
}

// Execute routes the tool call to the MCP server that provides it.
func (p *Provider) Execute(ctx context.Context, call tools.Call) (*tools.Result, error) {
	p.ensureDiscovered()

	p.mu.RLock()
	serverName, ok := p.toolToServer[call.Name]
	if !ok {
		p.mu.RUnlock()
		return &tools.Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("no MCP server provides tool %q", call.Name),
			IsError: true,
		}, nil
	}
	client := p.clients[serverName]
	p.mu.RUnlock()

	result, err := client.CallTool(ctx, call)

	status := "success"
	if err != nil {
		status = "error"
	} else if result != nil && result.IsError {
		status = "tool_error"
	}
	p.calls.WithLabelValues(serverName, status).Inc()

	return result, err
}

// Collectors returns the Prometheus metrics for this provider.
func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.calls}
}

// Close closes all MCP client connections.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for name, client := range p.clients {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close MCP client", "server", name, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// ensureDiscovered triggers tool discovery if it hasn't run yet. Servers
// that fail discovery are skipped, not fatal: the rest of the tools stay
// usable.
func (p *Provider) ensureDiscovered() {
	p.mu.RLock()
	if p.discovered {
		p.mu.RUnlock()
		return
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.discovered {
		return
	}

	ctx := context.Background()
	for name, client := range p.clients {
		toolDefs, err := client.DiscoverTools(ctx)
		if err != nil {
			slog.Error("failed to discover tools from MCP server", "server", name, "error", err)
			continue
		}

		for _, td := range toolDefs {
			if _, exists := p.toolToServer[td.Name]; exists {
				slog.Warn("duplicate MCP tool name, using first provider", "tool", td.Name, "server", name)
				continue
			}
			p.toolToServer[td.Name] = name
		}

		slog.Info("discovered MCP tools", "server", name, "count", len(toolDefs))
	}

	p.discovered = true
}
