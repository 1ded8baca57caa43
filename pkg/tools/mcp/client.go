package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/buhlergroup/chatengine/pkg/tools"
	"github.com/buhlergroup/chatengine/pkg/upstream"
)

// Client wraps an MCP SDK client and session for a single MCP server
// connection. It handles connection lifecycle, tool discovery and tool
// execution.
type Client struct {
	cfg     ServerConfig
	client  *mcp.Client
	session *mcp.ClientSession

	mu            sync.Mutex
	cachedTools   []upstream.ToolDefinition
	toolsResolved bool
}

// NewClient creates a Client for the given server configuration. Call
// Connect to establish the connection.
func NewClient(cfg ServerConfig) *Client {
	return &Client{cfg: cfg}
}

// Connect establishes the MCP connection to the server, performing the
// protocol handshake.
func (c *Client) Connect(ctx context.Context) error {
	return c.ConnectWithTransport(ctx, nil)
}

// ConnectWithTransport establishes the MCP connection using the given
// transport. If transport is nil, one is created from the server
// configuration. Tests inject in-memory transports here.
func (c *Client) ConnectWithTransport(ctx context.Context, transport mcp.Transport) error {
	c.client = mcp.NewClient(
		&mcp.Implementation{
			Name:    "chatengine",
			Version: "1.0.0",
		},
		&mcp.ClientOptions{
			Capabilities: &mcp.ClientCapabilities{},
		},
	)

	if transport == nil {
		t, err := c.createTransport()
		if err != nil {
			return fmt.Errorf("creating transport for %q: %w", c.cfg.Name, err)
		}
		transport = t
	}

	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server %q: %w", c.cfg.Name, err)
	}
	c.session = session
	return nil
}

// createTransport creates an MCP transport based on the server
// configuration.
func (c *Client) createTransport() (mcp.Transport, error) {
	httpClient := c.buildHTTPClient()

	switch c.cfg.Transport {
	case "sse":
		transport := &mcp.SSEClientTransport{
			Endpoint: c.cfg.URL,
		}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	case "streamable-http", "":
		transport := &mcp.StreamableClientTransport{
			Endpoint: c.cfg.URL,
		}
		if httpClient != nil {
			transport.HTTPClient = httpClient
		}
		return transport, nil

	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.cfg.Transport)
	}
}

// buildHTTPClient returns an HTTP client that injects static headers and
// dynamically obtained auth headers. Returns nil when neither is
// configured.
func (c *Client) buildHTTPClient() *http.Client {
	var source HeaderSource
	if c.cfg.Auth.Type == "oauth_client_credentials" {
		source = NewClientCredentials(c.cfg.Auth)
	}

	if len(c.cfg.Headers) == 0 && source == nil {
		return nil
	}

	return &http.Client{
		Transport: &authAwareTransport{
			base:    http.DefaultTransport,
			headers: c.cfg.Headers,
			source:  source,
		},
	}
}

// authAwareTransport is an http.RoundTripper that adds static headers
// and auth headers to every request. Auth headers win over static ones.
type authAwareTransport struct {
	base    http.RoundTripper
	headers map[string]string
	source  HeaderSource
}

func (t *authAwareTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if t.source != nil {
		authHeaders, err := t.source.Headers(req.Context())
		if err != nil {
			return nil, fmt.Errorf("getting auth headers: %w", err)
		}
		for k, v := range authHeaders {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

// DiscoverTools queries the MCP server for available tools, converts
// them into tool definitions and caches the result.
func (c *Client) DiscoverTools(ctx context.Context) ([]upstream.ToolDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.toolsResolved {
		return c.cachedTools, nil
	}

	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var toolDefs []upstream.ToolDefinition
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("listing tools from %q: %w", c.cfg.Name, err)
		}
		td, convErr := convertTool(tool)
		if convErr != nil {
			return nil, fmt.Errorf("converting tool %q from %q: %w", tool.Name, c.cfg.Name, convErr)
		}
		toolDefs = append(toolDefs, td)
	}

	c.cachedTools = toolDefs
	c.toolsResolved = true
	return toolDefs, nil
}

// CallTool executes a tool call on the MCP server and returns the
// result. Server-side failures become IsError results, never errors, so
// the call/output pairing is preserved.
func (c *Client) CallTool(ctx context.Context, call tools.Call) (*tools.Result, error) {
	if c.session == nil {
		return nil, fmt.Errorf("MCP client %q not connected", c.cfg.Name)
	}

	var args map[string]any
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return &tools.Result{
				CallID:  call.ID,
				Output:  fmt.Sprintf("invalid arguments JSON: %v", err),
				IsError: true,
			}, nil
		}
	}

	params := &mcp.CallToolParams{
		Name:      call.Name,
		Arguments: args,
	}

	result, err := c.session.CallTool(ctx, params)
	if err != nil {
		return &tools.Result{
			CallID:  call.ID,
			Output:  fmt.Sprintf("MCP tool call error: %v", err),
			IsError: true,
		}, nil
	}

	return convertResult(call.ID, result), nil
}

// Close closes the MCP session.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

// convertTool converts an MCP tool into a tool definition. The raw
// server schema is kept here; the registry normalizes it into strict
// mode when it assembles the definition list.
func convertTool(t *mcp.Tool) (upstream.ToolDefinition, error) {
	var params json.RawMessage
	if t.InputSchema != nil {
		data, err := json.Marshal(t.InputSchema)
		if err != nil {
			return upstream.ToolDefinition{}, fmt.Errorf("marshaling input schema: %w", err)
		}
		params = data
	}

	return upstream.ToolDefinition{
		Type:        "function",
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}, nil
}

// convertResult converts an MCP CallToolResult into a tool result,
// concatenating all text content blocks.
func convertResult(callID string, result *mcp.CallToolResult) *tools.Result {
	var output string
	for _, content := range result.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			if output != "" {
				output += "\n"
			}
			output += tc.Text
		}
	}

	return &tools.Result{
		CallID:  callID,
		Output:  output,
		IsError: result.IsError,
	}
}
