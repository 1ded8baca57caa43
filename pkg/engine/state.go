package engine

import (
	"context"
	"encoding/json"

	"github.com/buhlergroup/chatengine/pkg/api"
	"github.com/buhlergroup/chatengine/pkg/storage"
	"github.com/buhlergroup/chatengine/pkg/tools"
	"github.com/buhlergroup/chatengine/pkg/upstream"
)

// Streamer opens one upstream streaming call. *upstream.Client implements
// it; tests substitute scripted streams.
type Streamer interface {
	Open(ctx context.Context, req *upstream.StreamRequest) (<-chan upstream.Event, error)
}

// Request carries the immutable per-turn context: who is asking, in which
// thread, with what text, and which auxiliary headers tool calls should
// forward. It never changes after the turn starts.
type Request struct {
	// ThreadID identifies the conversation thread.
	ThreadID string

	// Text is the user's message for this turn.
	Text string

	// ImageURL optionally attaches an image part to the user message.
	ImageURL string

	// User identifies the requesting user for tool identity assertions
	// and upstream attribution.
	User string

	// ToolHeaders are per-request headers forwarded to dynamic tool
	// endpoints (e.g. resolved secrets).
	ToolHeaders map[string]string

	// History holds the prior turns of the thread, oldest first.
	History []upstream.InputItem
}

// Conversation owns the append-only input item list for one logical turn
// and issues the upstream stream requests. The MessageID is minted once
// and reused across every continuation stream of the turn.
type Conversation struct {
	MessageID string

	req      Request
	cfg      Config
	streamer Streamer
	tools    []upstream.ToolDefinition
	items    []upstream.InputItem
}

// NewConversation seeds the input list with the system item, prior turns,
// and the new user item.
func NewConversation(req Request, cfg Config, streamer Streamer, defs []upstream.ToolDefinition) *Conversation {
	items := make([]upstream.InputItem, 0, len(req.History)+2)
	if cfg.SystemPrompt != "" {
		items = append(items, upstream.TextMessage("system", cfg.SystemPrompt))
	}
	items = append(items, req.History...)

	user := upstream.TextMessage("user", req.Text)
	if req.ImageURL != "" {
		user.Content = append(user.Content, upstream.ContentPart{
			Type:     "input_image",
			ImageURL: req.ImageURL,
		})
	}
	items = append(items, user)

	return &Conversation{
		MessageID: api.NewMessageID(),
		req:       req,
		cfg:       cfg,
		streamer:  streamer,
		tools:     defs,
		items:     items,
	}
}

// Start issues the first upstream stream of the turn.
func (c *Conversation) Start(ctx context.Context) (<-chan upstream.Event, error) {
	return c.streamer.Open(ctx, c.buildRequest())
}

// Continue issues a fresh upstream stream carrying the input list as
// mutated by completed tool calls. The upstream protocol has no mid-stream
// resumption, so continuation means a new stream with full history.
func (c *Conversation) Continue(ctx context.Context) (<-chan upstream.Event, error) {
	return c.streamer.Open(ctx, c.buildRequest())
}

// AppendFunctionResult appends the function_call item and its
// function_call_output as an atomic pair. A failed dispatch is folded
// into a structured error payload so the model always sees a matched
// call/output, never a dangling call.
func (c *Conversation) AppendFunctionResult(rec *storage.ToolCallRecord, result *tools.Result, execErr error) {
	output := resultOutput(result, execErr)
	rec.Output = output
	rec.IsError = execErr != nil || (result != nil && result.IsError)

	c.items = append(c.items,
		upstream.FunctionCallItem(rec.CallID, rec.Name, rec.Arguments),
		upstream.FunctionCallOutputItem(rec.CallID, output),
	)
}

// Items returns the current input list. Exposed for tests and debugging.
func (c *Conversation) Items() []upstream.InputItem {
	return c.items
}

func (c *Conversation) buildRequest() *upstream.StreamRequest {
	req := &upstream.StreamRequest{
		Model:       c.cfg.Model,
		Input:       c.items,
		Tools:       c.tools,
		Stream:      true,
		Temperature: c.cfg.Temperature,
		Reasoning:   c.cfg.Reasoning,
		User:        c.req.User,
	}
	if c.cfg.MaxOutputTokens > 0 {
		n := c.cfg.MaxOutputTokens
		req.MaxOutputTokens = &n
	}
	return req
}

// resultOutput extracts the output string for the conversation input,
// converting a dispatch error into a structured payload.
func resultOutput(result *tools.Result, execErr error) string {
	if execErr != nil {
		payload, _ := json.Marshal(struct {
			Error string `json:"error"`
		}{execErr.Error()})
		return string(payload)
	}
	if result == nil {
		return `{"error":"tool produced no output"}`
	}
	return result.Output
}
