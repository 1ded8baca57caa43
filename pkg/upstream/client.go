package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config holds settings for the upstream client.
type Config struct {
	// BaseURL is the backend endpoint root, e.g. "https://host/v1".
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Timeout bounds the whole streaming call, including the read of the
	// last event. Zero means 300s.
	Timeout time.Duration
}

// Client opens streaming completion calls against the backend.
// Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an upstream client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("upstream: base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 300 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Open issues one streaming completion call carrying the full input list.
// Decoded events are delivered on the returned channel, which is closed
// when the stream ends. Cancelling ctx aborts the in-flight read.
func (c *Client) Open(ctx context.Context, req *StreamRequest) (<-chan Event, error) {
	req.Stream = true

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upstream: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream: request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeErrorResponse(resp)
	}

	ch := make(chan Event, 16)
	go func() {
		defer resp.Body.Close()
		parseSSEStream(ctx, resp.Body, ch)
	}()
	return ch, nil
}

// decodeErrorResponse reads a non-200 response body and classifies it,
// preserving the expired-container condition for the retry path.
func decodeErrorResponse(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("upstream: HTTP %d (unreadable body)", resp.StatusCode)
	}

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && (body.Error.Code != "" || body.Error.Message != "") {
		return classifyBackendError(body.Error.Code, body.Error.Message)
	}
	return fmt.Errorf("upstream: HTTP %d: %s", resp.StatusCode, string(data))
}
