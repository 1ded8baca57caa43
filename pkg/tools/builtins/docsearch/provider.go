// Package docsearch provides the built-in search_documents tool. It
// queries the external document search service and returns formatted
// snippets with source references.
package docsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/buhlergroup/chatengine/pkg/tools"
	"github.com/buhlergroup/chatengine/pkg/upstream"
)

const toolName = "search_documents"

var toolParametersJSON = json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query"}},"required":["query"]}`)

// Snippet is one document search hit.
type Snippet struct {
	Title   string  `json:"title"`
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Config holds settings for the document search service.
type Config struct {
	// BaseURL of the search service.
	BaseURL string

	// APIKey sent as a bearer token.
	APIKey string

	// MaxResults caps the number of returned snippets. Zero means 5.
	MaxResults int
}

// Provider implements tools.Provider for document search.
type Provider struct {
	cfg        Config
	httpClient *http.Client

	queries *prometheus.CounterVec
	hits    prometheus.Histogram
}

var _ tools.Provider = (*Provider)(nil)

// New creates a document search provider.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("docsearch: base URL is required")
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 5
	}

	queries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatengine_docsearch_queries_total",
			Help: "Total document search queries",
		},
		[]string{"status"},
	)
	hits := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatengine_docsearch_results_returned",
			Help:    "Number of document search results returned",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)

	return &Provider{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		queries: queries,
		hits:    hits,
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return toolName
}

// Tools returns the tool definitions contributed by this provider.
func (p *Provider) Tools() []upstream.ToolDefinition {
	return []upstream.ToolDefinition{
		{
			Type:        "function",
			Name:        toolName,
			Description: "Search the document corpus for relevant passages",
			Parameters:  toolParametersJSON,
			Strict:      true,
		},
	}
}

// Execute runs the search_documents tool call.
func (p *Provider) Execute(ctx context.Context, call tools.Call) (*tools.Result, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		p.queries.WithLabelValues("error").Inc()
		return &tools.Result{CallID: call.ID, Output: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	if strings.TrimSpace(args.Query) == "" {
		p.queries.WithLabelValues("error").Inc()
		return &tools.Result{CallID: call.ID, Output: "query must not be empty", IsError: true}, nil
	}

	snippets, err := p.search(ctx, args.Query, call.User)
	if err != nil {
		p.queries.WithLabelValues("error").Inc()
		return &tools.Result{CallID: call.ID, Output: fmt.Sprintf("search failed: %v", err), IsError: true}, nil
	}

	p.queries.WithLabelValues("success").Inc()
	p.hits.Observe(float64(len(snippets)))

	return &tools.Result{CallID: call.ID, Output: formatSnippets(args.Query, snippets)}, nil
}

// search calls the document search service.
func (p *Provider) search(ctx context.Context, query, user string) ([]Snippet, error) {
	body, err := json.Marshal(map[string]any{
		"query": query,
		"top_k": p.cfg.MaxResults,
		"user":  user,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search service returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var payload struct {
		Results []Snippet `json:"results"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payload.Results, nil
}

// formatSnippets builds a human-readable text block from search hits.
func formatSnippets(query string, snippets []Snippet) string {
	if len(snippets) == 0 {
		return fmt.Sprintf("No documents found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Document passages for %q:\n", query)
	for i, s := range snippets {
		fmt.Fprintf(&b, "\n%d. %s\n   Source: %s\n   %s\n", i+1, s.Title, s.Source, s.Content)
	}
	return b.String()
}

// Collectors returns the custom Prometheus metrics for this provider.
func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.queries, p.hits}
}

// Close is a no-op for this provider.
func (p *Provider) Close() error {
	return nil
}
