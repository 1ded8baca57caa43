// Package imagegen provides the built-in create_image tool. It calls an
// image generation HTTP API, stores the result in the durable blob store
// and returns inline image markdown the model can weave into its answer.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/buhlergroup/chatengine/pkg/files"
	"github.com/buhlergroup/chatengine/pkg/tools"
	"github.com/buhlergroup/chatengine/pkg/upstream"
)

const toolName = "create_image"

// toolParametersJSON is the JSON Schema for the create_image tool
// parameters. The registry normalizes it into strict mode.
var toolParametersJSON = json.RawMessage(`{"type":"object","properties":{"prompt":{"type":"string","description":"Description of the image to generate"},"size":{"type":"string","description":"Image size, e.g. 1024x1024"}},"required":["prompt"]}`)

// Config holds settings for the image generation backend.
type Config struct {
	// BaseURL of the image generation API.
	BaseURL string

	// APIKey sent as a bearer token.
	APIKey string

	// Model identifier passed to the backend.
	Model string
}

// Provider implements tools.Provider for image generation.
type Provider struct {
	cfg        Config
	blobs      files.BlobStore
	httpClient *http.Client

	generations *prometheus.CounterVec
	duration    prometheus.Histogram
}

// Compile-time check that Provider implements tools.Provider.
var _ tools.Provider = (*Provider)(nil)

// New creates an image generation provider.
func New(cfg Config, blobs files.BlobStore) (*Provider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("imagegen: base URL is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("imagegen: blob store is required")
	}

	generations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatengine_imagegen_generations_total",
			Help: "Total image generations",
		},
		[]string{"status"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatengine_imagegen_duration_seconds",
			Help:    "Image generation duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
		},
	)

	return &Provider{
		cfg:   cfg,
		blobs: blobs,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		generations: generations,
		duration:    duration,
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
			Description: "Generate an image from a text description",
			Parameters:  toolParametersJSON,
			Strict:      true,
		},
	}
}

// Execute runs the create_image tool call and returns inline markdown
// pointing at the durably stored image.
func (p *Provider) Execute(ctx context.Context, call tools.Call) (*tools.Result, error) {
	var args struct {
		Prompt string `json:"prompt"`
		Size   string `json:"size"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		p.generations.WithLabelValues("error").Inc()
		return &tools.Result{CallID: call.ID, Output: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}
	if args.Prompt == "" {
		p.generations.WithLabelValues("error").Inc()
		return &tools.Result{CallID: call.ID, Output: "prompt must not be empty", IsError: true}, nil
	}

	start := time.Now()
	imageData, err := p.generate(ctx, args.Prompt, args.Size)
	p.duration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.generations.WithLabelValues("error").Inc()
		return &tools.Result{CallID: call.ID, Output: fmt.Sprintf("image generation failed: %v", err), IsError: true}, nil
	}

	name := fmt.Sprintf("generated-%d.png", time.Now().UnixNano())
	url, err := p.blobs.Upload(ctx, name, "image/png", imageData)
	if err != nil {
		p.generations.WithLabelValues("error").Inc()
		return &tools.Result{CallID: call.ID, Output: fmt.Sprintf("store image: %v", err), IsError: true}, nil
	}

	p.generations.WithLabelValues("success").Inc()
	return &tools.Result{
		CallID: call.ID,
		Output: fmt.Sprintf("![%s](%s)", args.Prompt, url),
	}, nil
}

// generate calls the image generation API and returns raw image bytes.
func (p *Provider) generate(ctx context.Context, prompt, size string) ([]byte, error) {
	reqBody := map[string]string{
		"prompt": prompt,
		"model":  p.cfg.Model,
	}
	if size != "" {
		reqBody["size"] = size
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/images/generations", bytes.NewReader(body))
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

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var payload struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(payload.Data) == 0 || payload.Data[0].B64JSON == "" {
		return nil, fmt.Errorf("backend returned no image data")
	}

	imageData, err := base64.StdEncoding.DecodeString(payload.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("decode image data: %w", err)
	}
	return imageData, nil
}

// Collectors returns the custom Prometheus metrics for this provider.
func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.generations, p.duration}
}

// Close is a no-op for this provider.
func (p *Provider) Close() error {
	return nil
}
