package files

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// BlobClient uploads files to the durable blob store over HTTP. The
// store keeps uploaded objects addressable by name, so rewritten links
// stay valid after the conversation's execution container is gone.
type BlobClient struct {
	baseURL    string
	publicURL  string
	apiKey     string
	httpClient *http.Client
}

var _ BlobStore = (*BlobClient)(nil)

// NewBlobClient creates a blob store client. publicURL, when non-empty,
// overrides baseURL as the prefix of returned URLs (the store may be
// fronted by a CDN).
func NewBlobClient(baseURL, publicURL, apiKey string) (*BlobClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("files: blob store base URL is required")
	}
	if publicURL == "" {
		publicURL = baseURL
	}
	return &BlobClient{
		baseURL:   baseURL,
		publicURL: publicURL,
		apiKey:    apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// Upload stores the bytes under the given name and returns the durable
// URL. If the store's response carries an explicit URL, that one wins.
func (c *BlobClient) Upload(ctx context.Context, name string, contentType string, data []byte) (string, error) {
	endpoint := c.baseURL + "/blobs/" + url.PathEscape(name)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("files: create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("files: blob upload failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", fmt.Errorf("files: read upload response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("files: blob store returned HTTP %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.URL != "" {
		return payload.URL, nil
	}
	return c.publicURL + "/blobs/" + url.PathEscape(name), nil
}
