package files

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/buhlergroup/chatengine/pkg/upstream"
)

// SandboxClient downloads files from the execution container's REST API.
type SandboxClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Compile-time check that SandboxClient implements ContainerFiles.
var _ ContainerFiles = (*SandboxClient)(nil)

// NewSandboxClient creates a container file client.
func NewSandboxClient(baseURL, apiKey string) (*SandboxClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("files: sandbox base URL is required")
	}
	return &SandboxClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// DownloadFile fetches a container file's content by file ID.
func (c *SandboxClient) DownloadFile(ctx context.Context, containerID, fileID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/containers/%s/files/%s/content",
		c.baseURL, url.PathEscape(containerID), url.PathEscape(fileID))
	return c.get(ctx, containerID, endpoint)
}

// DownloadPath fetches a container file's content by absolute sandbox
// path.
func (c *SandboxClient) DownloadPath(ctx context.Context, containerID, sandboxPath string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/containers/%s/files/content?path=%s",
		c.baseURL, url.PathEscape(containerID), url.QueryEscape(sandboxPath))
	return c.get(ctx, containerID, endpoint)
}

func (c *SandboxClient) get(ctx context.Context, containerID, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("files: create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("files: container request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("files: read container response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return data, nil
	case isExpiredResponse(resp.StatusCode, data):
		return nil, fmt.Errorf("files: container %s: %w", containerID, upstream.ErrResourceExpired)
	default:
		return nil, fmt.Errorf("files: container %s returned HTTP %d: %s", containerID, resp.StatusCode, string(data))
	}
}

// isExpiredResponse detects the stale-container shape: 404 or 410 with
// the expired error code, or a bare 410.
func isExpiredResponse(status int, body []byte) bool {
	if status != http.StatusNotFound && status != http.StatusGone {
		return false
	}
	if status == http.StatusGone {
		return true
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return false
	}
	return payload.Error.Code == "container_expired"
}
