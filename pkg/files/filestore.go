package files

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// FileStoreClient downloads generated files from the backend file store.
type FileStoreClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ FileStore = (*FileStoreClient)(nil)

// NewFileStoreClient creates a file store client.
func NewFileStoreClient(baseURL, apiKey string) (*FileStoreClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("files: file store base URL is required")
	}
	return &FileStoreClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Download fetches a stored file's content by file ID.
func (c *FileStoreClient) Download(ctx context.Context, fileID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/files/%s/content", c.baseURL, url.PathEscape(fileID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("files: create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("files: file store request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("files: read file store response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("files: file store returned HTTP %d for %s: %s", resp.StatusCode, fileID, string(data))
	}
	return data, nil
}
