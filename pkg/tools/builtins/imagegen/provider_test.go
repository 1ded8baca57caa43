package imagegen

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/buhlergroup/chatengine/pkg/tools"
)

// memBlobs is an in-memory files.BlobStore for tests.
type memBlobs struct {
	uploads map[string][]byte
}

func (m *memBlobs) Upload(_ context.Context, name, _ string, data []byte) (string, error) {
	if m.uploads == nil {
		m.uploads = make(map[string][]byte)
	}
	m.uploads[name] = data
	return "https://cdn.example.com/" + name, nil
}

func TestProvider_Execute(t *testing.T) {
	pngBytes := []byte{0x89, 'P', 'N', 'G'}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprintf(w, `{"data":[{"b64_json":%q}]}`, base64.StdEncoding.EncodeToString(pngBytes))
	}))
	defer server.Close()

	blobs := &memBlobs{}
	p, err := New(Config{BaseURL: server.URL, Model: "img-1"}, blobs)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := p.Execute(context.Background(), tools.Call{
		ID:        "call_1",
		Name:      "create_image",
		Arguments: `{"prompt":"a cat"}`,
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.IsError {
		t.Fatalf("error result: %s", result.Output)
	}
	if !strings.HasPrefix(result.Output, "![a cat](https://cdn.example.com/") {
		t.Errorf("output = %q", result.Output)
	}
	if len(blobs.uploads) != 1 {
		t.Errorf("uploads = %d, want 1", len(blobs.uploads))
	}
	for _, data := range blobs.uploads {
		if string(data) != string(pngBytes) {
			t.Errorf("stored bytes = %v", data)
		}
	}
}

func TestProvider_ExecuteEmptyPrompt(t *testing.T) {
	p, err := New(Config{BaseURL: "http://unused"}, &memBlobs{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := p.Execute(context.Background(), tools.Call{ID: "call_1", Arguments: `{"prompt":""}`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for empty prompt")
	}
}

func TestProvider_ExecuteBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	p, err := New(Config{BaseURL: server.URL}, &memBlobs{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	result, err := p.Execute(context.Background(), tools.Call{ID: "call_1", Arguments: `{"prompt":"a cat"}`})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !result.IsError {
		t.Error("expected error result for backend failure")
	}
	if result.CallID != "call_1" {
		t.Errorf("CallID = %q", result.CallID)
	}
}
