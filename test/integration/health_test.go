package integration

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	resp := getURL(t, testEnv.BaseURL()+"/healthz")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	// A turn first, so the counters have something to show.
	chat(t, "thread-metrics", "hello")

	resp := getURL(t, testEnv.BaseURL()+"/metrics")
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	for _, metric := range []string{
		"chatengine_requests_total",
		"chatengine_request_duration_seconds",
	} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output is missing %s", metric)
		}
	}
}
