package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/buhlergroup/chatengine/pkg/api"
	"github.com/buhlergroup/chatengine/pkg/transport"
)

func TestWriteEventSSEFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEEventWriter(rec)

	event := api.ContentEvent("msg_001", "Hello")
	if err := w.WriteEvent(context.Background(), event); err != nil {
		t.Fatalf("WriteEvent error: %v", err)
	}

	body := rec.Body.String()

	// Check SSE format: event: {type}\ndata: {json}\n\n
	if !strings.Contains(body, "event: content\n") {
		t.Errorf("missing event type line in:\n%s", body)
	}
	if !strings.Contains(body, "data: ") {
		t.Errorf("missing data line in:\n%s", body)
	}

	// Extract and parse the JSON data.
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "data: ") {
			jsonStr := strings.TrimPrefix(line, "data: ")
			var got struct {
				ID   string `json:"id"`
				Text string `json:"text"`
			}
			if err := json.Unmarshal([]byte(jsonStr), &got); err != nil {
				t.Fatalf("failed to parse event JSON: %v", err)
			}
			if got.ID != "msg_001" {
				t.Errorf("id = %q, want %q", got.ID, "msg_001")
			}
			if got.Text != "Hello" {
				t.Errorf("text = %q, want %q", got.Text, "Hello")
			}
		}
	}
}

func TestWriteEventSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEEventWriter(rec)

	w.WriteEvent(context.Background(), api.ContentEvent("msg_001", "hi"))

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/event-stream")
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want %q", cc, "no-cache")
	}
	if conn := rec.Header().Get("Connection"); conn != "keep-alive" {
		t.Errorf("Connection = %q, want %q", conn, "keep-alive")
	}
}

func TestWriteEventTerminalSendsDone(t *testing.T) {
	tests := []struct {
		name  string
		event api.Event
	}{
		{"finalContent", api.FinalContentEvent("done")},
		{"abort", api.AbortEvent("too long")},
		{"error", api.ErrorEvent("backend unavailable")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			w := newSSEEventWriter(rec)

			if err := w.WriteEvent(context.Background(), tt.event); err != nil {
				t.Fatalf("WriteEvent error: %v", err)
			}

			body := rec.Body.String()
			if !strings.Contains(body, "data: [DONE]\n") {
				t.Errorf("missing [DONE] sentinel in:\n%s", body)
			}
		})
	}
}

func TestWriteEventAfterTerminalReturnsClosed(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEEventWriter(rec)

	w.WriteEvent(context.Background(), api.FinalContentEvent("done"))

	before := rec.Body.String()
	err := w.WriteEvent(context.Background(), api.ContentEvent("msg_001", "late"))
	if !errors.Is(err, transport.ErrStreamClosed) {
		t.Errorf("error = %v, want ErrStreamClosed", err)
	}
	if rec.Body.String() != before {
		t.Error("late write reached the wire after terminal event")
	}
}

func TestWriteEventOrderPreserved(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEEventWriter(rec)

	events := []api.Event{
		api.ContentEvent("msg_001", "one"),
		api.FunctionCallEvent("lookup", `{"q":"x"}`, "call_1"),
		api.FunctionCallResultEvent(`{"hits":0}`, "call_1"),
		api.FinalContentEvent("one"),
	}
	for _, ev := range events {
		if err := w.WriteEvent(context.Background(), ev); err != nil {
			t.Fatalf("WriteEvent(%s) error: %v", ev.Type, err)
		}
	}

	body := rec.Body.String()
	var lastIdx int
	for _, typ := range []string{"content", "functionCall", "functionCallResult", "finalContent"} {
		idx := strings.Index(body, "event: "+typ+"\n")
		if idx < 0 {
			t.Fatalf("missing %q event in:\n%s", typ, body)
		}
		if idx < lastIdx {
			t.Errorf("event %q out of order in:\n%s", typ, body)
		}
		lastIdx = idx
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("stream does not end with [DONE]:\n%s", body)
	}
}

func TestHasStartedStreaming(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newSSEEventWriter(rec)

	if w.hasStartedStreaming() {
		t.Error("hasStartedStreaming = true before any write")
	}
	w.WriteEvent(context.Background(), api.ContentEvent("msg_001", "hi"))
	if !w.hasStartedStreaming() {
		t.Error("hasStartedStreaming = false after a write")
	}
}
