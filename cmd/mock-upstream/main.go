// Command mock-upstream runs a deterministic Responses-style streaming
// backend for local development and conformance testing. It classifies
// the request content and replays a matching scripted event stream,
// including a tool call turnaround when tools are offered.
//
// Configuration:
//
//	MOCK_PORT - Listen port (default: 9090)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /responses", handleResponses)
	mux.HandleFunc("POST /v1/responses", handleResponses)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock upstream starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("mock upstream failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock upstream shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
}

// --- Request types ---

type streamRequest struct {
	Model  string      `json:"model"`
	Input  []inputItem `json:"input"`
	Tools  []toolDef   `json:"tools,omitempty"`
	Stream bool        `json:"stream"`
}

type inputItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role,omitempty"`
	Content []contentPart `json:"content,omitempty"`
	CallID  string        `json:"call_id,omitempty"`
	Name    string        `json:"name,omitempty"`
	Output  string        `json:"output,omitempty"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type toolDef struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// --- Handler ---

func handleResponses(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":{"code":"invalid_request","message":"malformed JSON"}}`, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	s := &scriptWriter{w: w, flusher: flusher}
	s.event("response.created", map[string]any{"type": "response.created"})

	switch {
	case hasToolOutput(&req):
		// Continuation stream after a tool turnaround: answer using the
		// tool result.
		s.textStream("The", " tool", " reported", ": ", lastToolOutput(&req))
		s.completed(24, 8)

	case wantsToolCall(&req):
		s.functionCall("call_mock_1", req.Tools[0].Name, `{"location":"San Francisco"}`)
		s.completed(20, 15)

	case strings.Contains(strings.ToLower(lastUserText(&req)), "count from 1 to 5"):
		s.textStream("1", ", ", "2", ", ", "3", ", ", "4", ", ", "5")
		s.completed(10, 9)

	case strings.Contains(strings.ToLower(lastUserText(&req)), "think"):
		s.reasoning(0, "Considering the question", " carefully.")
		s.textStream("After", " some", " thought", ": ", "42.")
		s.completed(12, 7)

	default:
		s.textStream("Hello", ", ", "nice", " ", "day", "!")
		s.completed(10, 6)
	}
}

// --- Scripted event stream ---

type scriptWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *scriptWriter) event(tag string, payload any) {
	data, _ := json.Marshal(payload)
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", tag, data)
	s.flusher.Flush()
}

func (s *scriptWriter) textStream(deltas ...string) {
	item := map[string]any{"id": "msg_mock", "type": "message"}
	s.event("response.output_item.added", map[string]any{"item": item, "output_index": 0})
	for _, d := range deltas {
		s.event("response.output_text.delta", map[string]any{"delta": d, "output_index": 0})
	}
	s.event("response.output_item.done", map[string]any{"item": item, "output_index": 0})
}

func (s *scriptWriter) reasoning(slot int, deltas ...string) {
	for _, d := range deltas {
		s.event("response.reasoning_summary_text.delta",
			map[string]any{"delta": d, "summary_index": slot})
	}
	s.event("response.reasoning_summary_text.done",
		map[string]any{"text": strings.Join(deltas, ""), "summary_index": slot})
}

func (s *scriptWriter) functionCall(callID, name, args string) {
	item := map[string]any{
		"id": "fc_mock", "type": "function_call",
		"call_id": callID, "name": name,
	}
	s.event("response.output_item.added", map[string]any{"item": item, "output_index": 0})

	// Arguments arrive in two chunks to exercise delta accumulation.
	half := len(args) / 2
	for _, chunk := range []string{args[:half], args[half:]} {
		s.event("response.function_call_arguments.delta",
			map[string]any{"delta": chunk, "output_index": 0, "call_id": callID, "name": name})
	}
	s.event("response.function_call_arguments.done",
		map[string]any{"arguments": args, "output_index": 0, "call_id": callID, "name": name})

	item["arguments"] = args
	item["status"] = "completed"
	s.event("response.output_item.done", map[string]any{"item": item, "output_index": 0})
}

func (s *scriptWriter) completed(inTokens, outTokens int) {
	s.event("response.completed", map[string]any{
		"response": map[string]any{
			"usage": map[string]any{
				"input_tokens":  inTokens,
				"output_tokens": outTokens,
				"total_tokens":  inTokens + outTokens,
			},
		},
	})
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}

// --- Helpers ---

func lastUserText(req *streamRequest) string {
	for i := len(req.Input) - 1; i >= 0; i-- {
		it := req.Input[i]
		if it.Type == "message" && it.Role == "user" {
			for _, part := range it.Content {
				if part.Type == "input_text" {
					return part.Text
				}
			}
		}
	}
	return ""
}

func hasToolOutput(req *streamRequest) bool {
	for _, it := range req.Input {
		if it.Type == "function_call_output" {
			return true
		}
	}
	return false
}

func lastToolOutput(req *streamRequest) string {
	for i := len(req.Input) - 1; i >= 0; i-- {
		if req.Input[i].Type == "function_call_output" {
			return req.Input[i].Output
		}
	}
	return ""
}

func wantsToolCall(req *streamRequest) bool {
	return len(req.Tools) > 0 &&
		strings.Contains(strings.ToLower(lastUserText(req)), "weather")
}
