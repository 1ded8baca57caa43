package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/buhlergroup/chatengine/pkg/api"
	"github.com/buhlergroup/chatengine/pkg/transport"
)

// writerState tracks the state of an SSE event writer.
type writerState int

const (
	writerIdle      writerState = iota // no writes yet
	writerStreaming                    // at least one event written
	writerClosed                       // terminal event sent or client gone
)

// sseEventWriter implements transport.EventWriter over HTTP server-sent
// events. Each event is flushed to the client before WriteEvent returns,
// so closing the response after the terminal event never races the
// delivery of earlier events.
type sseEventWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu    sync.Mutex
	state writerState
}

var _ transport.EventWriter = (*sseEventWriter)(nil)

// newSSEEventWriter creates an EventWriter wrapping an http.ResponseWriter.
func newSSEEventWriter(w http.ResponseWriter) *sseEventWriter {
	return &sseEventWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// WriteEvent sends a single SSE event formatted as:
//
//	event: {type}\n
//	data: {json}\n
//	\n
//
// After a terminal event it also sends "data: [DONE]" and closes the
// writer; any later write returns transport.ErrStreamClosed. A failed
// write (client disconnected) closes the writer the same way, so events
// are dropped rather than buffered.
func (s *sseEventWriter) WriteEvent(_ context.Context, event api.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerClosed {
		return transport.ErrStreamClosed
	}

	if s.state == writerIdle {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.state = writerStreaming
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		s.state = writerClosed
		return transport.ErrStreamClosed
	}
	if err := s.rc.Flush(); err != nil {
		s.state = writerClosed
		return transport.ErrStreamClosed
	}

	if event.IsTerminal() {
		s.state = writerClosed
		if _, err := fmt.Fprint(s.w, "data: [DONE]\n\n"); err != nil {
			return nil
		}
		if err := s.rc.Flush(); err != nil {
			return nil
		}
	}

	return nil
}

// Flush ensures buffered data is sent to the client.
func (s *sseEventWriter) Flush() error {
	return s.rc.Flush()
}

// hasStartedStreaming reports whether at least one event went out. Used
// to decide between a JSON error response and an in-stream error event.
func (s *sseEventWriter) hasStartedStreaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != writerIdle
}
