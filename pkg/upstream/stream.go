package upstream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Wire tags of the backend SSE protocol. Decoding maps these onto the
// closed EventType enum; tags not listed here are skipped.
const (
	tagCreated        = "response.created"
	tagInProgress     = "response.in_progress"
	tagTextDelta      = "response.output_text.delta"
	tagTextDone       = "response.output_text.done"
	tagItemAdded      = "response.output_item.added"
	tagItemDone       = "response.output_item.done"
	tagFuncArgsDelta  = "response.function_call_arguments.delta"
	tagFuncArgsDone   = "response.function_call_arguments.done"
	tagReasoningDelta = "response.reasoning_summary_text.delta"
	tagReasoningDone  = "response.reasoning_summary_text.done"
	tagCompleted      = "response.completed"
	tagIncomplete     = "response.incomplete"
	tagFailed         = "response.failed"
	tagError          = "error"
)

// parseSSEStream reads backend SSE events from the reader and sends
// decoded Event values to the channel. The channel is closed when the
// stream ends, a read error occurs, or ctx is cancelled while a send
// is blocked on a consumer that stopped receiving.
func parseSSEStream(ctx context.Context, r io.Reader, ch chan<- Event) {
	defer close(ch)

	emit := func(ev Event) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var currentEvent string

	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			currentEvent = strings.TrimPrefix(line, "event: ")
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}
			if currentEvent != "" {
				if done := decodeWireEvent(currentEvent, []byte(data), emit); done {
					return
				}
				currentEvent = ""
			}
			continue
		}

		// Empty lines are SSE delimiters.
	}

	if err := scanner.Err(); err != nil {
		emit(Event{
			Type: EventStreamError,
			Err:  fmt.Errorf("upstream: stream read: %w", err),
		})
	}
}

// decodeWireEvent maps one wire event onto the Event enum and emits it.
// Returns true when the stream is finished, either because the wire
// event ends it or because the consumer stopped receiving.
func decodeWireEvent(tag string, data []byte, emit func(Event) bool) bool {
	switch tag {
	case tagCreated:
		if !emit(Event{Type: EventStreamCreated}) {
			return true
		}

	case tagInProgress, tagTextDone:
		// Carries nothing the decoder needs.

	case tagTextDelta:
		var d struct {
			Delta       string `json:"delta"`
			OutputIndex int    `json:"output_index"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse text delta", "error", err)
			return false
		}
		if !emit(Event{Type: EventTextDelta, Delta: d.Delta, OutputIndex: d.OutputIndex}) {
			return true
		}

	case tagItemAdded:
		var d struct {
			Item        Item `json:"item"`
			OutputIndex int  `json:"output_index"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse item added", "error", err)
			return false
		}
		if !emit(Event{Type: EventItemAdded, Item: &d.Item, OutputIndex: d.OutputIndex}) {
			return true
		}

	case tagItemDone:
		var d struct {
			Item        Item `json:"item"`
			OutputIndex int  `json:"output_index"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse item done", "error", err)
			return false
		}
		if !emit(Event{Type: EventItemDone, Item: &d.Item, OutputIndex: d.OutputIndex}) {
			return true
		}

	case tagFuncArgsDelta:
		var d struct {
			Delta       string `json:"delta"`
			OutputIndex int    `json:"output_index"`
			CallID      string `json:"call_id"`
			Name        string `json:"name"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse arguments delta", "error", err)
			return false
		}
		if !emit(Event{
			Type: EventFunctionArgsDelta, Delta: d.Delta,
			OutputIndex: d.OutputIndex, CallID: d.CallID, Name: d.Name,
		}) {
			return true
		}

	case tagFuncArgsDone:
		var d struct {
			Arguments   string `json:"arguments"`
			OutputIndex int    `json:"output_index"`
			CallID      string `json:"call_id"`
			Name        string `json:"name"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse arguments done", "error", err)
			return false
		}
		if !emit(Event{
			Type: EventFunctionArgsDone, Arguments: d.Arguments,
			OutputIndex: d.OutputIndex, CallID: d.CallID, Name: d.Name,
		}) {
			return true
		}

	case tagReasoningDelta:
		var d struct {
			Delta        string `json:"delta"`
			SummaryIndex int    `json:"summary_index"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse reasoning delta", "error", err)
			return false
		}
		if !emit(Event{Type: EventReasoningDelta, Delta: d.Delta, SummaryIndex: d.SummaryIndex}) {
			return true
		}

	case tagReasoningDone:
		var d struct {
			Text         string `json:"text"`
			SummaryIndex int    `json:"summary_index"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse reasoning done", "error", err)
			return false
		}
		if !emit(Event{Type: EventReasoningDone, Delta: d.Text, SummaryIndex: d.SummaryIndex}) {
			return true
		}

	case tagCompleted:
		var d struct {
			Response struct {
				Output []Item `json:"output"`
				Usage  *Usage `json:"usage"`
			} `json:"response"`
		}
		ev := Event{Type: EventCompleted}
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse response completed", "error", err)
		} else {
			ev.Usage = d.Response.Usage
		}
		emit(ev)
		return true

	case tagIncomplete:
		var d struct {
			Response struct {
				IncompleteDetails struct {
					Reason string `json:"reason"`
				} `json:"incomplete_details"`
			} `json:"response"`
		}
		ev := Event{Type: EventIncomplete}
		if err := json.Unmarshal(data, &d); err != nil {
			slog.Debug("failed to parse response incomplete", "error", err)
		} else {
			ev.IncompleteReason = d.Response.IncompleteDetails.Reason
		}
		emit(ev)
		return true

	case tagFailed, tagError:
		var d struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		code, message := "", ""
		if err := json.Unmarshal(data, &d); err == nil {
			code, message = d.Error.Code, d.Error.Message
			if code == "" && message == "" {
				code, message = d.Code, d.Message
			}
		}
		emit(Event{Type: EventFailed, Err: classifyBackendError(code, message)})
		return true

	default:
		// Forward compatibility: never abort on tags added by the backend
		// after this code was written.
		slog.Debug("unknown upstream event tag, skipping", "tag", tag)
	}
	return false
}
