package api

import "encoding/json"

// EventType identifies the type of a client-facing stream event.
type EventType string

// Incremental events convey partial progress of a turn.
const (
	EventContent            EventType = "content"
	EventReasoning          EventType = "reasoning"
	EventFunctionCall       EventType = "functionCall"
	EventFunctionCallResult EventType = "functionCallResult"
)

// Terminal events end the outward stream for a turn. Exactly one is
// emitted per turn.
const (
	EventFinalContent EventType = "finalContent"
	EventAbort        EventType = "abort"
	EventError        EventType = "error"
)

// Event is a single client-facing stream event. The payload fields that
// are populated depend on Type; MarshalJSON emits only the fields that
// belong to the event's wire shape.
type Event struct {
	Type EventType

	// ID is the stable message ID, carried on content events so the
	// client can collate deltas across continuation streams.
	ID string

	// Text carries content deltas, reasoning deltas, and the final text.
	Text string

	// Function call fields.
	Name      string
	Arguments string
	CallID    string
	Result    string

	// Reason is the short user-facing abort reason.
	Reason string

	// Message is the short user-facing error description.
	Message string
}

// IsTerminal reports whether the event ends the outward stream.
func (e Event) IsTerminal() bool {
	switch e.Type {
	case EventFinalContent, EventAbort, EventError:
		return true
	}
	return false
}

// MarshalJSON serializes the payload for the event's wire shape. The
// event type itself travels in the SSE "event:" line, not in the data
// payload.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventContent:
		return json.Marshal(struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		}{e.ID, e.Text})
	case EventReasoning:
		return json.Marshal(struct {
			Text string `json:"text"`
		}{e.Text})
	case EventFunctionCall:
		return json.Marshal(struct {
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
			CallID    string `json:"call_id"`
		}{e.Name, e.Arguments, e.CallID})
	case EventFunctionCallResult:
		return json.Marshal(struct {
			Result string `json:"result"`
			CallID string `json:"call_id"`
		}{e.Result, e.CallID})
	case EventFinalContent:
		return json.Marshal(struct {
			Text string `json:"text"`
		}{e.Text})
	case EventAbort:
		return json.Marshal(struct {
			Reason string `json:"reason"`
		}{e.Reason})
	case EventError:
		return json.Marshal(struct {
			Message string `json:"message"`
		}{e.Message})
	default:
		return json.Marshal(struct{}{})
	}
}

// ContentEvent builds a content delta event for the given message ID.
func ContentEvent(messageID, delta string) Event {
	return Event{Type: EventContent, ID: messageID, Text: delta}
}

// ReasoningEvent builds a reasoning delta event.
func ReasoningEvent(delta string) Event {
	return Event{Type: EventReasoning, Text: delta}
}

// FunctionCallEvent builds an event announcing a completed tool call
// request from the model.
func FunctionCallEvent(name, arguments, callID string) Event {
	return Event{Type: EventFunctionCall, Name: name, Arguments: arguments, CallID: callID}
}

// FunctionCallResultEvent builds an event carrying a tool's output.
func FunctionCallResultEvent(result, callID string) Event {
	return Event{Type: EventFunctionCallResult, Result: result, CallID: callID}
}

// FinalContentEvent builds the terminal event carrying the complete,
// annotation-resolved text of the turn.
func FinalContentEvent(text string) Event {
	return Event{Type: EventFinalContent, Text: text}
}

// AbortEvent builds the terminal event for an incomplete generation.
func AbortEvent(reason string) Event {
	return Event{Type: EventAbort, Reason: reason}
}

// ErrorEvent builds the terminal event for a failed turn.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}
