package upstream

import "encoding/json"

// ---------------------------------------------------------------------------
// Conversation input items
// ---------------------------------------------------------------------------

// InputType discriminates the conversation input item variants.
type InputType string

const (
	InputTypeMessage            InputType = "message"
	InputTypeFunctionCall       InputType = "function_call"
	InputTypeFunctionCallOutput InputType = "function_call_output"
)

// ContentPart is one part of a (possibly multimodal) message.
type ContentPart struct {
	Type     string `json:"type"` // "input_text" or "input_image"
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// InputItem is a tagged variant in the conversation input list. Ordering
// is significant: a function_call_output must never precede the
// function_call it answers.
type InputItem struct {
	Type InputType

	// Message fields.
	Role    string
	Content []ContentPart

	// Function call fields.
	CallID    string
	Name      string
	Arguments string

	// Function call output field.
	Output string
}

// TextMessage builds a plain-text message input item.
func TextMessage(role, text string) InputItem {
	return InputItem{
		Type:    InputTypeMessage,
		Role:    role,
		Content: []ContentPart{{Type: "input_text", Text: text}},
	}
}

// FunctionCallItem builds a function_call input item echoing a model tool
// request back into the conversation.
func FunctionCallItem(callID, name, arguments string) InputItem {
	return InputItem{Type: InputTypeFunctionCall, CallID: callID, Name: name, Arguments: arguments}
}

// FunctionCallOutputItem builds a function_call_output input item carrying
// a tool's result.
func FunctionCallOutputItem(callID, output string) InputItem {
	return InputItem{Type: InputTypeFunctionCallOutput, CallID: callID, Output: output}
}

// MarshalJSON serializes the item in the flat wire format: type-specific
// fields at the top level.
func (it InputItem) MarshalJSON() ([]byte, error) {
	switch it.Type {
	case InputTypeFunctionCall:
		return json.Marshal(struct {
			Type      InputType `json:"type"`
			CallID    string    `json:"call_id"`
			Name      string    `json:"name"`
			Arguments string    `json:"arguments"`
		}{it.Type, it.CallID, it.Name, it.Arguments})
	case InputTypeFunctionCallOutput:
		return json.Marshal(struct {
			Type   InputType `json:"type"`
			CallID string    `json:"call_id"`
			Output string    `json:"output"`
		}{it.Type, it.CallID, it.Output})
	default:
		return json.Marshal(struct {
			Type    InputType     `json:"type"`
			Role    string        `json:"role"`
			Content []ContentPart `json:"content"`
		}{InputTypeMessage, it.Role, it.Content})
	}
}

// UnmarshalJSON deserializes the flat wire format.
func (it *InputItem) UnmarshalJSON(data []byte) error {
	var w struct {
		Type      InputType     `json:"type"`
		Role      string        `json:"role"`
		Content   []ContentPart `json:"content"`
		CallID    string        `json:"call_id"`
		Name      string        `json:"name"`
		Arguments string        `json:"arguments"`
		Output    string        `json:"output"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	it.Type = w.Type
	it.Role = w.Role
	it.Content = w.Content
	it.CallID = w.CallID
	it.Name = w.Name
	it.Arguments = w.Arguments
	it.Output = w.Output
	return nil
}

// ---------------------------------------------------------------------------
// Tool definitions and the stream request
// ---------------------------------------------------------------------------

// ToolDefinition describes a tool offered to the model.
type ToolDefinition struct {
	Type        string          `json:"type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Strict      bool            `json:"strict"`
}

// ReasoningConfig requests reasoning summaries from the backend.
type ReasoningConfig struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// StreamRequest is the body of one streaming completion call.
type StreamRequest struct {
	Model           string           `json:"model"`
	Input           []InputItem      `json:"input"`
	Tools           []ToolDefinition `json:"tools,omitempty"`
	Stream          bool             `json:"stream"`
	MaxOutputTokens *int             `json:"max_output_tokens,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	Reasoning       *ReasoningConfig `json:"reasoning,omitempty"`
	User            string           `json:"user,omitempty"`
}

// ---------------------------------------------------------------------------
// Output items
// ---------------------------------------------------------------------------

// ItemType discriminates output items carried by item-level events.
type ItemType string

const (
	ItemTypeMessage         ItemType = "message"
	ItemTypeFunctionCall    ItemType = "function_call"
	ItemTypeImageGeneration ItemType = "image_generation_call"
	ItemTypeWebSearch       ItemType = "web_search_call"
	ItemTypeCodeExecution   ItemType = "code_interpreter_call"
	ItemTypeReasoning       ItemType = "reasoning"
)

// FileAnnotation is a model-emitted reference to a generated or retrieved
// file, attached to output text.
type FileAnnotation struct {
	Type        string `json:"type"` // "container_file_citation" or "file_citation"
	ContainerID string `json:"container_id,omitempty"`
	FileID      string `json:"file_id,omitempty"`
	Filename    string `json:"filename,omitempty"`
}

// CodeOutput is a single output produced by sandboxed code execution.
type CodeOutput struct {
	Type string `json:"type"` // "logs" or "image"
	Logs string `json:"logs,omitempty"`
	URL  string `json:"url,omitempty"`
}

// WebSource is one result surfaced by the backend's web search tool.
type WebSource struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Item is an output item referenced by item-added and item-done events.
type Item struct {
	ID     string   `json:"id"`
	Type   ItemType `json:"type"`
	Status string   `json:"status,omitempty"`

	// Function call fields.
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// Image generation: the generated file's ID in the backend file store.
	Result string `json:"result,omitempty"`

	// Code execution fields.
	ContainerID string       `json:"container_id,omitempty"`
	Outputs     []CodeOutput `json:"outputs,omitempty"`

	// Web search results.
	Sources []WebSource `json:"sources,omitempty"`

	// Message text and its file annotations.
	Text        string           `json:"text,omitempty"`
	Annotations []FileAnnotation `json:"annotations,omitempty"`
}

// ---------------------------------------------------------------------------
// Stream events
// ---------------------------------------------------------------------------

// EventType classifies a decoded upstream stream event. The set is closed:
// the decode loop switches exhaustively over these values, and unknown
// wire tags are dropped at the decode boundary.
type EventType int

const (
	// EventStreamCreated signals the backend accepted the request.
	EventStreamCreated EventType = iota

	// EventTextDelta carries an increment of output text.
	EventTextDelta

	// EventItemAdded opens an output item (tool call, message, reasoning).
	EventItemAdded

	// EventFunctionArgsDelta carries an increment of tool-call arguments.
	EventFunctionArgsDelta

	// EventFunctionArgsDone carries the complete arguments string.
	EventFunctionArgsDone

	// EventItemDone closes an output item with its final form.
	EventItemDone

	// EventReasoningDelta carries an increment of a reasoning summary slot.
	EventReasoningDelta

	// EventReasoningDone closes a reasoning summary slot.
	EventReasoningDone

	// EventCompleted ends the stream with a finished response.
	EventCompleted

	// EventIncomplete ends the stream early for a known reason.
	EventIncomplete

	// EventFailed ends the stream with a backend-reported error.
	EventFailed

	// EventStreamError ends the stream with a transport-level error.
	EventStreamError
)

// Usage holds token accounting reported on stream completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Event is a single decoded upstream stream event.
type Event struct {
	Type EventType

	// Delta carries incremental text, reasoning, or argument data.
	Delta string

	// OutputIndex identifies the output item the event relates to.
	OutputIndex int

	// SummaryIndex identifies the reasoning summary slot.
	SummaryIndex int

	// Item is populated on item-added and item-done events.
	Item *Item

	// CallID and Name identify the tool call on argument events.
	CallID string
	Name   string

	// Arguments is the complete arguments string on args-done events.
	Arguments string

	// IncompleteReason is populated on incomplete events.
	IncompleteReason string

	// Usage is populated on completed events when the backend reports it.
	Usage *Usage

	// Err is populated on failed and stream-error events.
	Err error
}
