package api

import (
	"encoding/json"
	"testing"
)

func TestEventMarshal_Content(t *testing.T) {
	ev := ContentEvent("msg_1", "Hel")
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"id":"msg_1","text":"Hel"}`
	if string(data) != want {
		t.Errorf("payload = %s, want %s", data, want)
	}
}

func TestEventMarshal_FunctionCall(t *testing.T) {
	ev := FunctionCallEvent("create_image", `{"prompt":"cat"}`, "call_abc")
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"name":"create_image","arguments":"{\"prompt\":\"cat\"}","call_id":"call_abc"}`
	if string(data) != want {
		t.Errorf("payload = %s, want %s", data, want)
	}
}

func TestEventMarshal_Terminal(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"final", FinalContentEvent("Hello"), `{"text":"Hello"}`},
		{"abort", AbortEvent("The model reached the maximum output tokens limit."), `{"reason":"The model reached the maximum output tokens limit."}`},
		{"error", ErrorEvent("Something went wrong."), `{"message":"Something went wrong."}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.ev)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("payload = %s, want %s", data, tt.want)
			}
			if !tt.ev.IsTerminal() {
				t.Errorf("IsTerminal() = false, want true")
			}
		})
	}
}

func TestIsTerminal_Incremental(t *testing.T) {
	for _, ev := range []Event{
		ContentEvent("msg_1", "x"),
		ReasoningEvent("thinking"),
		FunctionCallEvent("f", "{}", "call_1"),
		FunctionCallResultEvent("ok", "call_1"),
	} {
		if ev.IsTerminal() {
			t.Errorf("%s: IsTerminal() = true, want false", ev.Type)
		}
	}
}

func TestIncompleteReasonMessage(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"max_output_tokens", "The model reached the maximum output tokens limit."},
		{"content_filter", "The response was stopped by the content filter."},
		{"something_new", "The model stopped before completing the response."},
		{"", "The model stopped before completing the response."},
	}
	for _, tt := range tests {
		if got := IncompleteReasonMessage(tt.reason); got != tt.want {
			t.Errorf("IncompleteReasonMessage(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}
