package upstream

import (
	"context"
	"strings"
	"testing"
	"time"
)

// collect drains the parse goroutine's channel into a slice.
func collect(t *testing.T, sse string) []Event {
	t.Helper()
	ch := make(chan Event, 64)
	go parseSSEStream(context.Background(), strings.NewReader(sse), ch)

	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestParseSSEStream_TextDeltas(t *testing.T) {
	sse := "event: response.created\n" +
		"data: {}\n\n" +
		"event: response.output_text.delta\n" +
		"data: {\"delta\":\"Hel\",\"output_index\":0}\n\n" +
		"event: response.output_text.delta\n" +
		"data: {\"delta\":\"lo\",\"output_index\":0}\n\n" +
		"event: response.completed\n" +
		"data: {\"response\":{\"output\":[],\"usage\":{\"input_tokens\":3,\"output_tokens\":2,\"total_tokens\":5}}}\n\n"

	events := collect(t, sse)
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != EventStreamCreated {
		t.Errorf("events[0].Type = %v, want EventStreamCreated", events[0].Type)
	}

	var text string
	for _, ev := range events {
		if ev.Type == EventTextDelta {
			text += ev.Delta
		}
	}
	if text != "Hello" {
		t.Errorf("concatenated deltas = %q, want %q", text, "Hello")
	}

	last := events[len(events)-1]
	if last.Type != EventCompleted {
		t.Fatalf("last event type = %v, want EventCompleted", last.Type)
	}
	if last.Usage == nil || last.Usage.TotalTokens != 5 {
		t.Errorf("usage = %+v, want total 5", last.Usage)
	}
}

func TestParseSSEStream_FunctionCallArguments(t *testing.T) {
	sse := "event: response.output_item.added\n" +
		"data: {\"item\":{\"id\":\"fc_1\",\"type\":\"function_call\",\"call_id\":\"call_1\",\"name\":\"create_image\"},\"output_index\":0}\n\n" +
		"event: response.function_call_arguments.delta\n" +
		"data: {\"delta\":\"{\\\"prom\",\"output_index\":0,\"call_id\":\"call_1\"}\n\n" +
		"event: response.function_call_arguments.delta\n" +
		"data: {\"delta\":\"pt\\\":\\\"cat\\\"}\",\"output_index\":0,\"call_id\":\"call_1\"}\n\n" +
		"event: response.function_call_arguments.done\n" +
		"data: {\"arguments\":\"{\\\"prompt\\\":\\\"cat\\\"}\",\"output_index\":0,\"call_id\":\"call_1\",\"name\":\"create_image\"}\n\n" +
		"event: response.completed\n" +
		"data: {\"response\":{\"output\":[]}}\n\n"

	events := collect(t, sse)

	var deltas string
	var done *Event
	for i := range events {
		switch events[i].Type {
		case EventFunctionArgsDelta:
			deltas += events[i].Delta
		case EventFunctionArgsDone:
			done = &events[i]
		}
	}
	if done == nil {
		t.Fatal("no arguments-done event decoded")
	}
	// Delta concatenation must equal the done event's full string.
	if deltas != done.Arguments {
		t.Errorf("concatenated deltas = %q, done arguments = %q", deltas, done.Arguments)
	}
	if done.CallID != "call_1" || done.Name != "create_image" {
		t.Errorf("done call_id/name = %q/%q", done.CallID, done.Name)
	}
}

func TestParseSSEStream_UnknownTagSkipped(t *testing.T) {
	sse := "event: response.shiny_new_thing.delta\n" +
		"data: {\"delta\":\"?\"}\n\n" +
		"event: response.output_text.delta\n" +
		"data: {\"delta\":\"ok\",\"output_index\":0}\n\n" +
		"event: response.completed\n" +
		"data: {\"response\":{\"output\":[]}}\n\n"

	events := collect(t, sse)
	if len(events) != 2 {
		t.Fatalf("expected unknown tag to be skipped, got %d events", len(events))
	}
	if events[0].Type != EventTextDelta || events[0].Delta != "ok" {
		t.Errorf("events[0] = %+v, want text delta \"ok\"", events[0])
	}
}

func TestParseSSEStream_Incomplete(t *testing.T) {
	sse := "event: response.output_text.delta\n" +
		"data: {\"delta\":\"partial\",\"output_index\":0}\n\n" +
		"event: response.incomplete\n" +
		"data: {\"response\":{\"incomplete_details\":{\"reason\":\"max_output_tokens\"}}}\n\n"

	events := collect(t, sse)
	last := events[len(events)-1]
	if last.Type != EventIncomplete {
		t.Fatalf("last event type = %v, want EventIncomplete", last.Type)
	}
	if last.IncompleteReason != "max_output_tokens" {
		t.Errorf("reason = %q, want max_output_tokens", last.IncompleteReason)
	}
}

func TestParseSSEStream_FailedWithExpiredContainer(t *testing.T) {
	sse := "event: error\n" +
		"data: {\"error\":{\"code\":\"container_expired\",\"message\":\"Container is expired\"}}\n\n"

	events := collect(t, sse)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Type != EventFailed {
		t.Fatalf("type = %v, want EventFailed", events[0].Type)
	}
	if !IsResourceExpired(events[0].Err) {
		t.Errorf("err = %v, want resource-expired classification", events[0].Err)
	}
}

func TestParseSSEStream_ReasoningSlots(t *testing.T) {
	sse := "event: response.reasoning_summary_text.delta\n" +
		"data: {\"delta\":\"first\",\"summary_index\":0}\n\n" +
		"event: response.reasoning_summary_text.delta\n" +
		"data: {\"delta\":\"second\",\"summary_index\":1}\n\n" +
		"event: response.reasoning_summary_text.done\n" +
		"data: {\"text\":\"first\",\"summary_index\":0}\n\n" +
		"event: response.completed\n" +
		"data: {\"response\":{\"output\":[]}}\n\n"

	events := collect(t, sse)
	var slots []int
	for _, ev := range events {
		if ev.Type == EventReasoningDelta {
			slots = append(slots, ev.SummaryIndex)
		}
	}
	if len(slots) != 2 || slots[0] != 0 || slots[1] != 1 {
		t.Errorf("summary indexes = %v, want [0 1]", slots)
	}
}

func TestParseSSEStream_CancelUnblocksFullChannel(t *testing.T) {
	var sb strings.Builder
	for range 64 {
		sb.WriteString("event: response.output_text.delta\n")
		sb.WriteString("data: {\"delta\":\"x\",\"output_index\":0}\n\n")
	}
	sb.WriteString("event: response.completed\n")
	sb.WriteString("data: {\"response\":{\"output\":[]}}\n\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := make(chan Event, 1)
	parserDone := make(chan struct{})
	go func() {
		parseSSEStream(ctx, strings.NewReader(sb.String()), ch)
		close(parserDone)
	}()

	// Take one event, then stop receiving while the parser still has
	// events queued behind a full channel.
	<-ch
	cancel()

	select {
	case <-parserDone:
	case <-time.After(2 * time.Second):
		t.Fatal("parser did not exit after the consumer stopped receiving")
	}
}

func TestParseSSEStream_DoneMarkerEndsStream(t *testing.T) {
	sse := "event: response.output_text.delta\n" +
		"data: {\"delta\":\"x\",\"output_index\":0}\n\n" +
		"data: [DONE]\n\n" +
		"event: response.output_text.delta\n" +
		"data: {\"delta\":\"y\",\"output_index\":0}\n\n"

	events := collect(t, sse)
	if len(events) != 1 {
		t.Fatalf("expected stream to end at [DONE], got %d events", len(events))
	}
}
