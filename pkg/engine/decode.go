package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/buhlergroup/chatengine/pkg/api"
	"github.com/buhlergroup/chatengine/pkg/storage"
	"github.com/buhlergroup/chatengine/pkg/tools"
	"github.com/buhlergroup/chatengine/pkg/transport"
	"github.com/buhlergroup/chatengine/pkg/upstream"
)

// streamOutcome classifies how one upstream stream ended.
type streamOutcome int

const (
	// outcomeCompleted: the backend finished the turn; emit finalContent.
	outcomeCompleted streamOutcome = iota

	// outcomeContinue: a tool call completed; the orchestrator must open
	// a continuation stream.
	outcomeContinue

	// outcomeIncomplete: the model stopped early for a known reason.
	outcomeIncomplete

	// outcomeFailed: transport or backend error ended the stream.
	outcomeFailed
)

// streamResult is what one consumed stream reports to the orchestrator.
type streamResult struct {
	outcome          streamOutcome
	incompleteReason string
	usage            *upstream.Usage
	err              error
}

// pendingCall tracks one tool call while its arguments accumulate.
type pendingCall struct {
	rec  *storage.ToolCallRecord
	args strings.Builder
}

// decoder consumes upstream streams for one logical turn. Its buffers
// (text, reasoning slots, tool call history, annotations) span every
// continuation stream of the turn; only the per-stream output index
// bookkeeping resets between streams.
type decoder struct {
	conv       *Conversation
	dispatcher tools.Dispatcher
	resolver   *annotationResolver
	w          transport.EventWriter

	text      strings.Builder
	reasoning map[int]*strings.Builder
	calls     []*storage.ToolCallRecord
	executed  map[string]bool

	// Per-stream state.
	pending      map[int]*pendingCall
	mustContinue bool
}

func newDecoder(conv *Conversation, dispatcher tools.Dispatcher, resolver *annotationResolver, w transport.EventWriter) *decoder {
	return &decoder{
		conv:       conv,
		dispatcher: dispatcher,
		resolver:   resolver,
		w:          w,
		reasoning:  map[int]*strings.Builder{},
		executed:   map[string]bool{},
	}
}

// consumeStream processes one upstream stream until a terminal tag, an
// error, or channel close. Tool dispatch happens synchronously inside
// this loop; that is deliberate, it keeps function output order matching
// call discovery order.
func (d *decoder) consumeStream(ctx context.Context, events <-chan upstream.Event) streamResult {
	// Output indexes restart with every physical stream.
	d.pending = map[int]*pendingCall{}
	d.mustContinue = false

	var usage *upstream.Usage

	for {
		select {
		case <-ctx.Done():
			return streamResult{outcome: outcomeFailed, usage: usage, err: ctx.Err()}

		case ev, ok := <-events:
			if !ok {
				// Stream ended without a terminal tag. After a completed
				// function call that is a legitimate continuation point;
				// otherwise the backend dropped the connection.
				if d.mustContinue {
					return streamResult{outcome: outcomeContinue, usage: usage}
				}
				return streamResult{
					outcome: outcomeFailed,
					usage:   usage,
					err:     fmt.Errorf("engine: upstream stream ended without terminal event"),
				}
			}

			switch ev.Type {
			case upstream.EventStreamCreated:
				slog.Debug("upstream stream created", "message_id", d.conv.MessageID)

			case upstream.EventTextDelta:
				d.text.WriteString(ev.Delta)
				d.emit(ctx, api.ContentEvent(d.conv.MessageID, ev.Delta))

			case upstream.EventItemAdded:
				d.handleItemAdded(ev)

			case upstream.EventFunctionArgsDelta:
				if pc := d.pendingFor(ev.OutputIndex, ev.CallID, ev.Name); pc != nil {
					// Arguments stay opaque to the client until complete.
					pc.args.WriteString(ev.Delta)
				}

			case upstream.EventFunctionArgsDone:
				pc := d.pendingFor(ev.OutputIndex, ev.CallID, ev.Name)
				if pc == nil {
					break
				}
				args := ev.Arguments
				if args == "" {
					args = pc.args.String()
				}
				pc.rec.Arguments = args
				d.dispatch(ctx, pc)

			case upstream.EventItemDone:
				d.handleItemDone(ctx, ev)

			case upstream.EventReasoningDelta:
				d.reasoningSlot(ev.SummaryIndex).WriteString(ev.Delta)
				d.emit(ctx, api.ReasoningEvent(ev.Delta))

			case upstream.EventReasoningDone:
				// Some backends send the full summary only on done.
				if b := d.reasoningSlot(ev.SummaryIndex); b.Len() == 0 && ev.Delta != "" {
					b.WriteString(ev.Delta)
					d.emit(ctx, api.ReasoningEvent(ev.Delta))
				}

			case upstream.EventCompleted:
				if ev.Usage != nil {
					usage = ev.Usage
				}
				if d.mustContinue {
					return streamResult{outcome: outcomeContinue, usage: usage}
				}
				return streamResult{outcome: outcomeCompleted, usage: usage}

			case upstream.EventIncomplete:
				return streamResult{
					outcome:          outcomeIncomplete,
					incompleteReason: ev.IncompleteReason,
					usage:            usage,
				}

			case upstream.EventFailed, upstream.EventStreamError:
				return streamResult{outcome: outcomeFailed, usage: usage, err: ev.Err}
			}
		}
	}
}

// handleItemAdded opens tool call bookkeeping for function call items.
func (d *decoder) handleItemAdded(ev upstream.Event) {
	if ev.Item == nil {
		return
	}
	switch ev.Item.Type {
	case upstream.ItemTypeFunctionCall:
		d.openCall(ev.OutputIndex, ev.Item.CallID, ev.Item.Name)
	default:
		slog.Debug("output item started", "type", string(ev.Item.Type))
	}
}

// handleItemDone routes completed output items: function calls signal a
// continuation, media items feed the annotation resolver and append
// markup to the running text.
func (d *decoder) handleItemDone(ctx context.Context, ev upstream.Event) {
	if ev.Item == nil {
		return
	}
	item := ev.Item

	switch item.Type {
	case upstream.ItemTypeFunctionCall:
		pc := d.pendingFor(ev.OutputIndex, item.CallID, item.Name)
		if pc != nil && !d.executed[pc.rec.CallID] {
			// Arguments-done never arrived; the done item carries the
			// complete arguments.
			if pc.rec.Arguments == "" {
				pc.rec.Arguments = item.Arguments
			}
			d.dispatch(ctx, pc)
		}
		d.mustContinue = true

	case upstream.ItemTypeImageGeneration:
		if item.Result == "" {
			return
		}
		if markup := d.resolver.resolveGeneratedImage(ctx, item.Result); markup != "" {
			d.appendMarkup(ctx, markup)
		}

	case upstream.ItemTypeCodeExecution:
		for _, out := range item.Outputs {
			if out.Type == "image" && out.URL != "" {
				d.appendMarkup(ctx, fmt.Sprintf("\n\n![Output](%s)\n\n", out.URL))
			}
		}

	case upstream.ItemTypeWebSearch:
		if markup := formatWebSources(item.Sources); markup != "" {
			d.appendMarkup(ctx, markup)
		}

	case upstream.ItemTypeMessage:
		d.resolver.collect(ctx, item.Annotations)
	}
}

// openCall starts a ToolCallRecord and pushes it into the turn's tool
// call history.
func (d *decoder) openCall(outputIndex int, callID, name string) *pendingCall {
	rec := &storage.ToolCallRecord{CallID: callID, Name: name}
	d.calls = append(d.calls, rec)
	pc := &pendingCall{rec: rec}
	d.pending[outputIndex] = pc
	return pc
}

// pendingFor returns the call tracked at the output index, opening one
// when the added event was missed but later events identify the call.
func (d *decoder) pendingFor(outputIndex int, callID, name string) *pendingCall {
	if pc, ok := d.pending[outputIndex]; ok {
		if pc.rec.CallID == "" {
			pc.rec.CallID = callID
		}
		if pc.rec.Name == "" {
			pc.rec.Name = name
		}
		return pc
	}
	if callID == "" && name == "" {
		return nil
	}
	return d.openCall(outputIndex, callID, name)
}

// dispatch freezes a tool call, announces it to the client, executes it
// synchronously, appends the call/output pair to the conversation input,
// and reports the result. Dispatch failures are folded into a structured
// error output so the turn continues and the model can self-correct.
func (d *decoder) dispatch(ctx context.Context, pc *pendingCall) {
	rec := pc.rec
	if rec.CallID == "" {
		rec.CallID = api.NewCallID()
	}
	if d.executed[rec.CallID] {
		return
	}
	d.executed[rec.CallID] = true

	d.emit(ctx, api.FunctionCallEvent(rec.Name, rec.Arguments, rec.CallID))

	result, err := d.dispatcher.Execute(ctx, tools.Call{
		ID:        rec.CallID,
		Name:      rec.Name,
		Arguments: rec.Arguments,
		User:      d.conv.req.User,
		Headers:   d.conv.req.ToolHeaders,
	})
	if err != nil {
		slog.Warn("tool dispatch failed",
			"tool", rec.Name, "call_id", rec.CallID, "error", err)
	}

	d.conv.AppendFunctionResult(rec, result, err)
	d.emit(ctx, api.FunctionCallResultEvent(rec.Output, rec.CallID))
	d.mustContinue = true
}

// appendMarkup adds tool-produced markup to the running text and streams
// it to the client as a content event.
func (d *decoder) appendMarkup(ctx context.Context, markup string) {
	d.text.WriteString(markup)
	d.emit(ctx, api.ContentEvent(d.conv.MessageID, markup))
}

// emit writes one outward event. Write failures are dropped, never
// buffered: a closed or slow client must not stall the decode loop or
// prevent persistence.
func (d *decoder) emit(ctx context.Context, ev api.Event) {
	if err := d.w.WriteEvent(ctx, ev); err != nil {
		slog.Debug("dropping client event", "type", string(ev.Type), "error", err)
	}
}

// finalText returns the accumulated text with every resolved annotation
// reference rewritten to its durable URL.
func (d *decoder) finalText() string {
	return d.resolver.rewrite(d.text.String())
}

// partialText returns whatever text accumulated so far, unrewritten.
func (d *decoder) partialText() string {
	return d.text.String()
}

// reasoningText joins the reasoning slots in index order with blank-line
// separators.
func (d *decoder) reasoningText() string {
	if len(d.reasoning) == 0 {
		return ""
	}
	indexes := make([]int, 0, len(d.reasoning))
	for i := range d.reasoning {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	parts := make([]string, 0, len(indexes))
	for _, i := range indexes {
		if s := d.reasoning[i].String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}

// toolCalls returns the turn's tool call history for persistence.
func (d *decoder) toolCalls() []storage.ToolCallRecord {
	if len(d.calls) == 0 {
		return nil
	}
	out := make([]storage.ToolCallRecord, len(d.calls))
	for i, rec := range d.calls {
		out[i] = *rec
	}
	return out
}

func (d *decoder) reasoningSlot(index int) *strings.Builder {
	b, ok := d.reasoning[index]
	if !ok {
		b = &strings.Builder{}
		d.reasoning[index] = b
	}
	return b
}

// formatWebSources renders web search results as a markdown source list.
func formatWebSources(sources []upstream.WebSource) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n**Sources:**\n")
	for _, s := range sources {
		title := s.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(&b, "- [%s](%s)\n", title, s.URL)
	}
	return b.String()
}
