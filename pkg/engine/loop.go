package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/buhlergroup/chatengine/pkg/api"
	"github.com/buhlergroup/chatengine/pkg/files"
	"github.com/buhlergroup/chatengine/pkg/observability"
	"github.com/buhlergroup/chatengine/pkg/storage"
	"github.com/buhlergroup/chatengine/pkg/tools"
	"github.com/buhlergroup/chatengine/pkg/transport"
	"github.com/buhlergroup/chatengine/pkg/upstream"
)

// persistTimeout bounds the best-effort message upsert after the request
// context has been cancelled.
const persistTimeout = 5 * time.Second

// Files groups the annotation plumbing collaborators. Any field may be
// nil; the resolver then skips the corresponding reference kind.
type Files struct {
	// Container downloads files from the sandboxed execution container.
	Container files.ContainerFiles

	// Store downloads generated files from the backend file store.
	Store files.FileStore

	// Blobs uploads resolved files to durable storage.
	Blobs files.BlobStore

	// Acquirer provisions a replacement execution container on the
	// stale-resource retry path.
	Acquirer files.ContainerAcquirer

	// NewContainer builds a container files client for a freshly
	// acquired container URL.
	NewContainer func(baseURL string) (files.ContainerFiles, error)
}

// loopState tracks the orchestrator state machine. A turn moves
// Streaming → ToolPending → Streaming(continuation) → Terminal; the
// stale-resource retry is the single allowed edge back to the start.
type loopState int

const (
	stateStreaming loopState = iota
	stateToolPending
	stateTerminal
)

// Engine drives conversation turns end to end. Safe for concurrent use:
// each Run call is an independent flow sharing only the dispatcher's
// read-safe registry.
type Engine struct {
	streamer   Streamer
	dispatcher tools.Dispatcher
	store      storage.MessageStore
	files      Files
	cfg        Config
}

// New creates an Engine. The streamer and dispatcher must not be nil;
// the store may be nil for stateless operation.
func New(streamer Streamer, dispatcher tools.Dispatcher, store storage.MessageStore, fs Files, cfg Config) (*Engine, error) {
	if streamer == nil {
		return nil, fmt.Errorf("engine: streamer must not be nil")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("engine: dispatcher must not be nil")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("engine: model must not be empty")
	}
	return &Engine{
		streamer:   streamer,
		dispatcher: dispatcher,
		store:      store,
		files:      fs,
		cfg:        cfg,
	}, nil
}

// Run conducts one logical turn: it opens the first upstream stream,
// decodes it, opens continuation streams after tool calls, and ends with
// exactly one terminal outward event and at most one persistence call.
func (e *Engine) Run(ctx context.Context, req Request, w transport.EventWriter) error {
	messageID := api.NewMessageID()
	dec, err := e.runTurn(ctx, req, w, messageID, e.files.Container, false)

	if upstream.IsResourceExpired(err) {
		// Exactly one retry: rebuild the tool configuration without the
		// stale container reference and restart the turn from scratch,
		// keeping the message ID so persistence stays idempotent.
		slog.Warn("execution container expired, retrying turn",
			"thread_id", req.ThreadID, "message_id", messageID)

		container, release, acquireErr := e.replacementContainer(ctx)
		if acquireErr != nil {
			// The retry never starts, so the first attempt's partial
			// text is all this turn will ever produce.
			e.persistMessage(ctx, req, dec.conv, dec, dec.partialText())
			e.emitTerminal(ctx, w, api.ErrorEvent("The conversation could not be completed."))
			return fmt.Errorf("engine: acquiring replacement container: %w", acquireErr)
		}
		if release != nil {
			defer release()
		}
		_, err = e.runTurn(ctx, req, w, messageID, container, true)
	}
	return err
}

// replacementContainer provisions a fresh execution container and a files
// client for it. Without an acquirer the retry proceeds with no container
// plumbing rather than failing outright.
func (e *Engine) replacementContainer(ctx context.Context) (files.ContainerFiles, func(), error) {
	if e.files.Acquirer == nil {
		return nil, nil, nil
	}
	url, release, err := e.files.Acquirer.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	if e.files.NewContainer == nil {
		return nil, release, nil
	}
	container, err := e.files.NewContainer(url)
	if err != nil {
		release()
		return nil, nil, err
	}
	return container, release, nil
}

// runTurn executes the orchestrator loop once. On a detected stale
// resource with retried=false it returns an error satisfying
// upstream.IsResourceExpired instead of emitting a terminal event, so
// Run can restart. Every other path ends in stateTerminal with exactly
// one terminal event written and at most one persistence call made.
// The returned decoder exposes the attempt's accumulated state to the
// retry logic.
func (e *Engine) runTurn(ctx context.Context, req Request, w transport.EventWriter, messageID string, container files.ContainerFiles, retried bool) (*decoder, error) {
	conv := NewConversation(req, e.cfg, e.streamer, e.dispatcher.Definitions())
	conv.MessageID = messageID

	resolver := newAnnotationResolver(container, e.files.Store, e.files.Blobs)
	dec := newDecoder(conv, e.dispatcher, resolver, w)

	persisted := false
	persist := func(content string) {
		if persisted {
			return
		}
		persisted = true
		e.persistMessage(ctx, req, conv, dec, content)
	}

	state := stateStreaming
	streams := 0
	open := conv.Start

	for state != stateTerminal {
		if streams >= e.cfg.maxContinuations() {
			slog.Warn("continuation cap reached",
				"message_id", conv.MessageID, "streams", streams)
			persist(dec.partialText())
			e.emitTerminal(ctx, w, api.AbortEvent("The conversation required too many tool calls."))
			state = stateTerminal
			continue
		}

		start := time.Now()
		events, err := open(ctx)
		streams++
		state = stateStreaming
		if err != nil {
			observability.UpstreamStreamsTotal.WithLabelValues(e.cfg.Model, "error").Inc()
			if upstream.IsResourceExpired(err) && !retried {
				return dec, err
			}
			persist(dec.partialText())
			e.emitTerminal(ctx, w, api.ErrorEvent("The model backend is unavailable."))
			observability.ContinuationDepth.Observe(float64(streams))
			return dec, fmt.Errorf("engine: opening upstream stream: %w", err)
		}

		res := dec.consumeStream(ctx, events)
		e.recordStreamMetrics(res, time.Since(start))

		switch res.outcome {
		case outcomeContinue:
			// A tool call completed mid-stream; splice in a fresh
			// upstream stream carrying the appended call/output pair.
			state = stateToolPending
			open = conv.Continue

		case outcomeCompleted:
			final := dec.finalText()
			persist(final)
			e.emitTerminal(ctx, w, api.FinalContentEvent(final))
			state = stateTerminal

		case outcomeIncomplete:
			persist(dec.partialText())
			e.emitTerminal(ctx, w, api.AbortEvent(api.IncompleteReasonMessage(res.incompleteReason)))
			state = stateTerminal

		case outcomeFailed:
			if upstream.IsResourceExpired(res.err) && !retried {
				return dec, res.err
			}
			persist(dec.partialText())
			if ctx.Err() != nil {
				e.emitTerminal(ctx, w, api.AbortEvent("The request was cancelled."))
				observability.ContinuationDepth.Observe(float64(streams))
				return dec, ctx.Err()
			}
			e.emitTerminal(ctx, w, api.ErrorEvent("The model backend returned an error."))
			observability.ContinuationDepth.Observe(float64(streams))
			if res.err != nil {
				return dec, fmt.Errorf("engine: upstream stream failed: %w", res.err)
			}
			return dec, fmt.Errorf("engine: upstream stream failed")
		}
	}

	observability.ContinuationDepth.Observe(float64(streams))
	return dec, nil
}

// emitTerminal writes the turn's single terminal event. Write failures
// are logged, not propagated: by this point persistence has already been
// attempted and the client may simply be gone.
func (e *Engine) emitTerminal(ctx context.Context, w transport.EventWriter, ev api.Event) {
	if err := w.WriteEvent(ctx, ev); err != nil {
		slog.Debug("dropping terminal event", "type", string(ev.Type), "error", err)
	}
}

// persistMessage hands the turn to the persistence sink. It runs even
// after cancellation, detached from the request context, because partial
// text accumulated before the cancel must still be saved best-effort.
func (e *Engine) persistMessage(ctx context.Context, req Request, conv *Conversation, dec *decoder, content string) {
	if e.store == nil {
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	msg := &storage.Message{
		ID:               conv.MessageID,
		ThreadID:         req.ThreadID,
		Role:             "assistant",
		Content:          content,
		ReasoningContent: dec.reasoningText(),
		ToolCalls:        dec.toolCalls(),
	}
	if err := e.store.UpsertMessage(pctx, msg); err != nil {
		observability.PersistenceFailuresTotal.Inc()
		slog.Error("persisting message failed",
			"message_id", conv.MessageID, "thread_id", req.ThreadID, "error", err)
	}
}

// recordStreamMetrics updates the per-stream upstream counters.
func (e *Engine) recordStreamMetrics(res streamResult, elapsed time.Duration) {
	status := "ok"
	if res.outcome == outcomeFailed {
		status = "error"
	}
	observability.UpstreamStreamsTotal.WithLabelValues(e.cfg.Model, status).Inc()
	observability.UpstreamStreamLatency.WithLabelValues(e.cfg.Model).Observe(elapsed.Seconds())
	if res.usage != nil {
		observability.UpstreamTokensTotal.WithLabelValues(e.cfg.Model, "input").Add(float64(res.usage.InputTokens))
		observability.UpstreamTokensTotal.WithLabelValues(e.cfg.Model, "output").Add(float64(res.usage.OutputTokens))
	}
}
