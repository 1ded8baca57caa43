package transport

import (
	"context"
	"errors"

	"github.com/buhlergroup/chatengine/pkg/api"
)

// ErrStreamClosed is returned by WriteEvent once the outward stream has
// ended, either because a terminal event was written or because the
// client disconnected. Callers treat it as "drop, don't buffer".
var ErrStreamClosed = errors.New("transport: stream closed")

// EventWriter emits client-facing events for one conversation turn.
//
// Implementations enforce the exactly-once terminal contract: after a
// terminal event (finalContent, abort, error) has been written, every
// further WriteEvent returns ErrStreamClosed. Writes after the client
// disconnects are likewise dropped rather than buffered.
type EventWriter interface {
	// WriteEvent sends a single event. The event must be flushed to the
	// client before WriteEvent returns; incremental delivery is the
	// point of the stream.
	WriteEvent(ctx context.Context, event api.Event) error

	// Flush forces any transport-level buffering out to the client.
	Flush() error
}
