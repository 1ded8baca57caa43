package transport

import (
	"context"
	"sync"
)

// InFlightRegistry tracks active streaming turns for explicit
// cancellation. It maps thread IDs to their cancel functions, allowing a
// stop request to abort a turn that is still streaming.
//
// All methods are safe for concurrent access.
type InFlightRegistry struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewInFlightRegistry creates a new empty registry.
func NewInFlightRegistry() *InFlightRegistry {
	return &InFlightRegistry{
		entries: make(map[string]context.CancelFunc),
	}
}

// Register adds an active turn to the registry. A previous turn for the
// same thread is cancelled and replaced; the new turn owns the thread.
func (r *InFlightRegistry) Register(threadID string, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.entries[threadID]; ok {
		prev()
	}
	r.entries[threadID] = cancel
}

// Cancel aborts the active turn of a thread. Returns true if a turn was
// found and cancelled, false if the thread had no turn in flight.
func (r *InFlightRegistry) Cancel(threadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.entries[threadID]
	if !ok {
		return false
	}
	cancel()
	delete(r.entries, threadID)
	return true
}

// Remove removes a turn from the registry without cancelling it.
// Called when a turn completes normally.
func (r *InFlightRegistry) Remove(threadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, threadID)
}
