// Package memory provides an in-memory MessageStore for testing and
// lightweight deployments. Messages are lost when the process restarts.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/buhlergroup/chatengine/pkg/storage"
)

// entry holds a stored message and its tenant.
type entry struct {
	msg      *storage.Message
	tenantID string
}

// Store is an in-memory MessageStore.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Ensure Store implements storage.MessageStore at compile time.
var _ storage.MessageStore = (*Store)(nil)

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		entries: make(map[string]*entry),
	}
}

// UpsertMessage stores the message, replacing any previous version with
// the same ID. The original CreatedAt survives replacement.
func (s *Store) UpsertMessage(ctx context.Context, msg *storage.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *msg
	stored.UpdatedAt = time.Now()
	if prev, ok := s.entries[msg.ID]; ok {
		stored.CreatedAt = prev.msg.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.UpdatedAt
	}

	s.entries[msg.ID] = &entry{
		msg:      &stored,
		tenantID: storage.GetTenant(ctx),
	}
	return nil
}

// GetMessage retrieves a message by ID, scoped by tenant when one is
// present in the context.
func (s *Store) GetMessage(ctx context.Context, id string) (*storage.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	tenantID := storage.GetTenant(ctx)
	if tenantID != "" && e.tenantID != tenantID {
		return nil, storage.ErrNotFound
	}

	msg := *e.msg
	return &msg, nil
}

// ListThread returns all messages of a thread ordered by creation time.
func (s *Store) ListThread(ctx context.Context, threadID string) ([]*storage.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tenantID := storage.GetTenant(ctx)

	var msgs []*storage.Message
	for _, e := range s.entries {
		if e.msg.ThreadID != threadID {
			continue
		}
		if tenantID != "" && e.tenantID != tenantID {
			continue
		}
		msg := *e.msg
		msgs = append(msgs, &msg)
	}

	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
