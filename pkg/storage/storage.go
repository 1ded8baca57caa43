package storage

import (
	"context"
	"time"
)

// ToolCallRecord is one executed tool call stored with a message.
type ToolCallRecord struct {
	CallID    string `json:"callId"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Output    string `json:"output,omitempty"`
	IsError   bool   `json:"isError,omitempty"`
}

// Message is a persisted conversation turn. The ID stays stable across
// all continuation streams of one logical turn.
type Message struct {
	ID               string
	ThreadID         string
	Role             string
	Content          string
	ReasoningContent string
	ToolCalls        []ToolCallRecord
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// MessageStore persists conversation turns. UpsertMessage is keyed by
// Message.ID: writing the same ID again replaces the stored turn, which
// makes the at-most-once persistence guarantee idempotent under retries.
type MessageStore interface {
	UpsertMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID. Returns ErrNotFound if no
	// message with that ID exists (tenant-scoped).
	GetMessage(ctx context.Context, id string) (*Message, error)

	// ListThread returns all messages of a thread in chronological
	// order (tenant-scoped). An unknown thread yields an empty slice.
	ListThread(ctx context.Context, threadID string) ([]*Message, error)

	// HealthCheck reports whether the backing store is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}
