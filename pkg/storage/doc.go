// Package storage defines the persistence sink for conversation turns:
// the MessageStore interface, the persisted Message shape, shared
// sentinel errors and tenant context helpers.
//
// Adapters live in the memory and postgres subpackages. The engine
// persists each logical turn at most once, keyed by its stable message
// ID, so adapters implement upsert semantics.
package storage
