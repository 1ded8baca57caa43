// Package transport defines the handler contract and middleware chain for
// the chat engine's HTTP/SSE transport layer.
//
// The transport layer bridges clients and the conversation engine. It
// decodes an incoming chat request into ChatRequest, dispatches it to a
// TurnRunner, and streams the outward events back as server-sent events.
//
// The EventWriter interface carries the outward event protocol: one
// `event:`/`data:` line pair per event, flushed immediately, with exactly
// one terminal event per turn enforced by the writer itself.
//
// Middleware wraps TurnRunner with cross-cutting concerns: panic
// recovery, request ID assignment (X-Request-ID), and structured logging
// via log/slog.
package transport
