// Package upstream implements the client side of the streaming completion
// backend: the conversation input item model, the streaming event protocol,
// and an HTTP client that opens one physical event stream per call.
//
// The backend has no mid-stream resumption primitive. A logical turn that
// involves tool calls therefore spans several physical streams; each
// continuation carries the full accumulated input list.
package upstream
