// Package api defines the client-facing event catalog for the chat
// streaming engine, along with ID generation and the error taxonomy.
//
// A logical assistant turn is delivered to the client as an ordered
// stream of events. Incremental events (content, reasoning, functionCall,
// functionCallResult) may repeat; exactly one terminal event
// (finalContent, abort, or error) closes the stream.
package api
