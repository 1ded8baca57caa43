// Package engine implements the conversation streaming core: it conducts
// a multi-turn, tool-augmented exchange with the upstream completion
// backend, decodes the upstream event stream incrementally, executes tool
// calls mid-stream, resolves file annotations, and re-encodes the whole
// interaction as one continuous client event stream.
//
// A logical turn may span several physical upstream streams: the backend
// has no mid-stream resumption primitive, so after every completed tool
// call the engine closes the current stream and opens a continuation
// carrying the full accumulated input. The client never sees the seam;
// content events carry one stable message ID for the whole turn and
// exactly one terminal event ends it.
package engine
