// Package tools implements the tool dispatcher: a per-instance registry
// that maps tool names onto executable handlers. Built-in tools are
// contributed by Provider implementations; dynamic tools are plain data
// descriptors backed by arbitrary HTTP endpoints and executed by one
// shared generic executor.
//
// All tool parameter schemas are normalized into strict mode at
// registration time: every object schema gets additionalProperties: false
// and all declared properties marked required.
package tools
