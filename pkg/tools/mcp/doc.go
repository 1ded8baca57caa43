// Package mcp connects the tool dispatcher to external MCP (Model
// Context Protocol) servers. It wraps the official MCP Go SDK
// (github.com/modelcontextprotocol/go-sdk), discovers server tools and
// surfaces them as a tools.Provider, so MCP tools sit in the registry
// next to built-in and dynamic HTTP tools.
//
// Configuration is provided via ServerConfig structs specifying the
// server name, transport type (SSE or streamable-http), URL and optional
// authentication.
package mcp
