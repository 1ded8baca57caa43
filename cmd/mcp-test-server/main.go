// Command mcp-test-server runs a simple MCP server for exercising the
// engine's MCP client integration. Provides "get_time", "echo" and
// "lookup_document" tools.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := mcp.NewServer(
		&mcp.Implementation{Name: "chatengine-test-mcp", Version: "v1.0.0"},
		nil,
	)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_time",
		Description: "Returns the current UTC time",
	}, func(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, struct{}, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Current time: %s", time.Now().UTC().Format(time.RFC3339))},
			},
		}, struct{}{}, nil
	})

	type EchoInput struct {
		Message string `json:"message" jsonschema_description:"The message to echo back"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "echo",
		Description: "Echoes the provided message back",
	}, func(_ context.Context, _ *mcp.CallToolRequest, input EchoInput) (*mcp.CallToolResult, struct{}, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Echo: %s", input.Message)},
			},
		}, struct{}{}, nil
	})

	// A canned document lookup so tool-call turnarounds have something
	// realistic to chew on.
	type LookupInput struct {
		Query string `json:"query" jsonschema_description:"Search query"`
	}
	mcp.AddTool(server, &mcp.Tool{
		Name:        "lookup_document",
		Description: "Looks up an internal document by query",
	}, func(_ context.Context, _ *mcp.CallToolRequest, input LookupInput) (*mcp.CallToolResult, struct{}, error) {
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Document matching %q: the quarterly report is due Friday.", input.Query)},
			},
		}, struct{}{}, nil
	})

	handler := mcp.NewStreamableHTTPHandler(func(r *http.Request) *mcp.Server {
		return server
	}, nil)

	httpMux := http.NewServeMux()
	httpMux.Handle("/mcp", handler)
	httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok\n"))
	})

	log.Printf("MCP test server starting on :%s", port)
	if err := http.ListenAndServe(":"+port, httpMux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
