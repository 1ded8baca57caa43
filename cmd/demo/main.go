// Command demo is a terminal chat client for a running engine server.
// It sends each line you type as a turn on one thread and renders the
// event stream as it arrives: content deltas inline, tool calls and
// reasoning as bracketed notes.
//
// Usage:
//
//	demo [-server http://localhost:8080] [-thread thread-demo] [-user alice]
package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
)

type chatRequest struct {
	ThreadID string `json:"threadId"`
	Message  string `json:"message"`
	User     string `json:"user,omitempty"`
}

func main() {
	server := flag.String("server", "http://localhost:8080", "engine server base URL")
	thread := flag.String("thread", "thread-demo", "conversation thread ID")
	user := flag.String("user", "", "user identity sent with each turn")
	flag.Parse()

	fmt.Printf("connected to %s (thread %s), ctrl-d to quit\n", *server, *thread)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := runTurn(*server, *thread, *user, line); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func runTurn(server, thread, user, message string) error {
	body, err := json.Marshal(chatRequest{ThreadID: thread, Message: message, User: user})
	if err != nil {
		return err
	}

	resp, err := http.Post(server+"/v1/chat", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		data, _ := json.MarshalIndent(json.RawMessage(readAll(resp)), "", "  ")
		return fmt.Errorf("server returned %s:\n%s", resp.Status, data)
	}

	return renderStream(resp)
}

// renderStream consumes the SSE stream and prints it.
func renderStream(resp *http.Response) error {
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	streaming := false
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "event: ") {
			eventType = strings.TrimPrefix(line, "event: ")
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			return nil
		}

		var payload struct {
			Text      string `json:"text"`
			Name      string `json:"name"`
			Arguments string `json:"arguments"`
			Result    string `json:"result"`
			Reason    string `json:"reason"`
			Message   string `json:"message"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			continue
		}

		switch eventType {
		case "content":
			fmt.Print(payload.Text)
			streaming = true
		case "reasoning":
			fmt.Printf("[thinking] %s\n", strings.TrimSpace(payload.Text))
		case "functionCall":
			fmt.Printf("\n[tool call] %s(%s)\n", payload.Name, payload.Arguments)
		case "functionCallResult":
			fmt.Printf("[tool result] %s\n", truncate(payload.Result, 120))
		case "finalContent":
			if streaming {
				fmt.Println()
			} else {
				fmt.Println(payload.Text)
			}
		case "abort":
			fmt.Printf("\n[aborted] %s\n", payload.Reason)
		case "error":
			fmt.Printf("\n[error] %s\n", payload.Message)
		}
	}
	return scanner.Err()
}

func readAll(resp *http.Response) []byte {
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return buf.Bytes()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
