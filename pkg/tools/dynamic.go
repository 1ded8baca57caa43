package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/buhlergroup/chatengine/pkg/upstream"
)

// Descriptor describes an HTTP-backed dynamic tool. It is plain data:
// execution logic lives entirely in the shared generic executor, so
// descriptors can travel in client requests and be compared and logged.
type Descriptor struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Parameters  json.RawMessage   `json:"parameters,omitempty"`
	Endpoint    string            `json:"endpoint"`
	Method      string            `json:"method,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return fmt.Errorf("tools: dynamic tool name is required")
	}
	if d.Endpoint == "" {
		return fmt.Errorf("tools: dynamic tool %q: endpoint is required", d.Name)
	}
	switch strings.ToUpper(d.Method) {
	case "", http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return fmt.Errorf("tools: dynamic tool %q: unsupported method %q", d.Name, d.Method)
	}
	return nil
}

// dynamicTool is a registered descriptor with its normalized schema.
type dynamicTool struct {
	desc Descriptor
}

func (t *dynamicTool) definition() upstream.ToolDefinition {
	return upstream.ToolDefinition{
		Type:        "function",
		Name:        t.desc.Name,
		Description: t.desc.Description,
		Parameters:  t.desc.Parameters,
		Strict:      true,
	}
}

// placeholderPattern matches {PLACEHOLDER} segments in endpoint templates.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// dynamicExecutor executes any dynamic tool descriptor. One instance is
// shared by the whole registry.
type dynamicExecutor struct {
	httpClient *http.Client
	signer     *IdentitySigner
}

func newDynamicExecutor(signer *IdentitySigner) *dynamicExecutor {
	return &dynamicExecutor{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		signer:     signer,
	}
}

// execute performs the HTTP call a descriptor describes. Arguments carry
// an optional "query" object (path placeholders and query string) and an
// optional "body" object (JSON payload for write methods). Every failure
// becomes a structured error result so the call/output pair survives.
func (e *dynamicExecutor) execute(ctx context.Context, d Descriptor, call Call) (*Result, error) {
	if call.Arguments != "" && !gjson.Valid(call.Arguments) {
		return errorResult(call.ID, "arguments are not valid JSON"), nil
	}

	endpoint, query, err := buildURL(d.Endpoint, gjson.Get(call.Arguments, "query"))
	if err != nil {
		return errorResult(call.ID, err.Error()), nil
	}

	method := strings.ToUpper(d.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if method != http.MethodGet && method != http.MethodDelete {
		if b := gjson.Get(call.Arguments, "body"); b.Exists() {
			body = strings.NewReader(b.Raw)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint+query, body)
	if err != nil {
		return errorResult(call.ID, fmt.Sprintf("build request: %v", err)), nil
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Merge order: descriptor statics, then per-request context headers,
	// then the signed identity header, which nothing may override.
	for k, v := range d.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}
	if e.signer != nil {
		assertion, err := e.signer.Assertion(call.User)
		if err != nil {
			return errorResult(call.ID, fmt.Sprintf("sign identity assertion: %v", err)), nil
		}
		req.Header.Set(IdentityHeader, assertion)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return errorResult(call.ID, fmt.Sprintf("call %s: %v", d.Name, err)), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errorResult(call.ID, fmt.Sprintf("read %s response: %v", d.Name, err)), nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := sjson.Set("{}", "error", fmt.Sprintf("%s returned HTTP %d", d.Name, resp.StatusCode))
		payload, _ = sjson.Set(payload, "status", resp.StatusCode)
		payload, _ = sjson.Set(payload, "body", string(data))
		return &Result{CallID: call.ID, Output: payload, IsError: true}, nil
	}

	return &Result{CallID: call.ID, Output: string(data)}, nil
}

// buildURL substitutes {PLACEHOLDER} path segments from the query object
// and turns the remaining fields into a query string. A placeholder with
// no matching query field is an error: the endpoint would be malformed.
func buildURL(template string, query gjson.Result) (endpoint, queryString string, err error) {
	used := make(map[string]bool)

	endpoint = placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1 : len(m)-1]
		v := query.Get(name)
		if !v.Exists() {
			err = fmt.Errorf("missing value for path placeholder %q", name)
			return m
		}
		used[name] = true
		return url.PathEscape(v.String())
	})
	if err != nil {
		return "", "", err
	}

	values := url.Values{}
	query.ForEach(func(key, value gjson.Result) bool {
		if !used[key.String()] {
			values.Set(key.String(), value.String())
		}
		return true
	})
	if len(values) > 0 {
		queryString = "?" + values.Encode()
	}
	return endpoint, queryString, nil
}
