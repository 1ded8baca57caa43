package tools

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// decode is a test helper for comparing schemas structurally.
func decode(t *testing.T, raw json.RawMessage) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal schema: %v", err)
	}
	return m
}

func TestNormalizeStrict_FlatObject(t *testing.T) {
	in := json.RawMessage(`{
		"type": "object",
		"properties": {
			"prompt": {"type": "string"},
			"size": {"type": "string"}
		},
		"required": ["prompt"]
	}`)

	out, err := NormalizeStrict(in)
	if err != nil {
		t.Fatalf("NormalizeStrict: %v", err)
	}

	got := decode(t, out)
	if got["additionalProperties"] != false {
		t.Error("additionalProperties not set to false")
	}

	want := []any{"prompt", "size"}
	if diff := cmp.Diff(want, got["required"]); diff != "" {
		t.Errorf("required mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeStrict_Nested(t *testing.T) {
	in := json.RawMessage(`{
		"type": "object",
		"properties": {
			"filter": {
				"type": "object",
				"properties": {"tag": {"type": "string"}}
			},
			"items": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {"id": {"type": "string"}}
				}
			}
		}
	}`)

	out, err := NormalizeStrict(in)
	if err != nil {
		t.Fatalf("NormalizeStrict: %v", err)
	}

	got := decode(t, out)
	filter := got["properties"].(map[string]any)["filter"].(map[string]any)
	if filter["additionalProperties"] != false {
		t.Error("nested object not strict")
	}
	if diff := cmp.Diff([]any{"tag"}, filter["required"]); diff != "" {
		t.Errorf("nested required mismatch (-want +got):\n%s", diff)
	}

	arrayItems := got["properties"].(map[string]any)["items"].(map[string]any)["items"].(map[string]any)
	if arrayItems["additionalProperties"] != false {
		t.Error("array item schema not strict")
	}
}

func TestNormalizeStrict_Idempotent(t *testing.T) {
	in := json.RawMessage(`{
		"type": "object",
		"properties": {"a": {"type": "number"}, "b": {"type": "string"}}
	}`)

	once, err := NormalizeStrict(in)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	twice, err := NormalizeStrict(once)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if diff := cmp.Diff(decode(t, once), decode(t, twice)); diff != "" {
		t.Errorf("normalization not idempotent (-once +twice):\n%s", diff)
	}
}

func TestNormalizeStrict_EmptySchema(t *testing.T) {
	out, err := NormalizeStrict(nil)
	if err != nil {
		t.Fatalf("NormalizeStrict(nil): %v", err)
	}
	got := decode(t, out)
	if got["type"] != "object" || got["additionalProperties"] != false {
		t.Errorf("empty schema normalized to %v", got)
	}
}

func TestNormalizeStrict_InvalidJSON(t *testing.T) {
	if _, err := NormalizeStrict(json.RawMessage(`{broken`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
