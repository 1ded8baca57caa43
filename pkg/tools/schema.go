package tools

import (
	"encoding/json"
	"fmt"
	"sort"
)

// NormalizeStrict rewrites a JSON Schema into strict mode: every object
// schema gets additionalProperties: false and all declared properties
// marked required, recursively through nested properties, array items and
// schema combinators. The transformation is idempotent, so normalizing an
// already-strict schema is a no-op. A nil or empty schema yields a strict
// empty object schema.
func NormalizeStrict(schema json.RawMessage) (json.RawMessage, error) {
	if len(schema) == 0 {
		return json.RawMessage(`{"type":"object","properties":{},"required":[],"additionalProperties":false}`), nil
	}

	var node any
	if err := json.Unmarshal(schema, &node); err != nil {
		return nil, fmt.Errorf("invalid JSON schema: %w", err)
	}

	strictify(node)

	out, err := json.Marshal(node)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// strictify walks a decoded schema tree in place.
func strictify(node any) {
	obj, ok := node.(map[string]any)
	if !ok {
		return
	}

	if isObjectSchema(obj) {
		obj["additionalProperties"] = false

		props, _ := obj["properties"].(map[string]any)
		names := make([]string, 0, len(props))
		for name := range props {
			names = append(names, name)
		}
		// Deterministic order keeps the normalized form stable across runs.
		sort.Strings(names)
		required := make([]any, len(names))
		for i, name := range names {
			required[i] = name
		}
		obj["required"] = required

		for _, sub := range props {
			strictify(sub)
		}
	}

	if items, ok := obj["items"]; ok {
		strictify(items)
	}
	for _, key := range []string{"$defs", "definitions"} {
		if defs, ok := obj[key].(map[string]any); ok {
			for _, sub := range defs {
				strictify(sub)
			}
		}
	}
	for _, key := range []string{"anyOf", "oneOf", "allOf"} {
		if list, ok := obj[key].([]any); ok {
			for _, sub := range list {
				strictify(sub)
			}
		}
	}
}

// isObjectSchema reports whether the node describes a JSON object, either
// by explicit type or by carrying a properties map.
func isObjectSchema(obj map[string]any) bool {
	if t, ok := obj["type"].(string); ok && t == "object" {
		return true
	}
	_, hasProps := obj["properties"]
	return hasProps
}
