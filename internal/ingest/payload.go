package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"CaseCurator/internal/schema"
)

type completionBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// unwrap returns the structured object inside a chat completion body, or the payload
// itself when it is already bare content. Markdown code fences are stripped.
func unwrap(payload []byte) ([]byte, error) {
	trimmed := []byte(schema.StripFences(string(payload)))
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if _, ok := top["choices"]; !ok {
		return trimmed, nil
	}

	var body completionBody
	if err := json.Unmarshal(trimmed, &body); err != nil {
		return nil, fmt.Errorf("decode completion body: %w", err)
	}
	if len(body.Choices) == 0 {
		return nil, fmt.Errorf("completion body has no choices")
	}
	content := []byte(schema.StripFences(body.Choices[0].Message.Content))
	if len(content) == 0 {
		return nil, fmt.Errorf("completion content is empty")
	}
	return content, nil
}

// fields is the decoded top-level object with key presence preserved.
type fields map[string]json.RawMessage

func (f fields) has(key string) bool {
	_, ok := f[key]
	return ok
}

func (f fields) str(keys ...string) string {
	for _, k := range keys {
		raw, ok := f[k]
		if !ok {
			continue
		}
		if s, ok := asString(raw); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func asString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// stringList accepts an array of strings, a single string, or null.
func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 || isNull(raw) {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		out := list[:0]
		for _, v := range list {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		return out
	}
	if s, ok := asString(raw); ok {
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	}
	return nil
}
