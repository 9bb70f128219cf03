// Package decode extracts structured JSON from noisy model output and
// validates it against per-stage schemas. Model responses routinely wrap the
// payload in markdown fences or surround it with prose; the extractor strips
// one fence pair, then scans for a balanced JSON object or array.
package decode

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	ErrEmptyResponse = errors.New("empty response")
	ErrMissingJSON   = errors.New("no JSON payload found in response")
)

// DecodeError wraps a JSON parse failure. The engine skips the item and does
// not retry.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// SchemaError reports a payload that parsed but violates its stage schema.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation at %s: %s", e.Field, e.Reason)
}

// ExtractObject returns the first balanced JSON object in raw, after trimming
// whitespace and stripping one leading/trailing code fence pair.
func ExtractObject(raw string) (string, error) {
	return extract(raw, findJSONObject)
}

// ExtractArray behaves like ExtractObject for top-level JSON arrays. A bare
// object response is wrapped in a one-element list, but only when the object
// starts before any array does, so an array nested inside prose still wins.
func ExtractArray(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyResponse
	}
	for _, candidate := range []string{stripFence(trimmed), trimmed} {
		arr, arrStart, arrOK := findJSONArray(candidate)
		obj, objStart, objOK := findJSONObject(candidate)
		switch {
		case arrOK && (!objOK || arrStart < objStart):
			return arr, nil
		case objOK:
			return "[" + obj + "]", nil
		}
	}
	return "", ErrMissingJSON
}

func extract(raw string, find func(string) (string, int, bool)) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrEmptyResponse
	}

	candidate := stripFence(trimmed)
	if payload, _, ok := find(candidate); ok {
		return payload, nil
	}
	if payload, _, ok := find(trimmed); ok {
		return payload, nil
	}
	return "", ErrMissingJSON
}

// stripFence removes one triple-backtick fence pair, including an optional
// language tag on the opening fence.
func stripFence(trimmed string) string {
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	start := strings.Index(trimmed, "```")
	end := strings.Index(trimmed[start+3:], "```")
	if end == -1 {
		return trimmed
	}
	content := trimmed[start+3 : start+3+end]
	if idx := strings.Index(content, "\n"); idx != -1 {
		content = content[idx+1:]
	}
	return strings.TrimSpace(content)
}

func findJSONObject(input string) (string, int, bool) {
	return findBalanced(input, '{', '}')
}

func findJSONArray(input string) (string, int, bool) {
	return findBalanced(input, '[', ']')
}

// findBalanced scans for the first balanced open/close span, tracking string
// literals and escapes so braces inside values do not confuse the depth count.
func findBalanced(input string, open, close byte) (string, int, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(input); i++ {
		ch := input[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		if ch == open {
			if depth == 0 {
				start = i
			}
			depth++
			continue
		}
		if ch == close {
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				return input[start : i+1], start, true
			}
		}
	}
	return "", -1, false
}

// unmarshalStrict decodes payload into v, rejecting trailing content.
// Unknown fields are tolerated: models often add commentary keys and the
// schema validators judge what matters.
func unmarshalStrict(payload string, v any) error {
	decoder := json.NewDecoder(strings.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(v); err != nil {
		return &DecodeError{Err: err}
	}
	var extra any
	if err := decoder.Decode(&extra); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &DecodeError{Err: err}
	}
	return &DecodeError{Err: errors.New("unexpected trailing JSON content")}
}
