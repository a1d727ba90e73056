package rca

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome of one RCA attempt.
type Result struct {
	Status string  `json:"status"`
	Report *Report `json:"rca_report,omitempty"`
	Error  string  `json:"error,omitempty"`
	Raw    string  `json:"raw,omitempty"`
	Cached bool    `json:"cached,omitempty"`
}

// OK reports whether the result carries a report.
func (r Result) OK() bool {
	return r.Status == StatusSuccess && r.Report != nil
}

func errorResult(err error, raw string) Result {
	return Result{Status: StatusError, Error: err.Error(), Raw: raw}
}

var errNoObject = errors.New("no JSON object found in model output")

// ParseReport repairs raw model output into a Report. It tries a direct
// parse, then the first balanced {...} in the text. Unparseable output
// yields an error Result carrying the raw text.
func ParseReport(raw string) Result {
	obj, err := decodeObject(raw)
	if err != nil {
		return errorResult(fmt.Errorf("parse rca report: %w", err), raw)
	}
	report := Coerce(NormalizeKeys(obj))
	return Result{Status: StatusSuccess, Report: &report}
}

func decodeObject(raw string) (map[string]any, error) {
	var obj map[string]any
	direct := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj)
	if direct == nil && obj != nil {
		return obj, nil
	}

	candidate, ok := firstObject(raw)
	if !ok {
		if direct != nil {
			return nil, fmt.Errorf("%w: %v", errNoObject, direct)
		}
		return nil, errNoObject
	}
	obj = nil
	if err := json.Unmarshal([]byte(candidate), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errNoObject
	}
	return obj, nil
}

// firstObject returns the first balanced {...} substring. Braces inside
// JSON strings are ignored.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// NormalizeKeys strips whitespace and quote characters from key names,
// recursively. Colliding keys keep an arbitrary one of their values.
func NormalizeKeys(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[cleanKey(k)] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return NormalizeKeys(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

func cleanKey(k string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '"', '\'', '`':
			return -1
		}
		return r
	}, k)
}
