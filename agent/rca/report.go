package rca

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NoDetails fills missing narrative fields.
const NoDetails = "No details provided"

// Default titles used when the model omits or flattens an evidence entry.
const (
	DefaultFactorTitle  = "Contributing Factor"
	DefaultStepTitle    = "Step"
	DefaultAction       = "Investigate the failure"
	DefaultActionStatus = "pending"
)

const (
	fieldSummary    = "summary"
	fieldRootCause  = "root_cause"
	fieldFactors    = "contributing_factors"
	fieldReplay     = "replay"
	fieldResolution = "resolution"
	fieldTitle      = "title"
	fieldDetails    = "details"
	fieldLogID      = "log_id"
	fieldTraceID    = "trace_id"
	fieldTimestamp  = "timestamp"
	fieldStep       = "step"
	fieldAction     = "action"
	fieldStatus     = "status"
)

// Report is the normalized RCA report. All list fields are non-empty after
// Coerce.
type Report struct {
	Summary             string               `json:"summary"`
	RootCause           string               `json:"root_cause"`
	ContributingFactors []ContributingFactor `json:"contributing_factors"`
	Replay              []ReplayStep         `json:"replay"`
	Resolution          []ResolutionAction   `json:"resolution"`
}

// ContributingFactor is one piece of evidence behind the root cause.
type ContributingFactor struct {
	Title     string `json:"title"`
	Details   string `json:"details"`
	LogID     string `json:"log_id"`
	TraceID   string `json:"trace_id"`
	Timestamp string `json:"timestamp"`
}

// ReplayStep is one step of the failure timeline.
type ReplayStep struct {
	Step      int    `json:"step"`
	Title     string `json:"title"`
	Details   string `json:"details"`
	Timestamp string `json:"timestamp"`
}

// ResolutionAction is one suggested fix.
type ResolutionAction struct {
	Action  string `json:"action"`
	Status  string `json:"status"`
	Details string `json:"details"`
}

// Map returns the report as a generic JSON object.
func (r Report) Map() map[string]any {
	b, _ := json.Marshal(r)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

// Coerce forces an arbitrary decoded object into the Report shape.
// Coerce(Coerce(m).Map()) == Coerce(m).
func Coerce(m map[string]any) Report {
	r := Report{
		Summary:   textOr(m[fieldSummary], NoDetails),
		RootCause: textOr(m[fieldRootCause], NoDetails),
	}

	for _, e := range entries(m[fieldFactors]) {
		r.ContributingFactors = append(r.ContributingFactors, ContributingFactor{
			Title:     textOr(e[fieldTitle], DefaultFactorTitle),
			Details:   textOr(e[fieldDetails], NoDetails),
			LogID:     textOr(e[fieldLogID], ""),
			TraceID:   textOr(e[fieldTraceID], ""),
			Timestamp: textOr(e[fieldTimestamp], ""),
		})
	}
	for i, e := range entries(m[fieldReplay]) {
		r.Replay = append(r.Replay, ReplayStep{
			Step:      intOr(e[fieldStep], i+1),
			Title:     textOr(e[fieldTitle], DefaultStepTitle),
			Details:   textOr(e[fieldDetails], NoDetails),
			Timestamp: textOr(e[fieldTimestamp], ""),
		})
	}
	for _, e := range entries(m[fieldResolution]) {
		r.Resolution = append(r.Resolution, ResolutionAction{
			Action:  textOr(e[fieldAction], DefaultAction),
			Status:  textOr(e[fieldStatus], DefaultActionStatus),
			Details: textOr(e[fieldDetails], NoDetails),
		})
	}
	return r
}

// entries normalizes a list-typed field into a non-empty list of objects.
// Strings become {"details": s}; absent, null or empty values become a
// single empty object so the template defaults apply.
func entries(v any) []map[string]any {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case nil:
	default:
		items = []any{t}
	}

	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		switch e := item.(type) {
		case map[string]any:
			out = append(out, e)
		case nil:
		default:
			if s := textOr(e, ""); s != "" {
				out = append(out, map[string]any{fieldDetails: s})
			}
		}
	}
	if len(out) == 0 {
		out = append(out, map[string]any{})
	}
	return out
}

// textOr renders v as text; empty or missing values yield def.
func textOr(v any, def string) string {
	var s string
	switch t := v.(type) {
	case nil:
		return def
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return def
		}
		s = string(b)
	default:
		s = fmt.Sprint(t)
	}
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// intOr accepts whole numbers in (0, MaxInt32]; anything else yields def.
func intOr(v any, def int) int {
	switch t := v.(type) {
	case float64:
		if t == math.Trunc(t) && t > 0 && t <= math.MaxInt32 {
			return int(t)
		}
	case int:
		if t > 0 && t <= math.MaxInt32 {
			return t
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil && n > 0 && n <= math.MaxInt32 {
			return n
		}
	}
	return def
}
