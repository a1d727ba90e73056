package rca

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/testutil/fixtures"
)

func TestParseReport(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantSummary string
		wantRoot    string
	}{
		{"direct", fixtures.RCAReportJSON, "Checkout agent returned stale prices", "Pricing tool cache was not invalidated after deploy"},
		{"markdown fence", "```json\n{\"summary\": \"fenced\", \"root_cause\": \"rc\"}\n```", "fenced", "rc"},
		{"surrounding prose", fixtures.RCAReportWithProse, "Timeouts {under load}", "DB pool exhausted"},
		{"escaped quote in string", `{"summary": "said \"}\" twice", "root_cause": "rc"}`, `said "}" twice`, "rc"},
		{"nested object", `noise {"summary": "n", "root_cause": "r", "meta": {"x": "}"}} tail`, "n", "r"},
		{"noisy keys", `{" summary ": "k", "'root_cause'": "q", "\"replay\"": "s"}`, "k", "q"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseReport(tt.raw)
			require.True(t, res.OK(), res.Error)
			assert.Equal(t, StatusSuccess, res.Status)
			assert.Equal(t, tt.wantSummary, res.Report.Summary)
			assert.Equal(t, tt.wantRoot, res.Report.RootCause)
			assert.NotEmpty(t, res.Report.ContributingFactors)
			assert.NotEmpty(t, res.Report.Replay)
			assert.NotEmpty(t, res.Report.Resolution)
			assert.Empty(t, res.Raw)
		})
	}
}

func TestParseReport_Fixture(t *testing.T) {
	res := ParseReport(fixtures.RCAReportJSON)
	require.True(t, res.OK())

	assert.Equal(t, []ContributingFactor{{Title: "Cache TTL", Details: "TTL set to 24h", TraceID: "12"}}, res.Report.ContributingFactors)
	assert.Equal(t, []ReplayStep{{Step: 1, Title: "User asks for price", Details: "trace 12"}}, res.Report.Replay)
	assert.Equal(t, []ResolutionAction{{Action: "Invalidate cache on deploy", Status: DefaultActionStatus, Details: "hook into CI"}}, res.Report.Resolution)
}

func TestParseReport_Failures(t *testing.T) {
	for _, raw := range []string{
		"",
		"I could not determine a root cause.",
		`{"summary": "unterminated"`,
		`[1, 2, 3]`,
		`null`,
		`before {not json} after`,
	} {
		t.Run(raw, func(t *testing.T) {
			var res Result
			require.NotPanics(t, func() { res = ParseReport(raw) })
			assert.Equal(t, StatusError, res.Status)
			assert.False(t, res.OK())
			assert.Nil(t, res.Report)
			assert.NotEmpty(t, res.Error)
			assert.Equal(t, raw, res.Raw)
		})
	}
}

func TestNormalizeKeys(t *testing.T) {
	got := NormalizeKeys(map[string]any{
		" summary\n": "s",
		"`replay`": []any{
			map[string]any{"\"title\" ": "t"},
		},
		"root cause": "r",
	})

	assert.Equal(t, map[string]any{
		"summary":   "s",
		"replay":    []any{map[string]any{"title": "t"}},
		"rootcause": "r",
	}, got)
}

func TestFirstObject(t *testing.T) {
	obj, ok := firstObject(`x {"a": "{", "b": {"c": 1}} y {"d": 2}`)
	require.True(t, ok)
	assert.Equal(t, `{"a": "{", "b": {"c": 1}}`, obj)

	_, ok = firstObject(`{"a": 1`)
	assert.False(t, ok)

	_, ok = firstObject("no braces")
	assert.False(t, ok)
}
