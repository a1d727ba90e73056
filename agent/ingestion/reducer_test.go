package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/testutil/fixtures"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

func newTestReducer() *Reducer {
	return NewReducer(DefaultConfig(), nil, nil)
}

func prompt(id uint, at int, text string) types.TraceRecord {
	return fixtures.Interaction(id, fixtures.At(at), map[string]any{"prompt": text, "response": "ok"})
}

func TestReduceInteractions_Windows(t *testing.T) {
	records := []types.TraceRecord{
		prompt(1, 0, "a"),
		prompt(2, 100, "b"),
		prompt(3, 250, "c"),
		prompt(4, 400, "d"),
	}

	out := newTestReducer().ReduceInteractions(records)
	require.Len(t, out, 2)
	assert.Equal(t, 3, out[0].PatternCount)
	assert.Equal(t, 3, out[0].Performance.TotalOccurrences)
	assert.Equal(t, 1, out[1].PatternCount)
	assert.Equal(t, uint(4), out[1].TraceID)
}

func TestReduceInteractions_WindowBoundaryIsInclusive(t *testing.T) {
	out := newTestReducer().ReduceInteractions([]types.TraceRecord{
		prompt(1, 0, "a"),
		prompt(2, 300, "b"),
		prompt(3, 301, "c"),
	})
	require.Len(t, out, 2)
	assert.Equal(t, 2, out[0].PatternCount)
}

func TestReduceInteractions_Representative(t *testing.T) {
	out := newTestReducer().ReduceInteractions([]types.TraceRecord{
		prompt(1, 0, "short"),
		prompt(2, 10, "a much longer prompt"),
		prompt(3, 20, "a much longer prompx"),
	})
	require.Len(t, out, 1)
	assert.Equal(t, uint(2), out[0].TraceID, "longest content wins, first on ties")
	assert.Equal(t, fixtures.At(10), out[0].Timestamp)
	assert.Equal(t, "a much longer prompt", out[0].Prompt.Text)
	assert.Equal(t, "text", out[0].Prompt.Type)
	assert.Equal(t, "ok", out[0].Response.Text)
	assert.NotNil(t, out[0].Model.Parameters)
}

func TestReduceInteractions_FieldsAndObjectResponse(t *testing.T) {
	rec := fixtures.Interaction(7, fixtures.At(0), map[string]any{
		"prompt":           "q",
		"prompt_tokens":    3,
		"response":         map[string]any{"text": "answer", "cited_references": []string{"doc-1"}},
		"response_tokens":  5,
		"response_type":    "json",
		"model":            "gpt-4o",
		"model_version":    "2024-08-06",
		"model_parameters": map[string]any{"temperature": 0.2},
		"context":          []string{"passage one"},
	})

	out := newTestReducer().ReduceInteractions([]types.TraceRecord{rec})
	require.Len(t, out, 1)
	got := out[0]
	require.NotNil(t, got.Prompt.Tokens)
	assert.Equal(t, 3, *got.Prompt.Tokens)
	assert.Equal(t, 5, *got.Response.Tokens)
	assert.Equal(t, "json", got.Response.Type)
	assert.Equal(t, map[string]any{"text": "answer", "cited_references": []any{"doc-1"}}, got.Response.Text)
	assert.Equal(t, ModelSummary{Name: "gpt-4o", Version: "2024-08-06", Parameters: map[string]any{"temperature": 0.2}}, got.Model)
	assert.Equal(t, []string{"passage one"}, got.Context)
}

func TestReduceInteractions_AverageDuration(t *testing.T) {
	r := newTestReducer()

	out := r.ReduceInteractions([]types.TraceRecord{
		fixtures.WithDuration(prompt(1, 0, "a"), 2),
		prompt(2, 1, "b"),
		fixtures.WithDuration(prompt(3, 2, "c"), 4),
	})
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Performance.AvgDuration)
	assert.InDelta(t, 3.0, *out[0].Performance.AvgDuration, 1e-9)

	out = r.ReduceInteractions([]types.TraceRecord{prompt(1, 0, "a")})
	assert.Nil(t, out[0].Performance.AvgDuration)
}

func TestReduceInteractions_UnsortedInputIsOrdered(t *testing.T) {
	out := newTestReducer().ReduceInteractions([]types.TraceRecord{
		prompt(2, 400, "late"),
		prompt(1, 0, "early"),
	})
	require.Len(t, out, 2)
	assert.Equal(t, uint(1), out[0].TraceID)
}

func TestReduce_EmptyAndMismatched(t *testing.T) {
	r := newTestReducer()
	assert.Empty(t, r.ReduceInteractions(nil))
	assert.NotNil(t, r.ReduceInteractions(nil))
	assert.Empty(t, r.ReduceLogs(nil))
	assert.Empty(t, r.ReduceMetrics(nil))

	// a log record handed to the interaction reducer is skipped
	out := r.ReduceInteractions([]types.TraceRecord{fixtures.Log(1, fixtures.At(0), "INFO", "x"), prompt(2, 1, "a")})
	require.Len(t, out, 1)
	assert.Equal(t, 1, out[0].PatternCount)
}

func TestReduceLogs_SeverityRepresentative(t *testing.T) {
	out := newTestReducer().ReduceLogs([]types.TraceRecord{
		fixtures.Log(1, fixtures.At(0), "INFO", "started"),
		fixtures.Log(2, fixtures.At(10), "ERROR", "db down"),
		fixtures.Log(3, fixtures.At(20), "WARNING", "slow"),
	})
	require.Len(t, out, 1)
	assert.Equal(t, uint(2), out[0].TraceID)
	assert.Equal(t, "ERROR", out[0].Level)
	assert.Equal(t, "db down", out[0].Message)
	assert.Equal(t, 3, out[0].OccurrenceCount)
}

func TestReduceLogs_LevelHandling(t *testing.T) {
	r := newTestReducer()

	// absent level ranks as INFO and beats DEBUG
	out := r.ReduceLogs([]types.TraceRecord{
		fixtures.Log(1, fixtures.At(0), "DEBUG", "d"),
		fixtures.Record(2, fixtures.At(1), types.TraceTypeLog, map[string]any{"message": "no level"}),
	})
	require.Len(t, out, 1)
	assert.Equal(t, uint(2), out[0].TraceID)
	assert.Equal(t, "INFO", out[0].Level)

	// case-insensitive; ties keep the first
	out = r.ReduceLogs([]types.TraceRecord{
		fixtures.Log(1, fixtures.At(0), "warning", "w"),
		fixtures.Log(2, fixtures.At(1), "error", "e1"),
		fixtures.Log(3, fixtures.At(2), "ERROR", "e2"),
	})
	assert.Equal(t, uint(2), out[0].TraceID)
	assert.Equal(t, "error", out[0].Level)

	// unknown levels rank with DEBUG
	out = r.ReduceLogs([]types.TraceRecord{
		fixtures.Log(1, fixtures.At(0), "TRACE", "t"),
		fixtures.Log(2, fixtures.At(1), "INFO", "i"),
	})
	assert.Equal(t, uint(2), out[0].TraceID)
}

func TestReduceLogs_Context(t *testing.T) {
	rec := fixtures.WithUser(fixtures.Record(5, fixtures.At(0), types.TraceTypeLog, map[string]any{
		"level": "ERROR", "type": "db", "message": "boom", "session_id": "s-1", "environment": "prod",
	}), 42)

	out := newTestReducer().ReduceLogs([]types.TraceRecord{rec, fixtures.Log(6, fixtures.At(61), "INFO", "later")})
	require.Len(t, out, 2)
	assert.Equal(t, "db", out[0].Type)
	require.NotNil(t, out[0].Context.UserID)
	assert.Equal(t, uint(42), *out[0].Context.UserID)
	assert.Equal(t, "s-1", out[0].Context.SessionID)
	assert.Equal(t, "prod", out[0].Context.Environment)
}

func TestReduceMetrics_Significance(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		retained bool
		trend    Trend
	}{
		{"small change", []float64{10, 10.5}, false, ""},
		{"increase", []float64{10, 12}, true, TrendIncreasing},
		{"decrease", []float64{12, 10}, true, TrendDecreasing},
		{"single sample", []float64{3}, true, TrendStable},
		{"flat zero", []float64{0, 0}, false, ""},
		{"rise from zero", []float64{0, 5}, true, TrendIncreasing},
		{"round trip", []float64{10, 20, 10.5}, true, TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := make([]types.TraceRecord, len(tt.values))
			for i, v := range tt.values {
				records[i] = fixtures.Metric(uint(i+1), fixtures.At(i), "latency", v)
			}
			out := newTestReducer().ReduceMetrics(records)
			if !tt.retained {
				assert.Empty(t, out)
				return
			}
			require.Len(t, out, 1)
			last := len(tt.values) - 1
			assert.Equal(t, uint(last+1), out[0].TraceID, "latest sample represents the series")
			assert.Equal(t, tt.values[last], out[0].Value)
			assert.Equal(t, tt.trend, out[0].Trend)
		})
	}
}

func TestReduceMetrics_GroupsInFirstSeenOrder(t *testing.T) {
	named, err := types.DecodeTraceContent([]byte(`{"type":"metric","metric_name":"cpu","data":{"name":"ignored","value":1,"unit":"%","type":"counter","tags":{"service":"api","environment":"prod"}}}`))
	require.NoError(t, err)

	out := newTestReducer().ReduceMetrics([]types.TraceRecord{
		fixtures.Metric(1, fixtures.At(0), "mem", 100),
		{ID: 2, CreatedAt: fixtures.At(1), Content: named},
		fixtures.Metric(3, fixtures.At(2), "mem", 100),
	})
	require.Len(t, out, 1)
	assert.Equal(t, "cpu", out[0].Name)
	assert.Equal(t, "counter", out[0].Type)
	assert.Equal(t, "%", out[0].Unit)
	assert.Equal(t, "api", out[0].Tags.Service)

	out = newTestReducer().ReduceMetrics([]types.TraceRecord{
		fixtures.Metric(1, fixtures.At(0), "b", 1),
		fixtures.Metric(2, fixtures.At(1), "a", 1),
	})
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Name)
	assert.Equal(t, "gauge", out[0].Type)
	assert.Equal(t, "a", out[1].Name)
}

func TestSplitWindows_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		span := time.Duration(rapid.IntRange(1, 600).Draw(t, "span")) * time.Second
		gaps := rapid.SliceOfN(rapid.IntRange(0, 400), 1, 50).Draw(t, "gaps")

		records := make([]types.TraceRecord, len(gaps))
		offset := 0
		for i, g := range gaps {
			offset += g
			records[i] = types.TraceRecord{ID: uint(i + 1), CreatedAt: fixtures.At(offset)}
		}

		windows := splitWindows(records, span)
		total := 0
		for i, w := range windows {
			if len(w) == 0 {
				t.Fatalf("window %d is empty", i)
			}
			total += len(w)
			for _, rec := range w {
				if rec.CreatedAt.Sub(w[0].CreatedAt) > span {
					t.Fatalf("record %d is beyond its window", rec.ID)
				}
			}
			if i > 0 && w[0].CreatedAt.Sub(windows[i-1][0].CreatedAt) <= span {
				t.Fatalf("window %d should have joined the previous window", i)
			}
		}
		if total != len(records) {
			t.Fatalf("windows hold %d records, want %d", total, len(records))
		}
	})
}
