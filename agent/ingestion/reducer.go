package ingestion

import (
	"encoding/json"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/metrics"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// Log severities. Levels outside the table rank with DEBUG.
var logSeverity = map[string]int{
	"ERROR":   3,
	"WARNING": 2,
	"INFO":    1,
	"DEBUG":   0,
}

// Reducer collapses redundant trace records into synthesized summaries.
// It is stateless apart from its configuration and safe for concurrent use.
type Reducer struct {
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Collector
}

// NewReducer creates a Reducer. A nil collector disables metrics.
func NewReducer(cfg Config, logger *zap.Logger, collector *metrics.Collector) *Reducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reducer{
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "reducer")),
		metrics: collector,
	}
}

// ReduceInteractions emits one SynthesizedInteraction per interaction window.
// The representative is the record with the longest serialized content; the
// earliest one wins ties.
func (r *Reducer) ReduceInteractions(records []types.TraceRecord) []SynthesizedInteraction {
	valid := r.filter(records, types.TraceTypeInteraction)
	out := make([]SynthesizedInteraction, 0)
	for _, window := range splitWindows(valid, r.cfg.InteractionWindow) {
		out = append(out, synthesizeInteraction(window))
	}
	r.metrics.RecordReduction(string(types.TraceTypeInteraction), len(valid), len(out))
	return out
}

// ReduceLogs emits one SynthesizedLog per log window, represented by its
// most severe entry.
func (r *Reducer) ReduceLogs(records []types.TraceRecord) []SynthesizedLog {
	valid := r.filter(records, types.TraceTypeLog)
	out := make([]SynthesizedLog, 0)
	for _, window := range splitWindows(valid, r.cfg.LogWindow) {
		out = append(out, synthesizeLog(window))
	}
	r.metrics.RecordReduction(string(types.TraceTypeLog), len(valid), len(out))
	return out
}

// ReduceMetrics groups samples by metric name in first-seen order and keeps
// the latest sample of every series whose values moved significantly.
func (r *Reducer) ReduceMetrics(records []types.TraceRecord) []SynthesizedMetric {
	valid := r.filter(records, types.TraceTypeMetric)

	var order []string
	groups := make(map[string][]types.TraceRecord)
	for _, rec := range valid {
		name := rec.Content.Metric.Name
		if _, seen := groups[name]; !seen {
			order = append(order, name)
		}
		groups[name] = append(groups[name], rec)
	}

	out := make([]SynthesizedMetric, 0)
	for _, name := range order {
		group := groups[name]
		values := make([]float64, len(group))
		for i, rec := range group {
			values[i] = rec.Content.Metric.Value
		}
		if !significantChange(values, r.cfg.MetricThreshold) {
			continue
		}
		out = append(out, synthesizeMetric(group[len(group)-1], calculateTrend(values, r.cfg.MetricThreshold)))
	}
	r.metrics.RecordReduction(string(types.TraceTypeMetric), len(valid), len(out))
	return out
}

// filter drops records whose payload does not match want and returns the
// rest in creation order.
func (r *Reducer) filter(records []types.TraceRecord, want types.TraceType) []types.TraceRecord {
	valid := make([]types.TraceRecord, 0, len(records))
	for _, rec := range records {
		if !hasPayload(rec, want) {
			r.logger.Warn("skipping trace with mismatched payload",
				zap.Uint("trace_id", rec.ID),
				zap.String("want", string(want)),
				zap.String("got", string(rec.Content.Type)))
			r.metrics.RecordTraceSkipped(string(types.ErrMalformedTrace))
			continue
		}
		valid = append(valid, rec)
	}
	return sortedByTime(valid)
}

func hasPayload(rec types.TraceRecord, want types.TraceType) bool {
	if rec.Content.Type != want {
		return false
	}
	switch want {
	case types.TraceTypeInteraction:
		return rec.Content.Interaction != nil
	case types.TraceTypeLog:
		return rec.Content.Log != nil
	case types.TraceTypeMetric:
		return rec.Content.Metric != nil
	}
	return false
}

func synthesizeInteraction(window []types.TraceRecord) SynthesizedInteraction {
	best, bestSize := 0, -1
	var (
		durationSum float64
		durationN   int
	)
	for i, rec := range window {
		if size := contentSize(rec.Content); size > bestSize {
			best, bestSize = i, size
		}
		if rec.Duration != nil {
			durationSum += *rec.Duration
			durationN++
		}
	}

	rep := window[best]
	data := rep.Content.Interaction
	out := SynthesizedInteraction{
		TraceID:      rep.ID,
		Timestamp:    rep.CreatedAt,
		PatternCount: len(window),
		Prompt: PromptSummary{
			Text:   data.Prompt,
			Tokens: data.PromptTokens,
			Type:   orDefault(data.PromptType, "text"),
		},
		Response: ResponseSummary{
			Text:   data.Response.Value(),
			Tokens: data.ResponseTokens,
			Type:   orDefault(data.ResponseType, "text"),
		},
		Model: ModelSummary{
			Name:       data.Model,
			Version:    data.ModelVersion,
			Parameters: data.ModelParameters,
		},
		Performance: PerformanceSummary{TotalOccurrences: len(window)},
		Context:     contextPassages(data.Context),
	}
	if out.Model.Parameters == nil {
		out.Model.Parameters = map[string]any{}
	}
	if durationN > 0 {
		avg := durationSum / float64(durationN)
		out.Performance.AvgDuration = &avg
	}
	return out
}

func contextPassages(c types.InteractionContext) []string {
	if len(c.Passages) > 0 {
		return c.Passages
	}
	return c.References
}

// contentSize is the length of the stored serialization.
func contentSize(c types.TraceContent) int {
	if len(c.Raw) > 0 {
		return len(c.Raw)
	}
	b, err := json.Marshal(c)
	if err != nil {
		return 0
	}
	return len(b)
}

func synthesizeLog(window []types.TraceRecord) SynthesizedLog {
	best, bestSeverity := 0, -1
	for i, rec := range window {
		if s := severity(rec.Content.Log.Level); s > bestSeverity {
			best, bestSeverity = i, s
		}
	}

	rep := window[best]
	data := rep.Content.Log
	return SynthesizedLog{
		TraceID:         rep.ID,
		Timestamp:       rep.CreatedAt,
		Level:           orDefault(data.Level, "INFO"),
		Type:            data.Kind,
		OccurrenceCount: len(window),
		Message:         data.Message,
		Context: LogContext{
			UserID:      rep.UserID,
			SessionID:   string(data.SessionID),
			Environment: data.Environment,
		},
	}
}

// severity ranks a log level case-insensitively. An absent level counts as
// INFO.
func severity(level string) int {
	if level == "" {
		return logSeverity["INFO"]
	}
	return logSeverity[strings.ToUpper(strings.TrimSpace(level))]
}

func synthesizeMetric(rep types.TraceRecord, trend Trend) SynthesizedMetric {
	data := rep.Content.Metric
	return SynthesizedMetric{
		TraceID:   rep.ID,
		Timestamp: rep.CreatedAt,
		Name:      data.Name,
		Value:     data.Value,
		Type:      data.MetricType(),
		Unit:      data.Unit,
		Trend:     trend,
		Tags: MetricTags{
			UserID:      rep.UserID,
			Service:     data.Tags.Service,
			Environment: data.Tags.Environment,
		},
	}
}

// significantChange reports whether a series moved by more than threshold
// relative to its minimum. Single samples and a rise from zero always count.
func significantChange(values []float64, threshold float64) bool {
	if len(values) < 2 {
		return true
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == 0 {
		return hi > 0
	}
	return (hi-lo)/lo > threshold
}

// calculateTrend compares the last value against the first. When the series
// starts at zero the absolute change is used.
func calculateTrend(values []float64, threshold float64) Trend {
	if len(values) < 2 {
		return TrendStable
	}
	first, last := values[0], values[len(values)-1]
	change := last - first
	if first != 0 {
		change /= first
	}
	switch {
	case math.Abs(change) < threshold:
		return TrendStable
	case change > 0:
		return TrendIncreasing
	default:
		return TrendDecreasing
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
