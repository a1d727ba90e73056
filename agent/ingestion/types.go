package ingestion

import "time"

// SynthesizedInteraction stands in for every interaction of one window.
type SynthesizedInteraction struct {
	TraceID      uint               `json:"trace_id"`
	Timestamp    time.Time          `json:"timestamp"`
	PatternCount int                `json:"pattern_count"`
	Prompt       PromptSummary      `json:"prompt"`
	Response     ResponseSummary    `json:"response"`
	Model        ModelSummary       `json:"model"`
	Performance  PerformanceSummary `json:"performance"`
	// Context is the retrieval context of the representative, used by
	// evaluation metrics.
	Context []string `json:"context,omitempty"`
}

// PromptSummary is the representative prompt.
type PromptSummary struct {
	Text   string `json:"text"`
	Tokens *int   `json:"tokens"`
	Type   string `json:"type"`
}

// ResponseSummary is the representative response. Text is a string for
// plain responses and the decoded object otherwise.
type ResponseSummary struct {
	Text   any    `json:"text"`
	Tokens *int   `json:"tokens"`
	Type   string `json:"type"`
}

// ModelSummary identifies the model that produced the representative.
type ModelSummary struct {
	Name       string         `json:"name"`
	Version    string         `json:"version"`
	Parameters map[string]any `json:"parameters"`
}

// PerformanceSummary aggregates over the whole window. AvgDuration is nil
// when no record in the window carried a duration.
type PerformanceSummary struct {
	AvgDuration      *float64 `json:"avg_duration"`
	TotalOccurrences int      `json:"total_occurrences"`
}

// SynthesizedLog stands in for every log of one window.
type SynthesizedLog struct {
	TraceID         uint       `json:"trace_id"`
	Timestamp       time.Time  `json:"timestamp"`
	Level           string     `json:"level"`
	Type            string     `json:"type"`
	OccurrenceCount int        `json:"occurrence_count"`
	Message         string     `json:"message"`
	Context         LogContext `json:"context"`
}

// LogContext locates a synthesized log.
type LogContext struct {
	UserID      *uint  `json:"user_id"`
	SessionID   string `json:"session_id"`
	Environment string `json:"environment"`
}

// Trend is the direction of a metric series.
type Trend string

const (
	TrendStable     Trend = "stable"
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
)

// SynthesizedMetric is the retained sample of a metric series.
type SynthesizedMetric struct {
	TraceID   uint       `json:"trace_id"`
	Timestamp time.Time  `json:"timestamp"`
	Name      string     `json:"name"`
	Value     float64    `json:"value"`
	Type      string     `json:"type"`
	Unit      string     `json:"unit"`
	Trend     Trend      `json:"trend"`
	Tags      MetricTags `json:"tags"`
}

// MetricTags are the dimensions of a synthesized metric.
type MetricTags struct {
	UserID      *uint  `json:"user_id"`
	Service     string `json:"service"`
	Environment string `json:"environment"`
}

// HallucinationKind names the hallucination heuristics.
type HallucinationKind string

const (
	HallucinationReferenceMismatch HallucinationKind = "reference_mismatch"
	HallucinationCapabilityClaim   HallucinationKind = "capability_claim"
)

// HallucinationEvent flags one suspicious interaction.
type HallucinationEvent struct {
	TraceID           uint              `json:"trace_id"`
	Timestamp         time.Time         `json:"timestamp"`
	Type              HallucinationKind `json:"type"`
	MissingReferences []string          `json:"missing_references,omitempty"`
	Claims            any               `json:"claims,omitempty"`
	Confidence        float64           `json:"confidence"`
}

// PromptDriftEvent reports a response shift between template versions.
type PromptDriftEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	OldVersion string    `json:"old_version"`
	NewVersion string    `json:"new_version"`
	DriftScore float64   `json:"drift_score"`
}

// DataDriftEvent reports a distribution shift of one completed window.
type DataDriftEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	DriftScore float64   `json:"drift_score"`
	WindowSize int       `json:"window_size"`
}

// ContextTrace is one entry of a session bundle. Content is the record's
// data map as stored.
type ContextTrace struct {
	TraceID   uint           `json:"trace_id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Content   map[string]any `json:"content"`
}

// SessionContext is the history of a session up to and including its first
// error.
type SessionContext struct {
	SessionID      string         `json:"session_id"`
	ErrorTimestamp time.Time      `json:"error_timestamp"`
	ErrorType      string         `json:"error_type"`
	ContextTraces  []ContextTrace `json:"context_traces"`
}

// AISignals groups every detector's output.
type AISignals struct {
	Hallucinations  []HallucinationEvent `json:"hallucinations"`
	PromptDrift     []PromptDriftEvent   `json:"prompt_drift"`
	DataDrift       []DataDriftEvent     `json:"data_drift"`
	SessionContexts []SessionContext     `json:"session_contexts"`
}

// ProcessedData is the result of one analysis pass.
type ProcessedData struct {
	Interactions []SynthesizedInteraction `json:"interactions"`
	Logs         []SynthesizedLog         `json:"logs"`
	Metrics      []SynthesizedMetric      `json:"metrics"`
	AISignals    AISignals                `json:"ai_signals"`
	Skipped      int                      `json:"skipped"`
}

// AnalysisPayload is the RCA input built from a pass.
type AnalysisPayload struct {
	Data AnalysisData `json:"data"`
}

// AnalysisData is the reduced data handed to RCA.
type AnalysisData struct {
	Interactions []SynthesizedInteraction `json:"interactions"`
	Logs         []SynthesizedLog         `json:"logs"`
	Metrics      []SynthesizedMetric      `json:"metrics"`
}

func newProcessedData() *ProcessedData {
	return &ProcessedData{
		Interactions: []SynthesizedInteraction{},
		Logs:         []SynthesizedLog{},
		Metrics:      []SynthesizedMetric{},
		AISignals: AISignals{
			Hallucinations:  []HallucinationEvent{},
			PromptDrift:     []PromptDriftEvent{},
			DataDrift:       []DataDriftEvent{},
			SessionContexts: []SessionContext{},
		},
	}
}
