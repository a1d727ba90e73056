package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TraceType is the declared kind of a trace record's content.
type TraceType string

const (
	TraceTypeInteraction TraceType = "interaction"
	TraceTypeLog         TraceType = "log"
	TraceTypeMetric      TraceType = "metric"
)

// Valid reports whether t is one of the known trace types.
func (t TraceType) Valid() bool {
	switch t {
	case TraceTypeInteraction, TraceTypeLog, TraceTypeMetric:
		return true
	default:
		return false
	}
}

// TraceRecord is one observed event as read from the trace store.
// Content is immutable; AnalysisResults is the only field downstream
// consumers write.
type TraceRecord struct {
	ID              uint           `json:"id"`
	UserID          *uint          `json:"user_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	Status          string         `json:"status,omitempty"`
	Duration        *float64       `json:"duration,omitempty"`
	Content         TraceContent   `json:"content"`
	AnalysisResults map[string]any `json:"analysis_results,omitempty"`
}

// RawTrace is a stored trace row before its content has been validated.
type RawTrace struct {
	ID        uint            `json:"id"`
	UserID    *uint           `json:"user_id,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Status    string          `json:"status,omitempty"`
	Duration  *float64        `json:"duration,omitempty"`
	Content   json.RawMessage `json:"content"`
}

// Decode validates the content and returns the typed record.
func (r RawTrace) Decode() (TraceRecord, error) {
	content, err := DecodeTraceContent(r.Content)
	if err != nil {
		return TraceRecord{}, err
	}
	return TraceRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		CreatedAt: r.CreatedAt,
		Status:    r.Status,
		Duration:  r.Duration,
		Content:   content,
	}, nil
}

// TraceMeta holds the data fields shared by every payload kind.
type TraceMeta struct {
	SessionID ScalarString `json:"session_id,omitempty"`
	Status    string       `json:"status,omitempty"`
	// Kind is data.type: a log category, a metric type, or an event label
	// such as "hallucination".
	Kind string `json:"type,omitempty"`
}

// TraceContent is a closed tagged union over the three payload kinds.
// Exactly one of Interaction, Log and Metric is set, matching Type.
type TraceContent struct {
	Type        TraceType
	MetricName  string
	Interaction *InteractionData
	Log         *LogData
	Metric      *MetricData

	// Data is the untyped data sub-map, echoed verbatim in session bundles.
	Data map[string]any
	// Raw is the serialized content as stored.
	Raw json.RawMessage
}

// Meta returns the shared fields of whichever payload is set.
func (c TraceContent) Meta() TraceMeta {
	switch {
	case c.Interaction != nil:
		return c.Interaction.TraceMeta
	case c.Log != nil:
		return c.Log.TraceMeta
	case c.Metric != nil:
		return c.Metric.TraceMeta
	default:
		return TraceMeta{}
	}
}

// MarshalJSON writes the stored serialization back out.
func (c TraceContent) MarshalJSON() ([]byte, error) {
	if len(c.Raw) > 0 {
		return c.Raw, nil
	}
	return json.Marshal(map[string]any{"type": c.Type, "data": c.Data})
}

// UnmarshalJSON decodes and validates a content blob.
func (c *TraceContent) UnmarshalJSON(b []byte) error {
	decoded, err := DecodeTraceContent(b)
	if err != nil {
		return err
	}
	*c = decoded
	return nil
}

// InteractionData is the payload of an interaction trace.
type InteractionData struct {
	TraceMeta
	Prompt          string             `json:"prompt,omitempty"`
	PromptTokens    *int               `json:"prompt_tokens,omitempty"`
	PromptType      string             `json:"prompt_type,omitempty"`
	Response        *Response          `json:"response,omitempty"`
	ResponseTokens  *int               `json:"response_tokens,omitempty"`
	ResponseType    string             `json:"response_type,omitempty"`
	Model           string             `json:"model,omitempty"`
	ModelVersion    string             `json:"model_version,omitempty"`
	ModelParameters map[string]any     `json:"model_parameters,omitempty"`
	Context         InteractionContext `json:"context,omitempty"`
	Confidence      *float64           `json:"confidence,omitempty"`
	PromptTemplate  *PromptTemplate    `json:"prompt_template,omitempty"`
}

// ScalarString decodes any JSON scalar (string, number, bool) into its
// string form, so numeric session ids key sessions like string ones.
type ScalarString string

// UnmarshalJSON implements json.Unmarshaler.
func (s *ScalarString) UnmarshalJSON(b []byte) error {
	v, err := scalarString(b)
	if err != nil {
		return err
	}
	*s = ScalarString(v)
	return nil
}

// PromptTemplate identifies the template version that produced a prompt.
type PromptTemplate struct {
	Version string `json:"version"`
}

// UnmarshalJSON accepts numeric versions as well as strings.
func (p *PromptTemplate) UnmarshalJSON(b []byte) error {
	var raw struct {
		Version json.RawMessage `json:"version"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := scalarString(raw.Version)
	if err != nil {
		return fmt.Errorf("prompt_template.version: %w", err)
	}
	p.Version = v
	return nil
}

// Response is a model response. A bare JSON string decodes into Text; an
// object may additionally declare citations and capability claims. Presence
// of those keys is tracked separately from their contents.
type Response struct {
	Text             string   `json:"text,omitempty"`
	CitedReferences  []string `json:"cited_references,omitempty"`
	CapabilityClaims any      `json:"capability_claims,omitempty"`

	HasCitations bool `json:"-"`
	HasClaims    bool `json:"-"`
	// Raw is the response exactly as recorded.
	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Response) UnmarshalJSON(b []byte) error {
	r.Raw = append(json.RawMessage(nil), b...)
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &r.Text)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return fmt.Errorf("response must be a string or an object: %w", err)
	}
	if v, ok := fields["text"]; ok {
		if err := json.Unmarshal(v, &r.Text); err != nil {
			return fmt.Errorf("response.text: %w", err)
		}
	}
	if v, ok := fields["cited_references"]; ok {
		refs, err := stringList(v)
		if err != nil {
			return fmt.Errorf("response.cited_references: %w", err)
		}
		r.CitedReferences = refs
		r.HasCitations = true
	}
	if v, ok := fields["capability_claims"]; ok {
		if err := json.Unmarshal(v, &r.CapabilityClaims); err != nil {
			return fmt.Errorf("response.capability_claims: %w", err)
		}
		r.HasClaims = true
	}
	return nil
}

// MarshalJSON writes the response as recorded.
func (r Response) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(r.Text)
}

// Value returns the response as a plain Go value for summaries: the text for
// string responses, the decoded object otherwise.
func (r *Response) Value() any {
	if r == nil {
		return nil
	}
	if len(r.Raw) == 0 {
		return r.Text
	}
	var v any
	if err := json.Unmarshal(r.Raw, &v); err != nil {
		return r.Text
	}
	return v
}

// InteractionContext is the retrieval context of an interaction. A JSON list
// of strings decodes into Passages; an object may declare references.
type InteractionContext struct {
	References    []string
	HasReferences bool
	Passages      []string
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *InteractionContext) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '[' {
		passages, err := stringList(trimmed)
		if err != nil {
			return fmt.Errorf("context: %w", err)
		}
		c.Passages = passages
		return nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return fmt.Errorf("context must be a list or an object: %w", err)
	}
	if v, ok := fields["references"]; ok {
		refs, err := stringList(v)
		if err != nil {
			return fmt.Errorf("context.references: %w", err)
		}
		c.References = refs
		c.HasReferences = true
	}
	for _, key := range []string{"passages", "documents"} {
		if v, ok := fields[key]; ok {
			passages, err := stringList(v)
			if err != nil {
				return fmt.Errorf("context.%s: %w", key, err)
			}
			c.Passages = append(c.Passages, passages...)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (c InteractionContext) MarshalJSON() ([]byte, error) {
	if !c.HasReferences {
		if c.Passages == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(c.Passages)
	}
	return json.Marshal(map[string]any{"references": c.References, "passages": c.Passages})
}

// LogData is the payload of a log trace.
type LogData struct {
	TraceMeta
	Level       string `json:"level,omitempty"`
	Message     string `json:"message,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// MetricData is the payload of a metric trace.
type MetricData struct {
	TraceMeta
	Name  string     `json:"name,omitempty"`
	Value float64    `json:"value"`
	Unit  string     `json:"unit,omitempty"`
	Tags  MetricTags `json:"tags,omitempty"`
}

// MetricType returns data.type, defaulting to gauge.
func (m *MetricData) MetricType() string {
	if m.Kind == "" {
		return "gauge"
	}
	return m.Kind
}

// MetricTags are the dimensions attached to a metric sample.
type MetricTags struct {
	Service     string `json:"service,omitempty"`
	Environment string `json:"environment,omitempty"`
}

type contentEnvelope struct {
	Type       string          `json:"type"`
	MetricName string          `json:"metric_name"`
	Data       json.RawMessage `json:"data"`
}

// DecodeTraceContent parses and validates a stored content blob. Violations
// are reported as ErrMalformedTrace; unknown types as ErrUnknownTraceType.
func DecodeTraceContent(raw []byte) (TraceContent, error) {
	var env contentEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return TraceContent{}, NewError(ErrMalformedTrace, "content is not a JSON object").WithCause(err)
	}

	tt := TraceType(env.Type)
	if !tt.Valid() {
		return TraceContent{}, NewError(ErrUnknownTraceType, fmt.Sprintf("unknown trace type %q", env.Type))
	}

	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		data = []byte("{}")
	}
	if data[0] != '{' {
		return TraceContent{}, NewError(ErrMalformedTrace, "data is not an object")
	}

	content := TraceContent{
		Type:       tt,
		MetricName: env.MetricName,
		Raw:        append(json.RawMessage(nil), raw...),
	}
	if err := json.Unmarshal(data, &content.Data); err != nil {
		return TraceContent{}, NewError(ErrMalformedTrace, "data is not an object").WithCause(err)
	}

	var err error
	switch tt {
	case TraceTypeInteraction:
		content.Interaction = &InteractionData{}
		err = json.Unmarshal(data, content.Interaction)
	case TraceTypeLog:
		content.Log = &LogData{}
		err = json.Unmarshal(data, content.Log)
	case TraceTypeMetric:
		err = decodeMetric(data, &content)
	}
	if err != nil {
		if _, ok := AsError(err); ok {
			return TraceContent{}, err
		}
		return TraceContent{}, NewError(ErrMalformedTrace, fmt.Sprintf("invalid %s payload", tt)).WithCause(err)
	}
	return content, nil
}

func decodeMetric(data []byte, content *TraceContent) error {
	var probe struct {
		Value *float64 `json:"value"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	if probe.Value == nil {
		return NewError(ErrMalformedTrace, "metric value is required")
	}

	m := &MetricData{}
	if err := json.Unmarshal(data, m); err != nil {
		return err
	}
	if content.MetricName != "" {
		m.Name = content.MetricName
	}
	if m.Name == "" {
		return NewError(ErrMalformedTrace, "metric name is required")
	}
	content.Metric = m
	return nil
}

// stringList decodes a JSON array of scalars into strings.
func stringList(raw json.RawMessage) ([]string, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, err := scalarString(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func scalarString(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var s string
		err := json.Unmarshal(trimmed, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err == nil {
		return n.String(), nil
	}
	var b bool
	if err := json.Unmarshal(trimmed, &b); err == nil {
		return fmt.Sprint(b), nil
	}
	return "", fmt.Errorf("expected a scalar, got %s", string(trimmed))
}
