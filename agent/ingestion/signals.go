package ingestion

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/metrics"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// Signal kinds, used as metric labels.
const (
	SignalHallucination  = "hallucination"
	SignalPromptDrift    = "prompt_drift"
	SignalDataDrift      = "data_drift"
	SignalSessionContext = "session_context"
)

// Detector derives AI signals from decoded interaction records.
type Detector struct {
	cfg          Config
	drift        DriftScorer
	distribution DistributionScorer
	logger       *zap.Logger
	metrics      *metrics.Collector
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithDriftScorer sets the prompt drift scorer.
func WithDriftScorer(s DriftScorer) DetectorOption {
	return func(d *Detector) {
		if s != nil {
			d.drift = s
		}
	}
}

// WithDistributionScorer sets the data drift scorer.
func WithDistributionScorer(s DistributionScorer) DetectorOption {
	return func(d *Detector) {
		if s != nil {
			d.distribution = s
		}
	}
}

// WithDetectorMetrics records emitted signals on c.
func WithDetectorMetrics(c *metrics.Collector) DetectorOption {
	return func(d *Detector) { d.metrics = c }
}

// NewDetector creates a Detector. Both scorers default to NeutralScorer.
func NewDetector(cfg Config, logger *zap.Logger, opts ...DetectorOption) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{
		cfg:          cfg,
		drift:        NeutralScorer{},
		distribution: NeutralScorer{},
		logger:       logger.With(zap.String("component", "signal_detector")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect runs every detector over the interactions and the session index.
func (d *Detector) Detect(interactions []types.TraceRecord, sessions *SessionIndex) AISignals {
	return AISignals{
		Hallucinations:  d.DetectHallucinations(interactions),
		PromptDrift:     d.DetectPromptDrift(interactions),
		DataDrift:       d.DetectDataDrift(interactions),
		SessionContexts: d.BuildSessionContexts(sessions),
	}
}

// DetectHallucinations flags interactions whose response omits references
// the context declared, and every response that makes capability claims.
func (d *Detector) DetectHallucinations(interactions []types.TraceRecord) []HallucinationEvent {
	out := make([]HallucinationEvent, 0)
	for _, rec := range interactions {
		data := rec.Content.Interaction
		if data == nil || data.Response == nil {
			continue
		}
		confidence := 0.0
		if data.Confidence != nil {
			confidence = *data.Confidence
		}

		if data.Context.HasReferences && data.Response.HasCitations {
			if missing := missingReferences(data.Context.References, data.Response.CitedReferences); len(missing) > 0 {
				out = append(out, HallucinationEvent{
					TraceID:           rec.ID,
					Timestamp:         rec.CreatedAt,
					Type:              HallucinationReferenceMismatch,
					MissingReferences: missing,
					Confidence:        confidence,
				})
			}
		}
		if data.Response.HasClaims {
			out = append(out, HallucinationEvent{
				TraceID:    rec.ID,
				Timestamp:  rec.CreatedAt,
				Type:       HallucinationCapabilityClaim,
				Claims:     data.Response.CapabilityClaims,
				Confidence: confidence,
			})
		}
	}
	d.metrics.RecordSignals(SignalHallucination, len(out))
	return out
}

// missingReferences returns refs absent from cited, deduplicated, in the
// order refs lists them.
func missingReferences(refs, cited []string) []string {
	citedSet := make(map[string]struct{}, len(cited))
	for _, c := range cited {
		citedSet[c] = struct{}{}
	}
	var missing []string
	seen := make(map[string]struct{})
	for _, ref := range refs {
		if _, ok := citedSet[ref]; ok {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		missing = append(missing, ref)
	}
	return missing
}

// DetectPromptDrift scores each pair of adjacent template versions, ordered
// as strings, and reports pairs above the prompt drift threshold.
func (d *Detector) DetectPromptDrift(interactions []types.TraceRecord) []PromptDriftEvent {
	type versionGroup struct {
		responses []string
		latest    time.Time
	}
	groups := make(map[string]*versionGroup)
	for _, rec := range interactions {
		data := rec.Content.Interaction
		if data == nil || data.PromptTemplate == nil {
			continue
		}
		g, ok := groups[data.PromptTemplate.Version]
		if !ok {
			g = &versionGroup{}
			groups[data.PromptTemplate.Version] = g
		}
		if text, ok := responseText(data.Response); ok {
			g.responses = append(g.responses, text)
		}
		if rec.CreatedAt.After(g.latest) {
			g.latest = rec.CreatedAt
		}
	}

	versions := make([]string, 0, len(groups))
	for v := range groups {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	out := make([]PromptDriftEvent, 0)
	for i := 0; i+1 < len(versions); i++ {
		older, newer := groups[versions[i]], groups[versions[i+1]]
		score := d.drift.ScoreDrift(older.responses, newer.responses)
		d.logger.Debug("prompt drift scored",
			zap.String("old_version", versions[i]),
			zap.String("new_version", versions[i+1]),
			zap.Float64("score", score))
		if score > d.cfg.PromptDriftThreshold {
			out = append(out, PromptDriftEvent{
				Timestamp:  newer.latest,
				OldVersion: versions[i],
				NewVersion: versions[i+1],
				DriftScore: score,
			})
		}
	}
	d.metrics.RecordSignals(SignalPromptDrift, len(out))
	return out
}

// DetectDataDrift splits interactions into baseline-sized windows and scores
// every completed window against the first one. A window completes when a
// record arrives at or past its end; the trailing window is not scored.
func (d *Detector) DetectDataDrift(interactions []types.TraceRecord) []DataDriftEvent {
	out := make([]DataDriftEvent, 0)
	records := sortedByTime(interactions)
	if len(records) == 0 {
		return out
	}

	var baseline, current []types.TraceRecord
	start := records[0].CreatedAt
	for _, rec := range records {
		if rec.CreatedAt.Sub(start) >= d.cfg.BaselineWindow {
			if len(current) > 0 {
				if baseline == nil {
					baseline = current
				}
				score := d.distribution.ScoreDistribution(baseline, current)
				if score > d.cfg.DataDriftThreshold {
					out = append(out, DataDriftEvent{
						Timestamp:  rec.CreatedAt,
						DriftScore: score,
						WindowSize: len(current),
					})
				}
			}
			current = nil
			start = rec.CreatedAt
		}
		current = append(current, rec)
	}
	d.metrics.RecordSignals(SignalDataDrift, len(out))
	return out
}

// BuildSessionContexts emits, per session, the records up to and including
// the first error or hallucination event. Sessions without one are omitted.
func (d *Detector) BuildSessionContexts(sessions *SessionIndex) []SessionContext {
	out := make([]SessionContext, 0)
	if sessions == nil {
		return out
	}
	for _, id := range sessions.order {
		traces := sortedByTime(sessions.traces[id])
		cut := -1
		for i, rec := range traces {
			if isErrorEvent(rec) {
				cut = i
				break
			}
		}
		if cut < 0 {
			continue
		}

		bundle := make([]ContextTrace, 0, cut+1)
		for _, rec := range traces[:cut+1] {
			bundle = append(bundle, ContextTrace{
				TraceID:   rec.ID,
				Timestamp: rec.CreatedAt,
				Type:      rec.Content.Meta().Kind,
				Content:   rec.Content.Data,
			})
		}
		failing := traces[cut]
		out = append(out, SessionContext{
			SessionID:      id,
			ErrorTimestamp: failing.CreatedAt,
			ErrorType:      failing.Content.Meta().Kind,
			ContextTraces:  bundle,
		})
	}
	d.metrics.RecordSignals(SignalSessionContext, len(out))
	return out
}

// isErrorEvent reports whether rec ends a session's error context.
func isErrorEvent(rec types.TraceRecord) bool {
	meta := rec.Content.Meta()
	if meta.Status == "ERROR" || rec.Status == "ERROR" {
		return true
	}
	return strings.Contains(strings.ToLower(meta.Kind), "hallucination")
}

// SessionIndex groups records by data.session_id, remembering the order in
// which sessions were first seen.
type SessionIndex struct {
	order  []string
	traces map[string][]types.TraceRecord
}

// NewSessionIndex indexes every record that carries a session id.
func NewSessionIndex(records []types.TraceRecord) *SessionIndex {
	idx := &SessionIndex{traces: make(map[string][]types.TraceRecord)}
	for _, rec := range records {
		idx.Add(rec)
	}
	return idx
}

// Add indexes rec if it carries a session id.
func (s *SessionIndex) Add(rec types.TraceRecord) {
	id := string(rec.Content.Meta().SessionID)
	if id == "" {
		return
	}
	if _, ok := s.traces[id]; !ok {
		s.order = append(s.order, id)
	}
	s.traces[id] = append(s.traces[id], rec)
}

// Sessions returns session ids in first-seen order.
func (s *SessionIndex) Sessions() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of indexed sessions.
func (s *SessionIndex) Len() int { return len(s.order) }
