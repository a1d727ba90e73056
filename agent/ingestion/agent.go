package ingestion

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/metrics"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// TraceStore lists stored traces in creation order. A nil userID lists
// every user's traces.
type TraceStore interface {
	List(ctx context.Context, userID *uint) ([]types.RawTrace, error)
}

// Locker grants exclusive, expiring locks. Acquire returns an error carrying
// types.ErrAnalysisInFlight when the key is already held.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, err error)
}

// Agent runs analysis passes: list, decode, reduce, detect.
type Agent struct {
	cfg      Config
	store    TraceStore
	locker   Locker
	reducer  *Reducer
	detector *Detector
	group    singleflight.Group
	tracer   trace.Tracer
	traces   metric.Int64Counter
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithLocker serializes passes of the same user across processes.
func WithLocker(l Locker) AgentOption {
	return func(a *Agent) { a.locker = l }
}

// WithMetrics records pipeline metrics on c.
func WithMetrics(c *metrics.Collector) AgentOption {
	return func(a *Agent) { a.metrics = c }
}

// WithScorer uses s for both prompt and data drift.
func WithScorer(s Scorer) AgentOption {
	return func(a *Agent) {
		a.detector.drift = s
		a.detector.distribution = s
	}
}

// NewAgent creates an ingestion agent reading from store.
func NewAgent(cfg Config, store TraceStore, logger *zap.Logger, opts ...AgentOption) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Agent{
		cfg:      cfg,
		store:    store,
		detector: NewDetector(cfg, logger),
		tracer:   otel.Tracer("echosys/ingestion"),
		logger:   logger.With(zap.String("component", "ingestion_agent")),
	}
	traces, err := otel.Meter("echosys/ingestion").Int64Counter("echosys.ingestion.traces",
		metric.WithDescription("Traces read by analysis passes, by decode outcome"),
		metric.WithUnit("{trace}"))
	if err != nil {
		logger.Warn("create trace counter", zap.Error(err))
		traces = noop.Int64Counter{}
	}
	a.traces = traces
	for _, opt := range opts {
		opt(a)
	}
	a.reducer = NewReducer(cfg, logger, a.metrics)
	a.detector.metrics = a.metrics
	return a
}

// ProcessTraces runs one analysis pass over the user's traces. Concurrent
// calls for the same user share a single pass. The shared pass is detached
// from any one caller's cancellation and bounded by LockTTL instead; a
// cancelled caller stops waiting without failing the others.
func (a *Agent) ProcessTraces(ctx context.Context, userID *uint) (*ProcessedData, error) {
	key := userKey(userID)
	ch := a.group.DoChan(key, func() (any, error) {
		passCtx, cancel := a.passContext(ctx)
		defer cancel()
		return a.lockedPass(passCtx, key, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			a.logger.Debug("analysis pass shared", zap.String("user", key))
		}
		return res.Val.(*ProcessedData), nil
	}
}

func (a *Agent) passContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if a.cfg.LockTTL <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, a.cfg.LockTTL)
}

func (a *Agent) lockedPass(ctx context.Context, key string, userID *uint) (*ProcessedData, error) {
	if a.locker == nil {
		return a.pass(ctx, userID)
	}
	release, err := a.locker.Acquire(ctx, "analysis:"+key, a.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			a.logger.Warn("release analysis lock", zap.String("user", key), zap.Error(rerr))
		}
	}()
	return a.pass(ctx, userID)
}

func (a *Agent) pass(ctx context.Context, userID *uint) (_ *ProcessedData, err error) {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "ingestion.process_traces",
		trace.WithAttributes(attribute.String("user", userKey(userID))))
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		a.metrics.RecordAnalysisPass(status, time.Since(start))
		span.End()
	}()

	raws, err := a.store.List(ctx, userID)
	if err != nil {
		return nil, types.NewError(types.ErrPersistenceFailed, "list traces").WithCause(err)
	}

	out := newProcessedData()
	grouped := make(map[types.TraceType][]types.TraceRecord, 3)
	sessions := NewSessionIndex(nil)
	for _, raw := range raws {
		rec, derr := raw.Decode()
		if derr != nil {
			out.Skipped++
			a.logger.Warn("skipping malformed trace", zap.Uint("trace_id", raw.ID), zap.Error(derr))
			a.metrics.RecordTraceSkipped(string(types.GetErrorCode(derr)))
			continue
		}
		a.metrics.RecordTraceIngested(string(rec.Content.Type))
		grouped[rec.Content.Type] = append(grouped[rec.Content.Type], rec)
		sessions.Add(rec)
	}

	a.traces.Add(ctx, int64(len(raws)-out.Skipped), metric.WithAttributes(attribute.String("outcome", "decoded")))
	a.traces.Add(ctx, int64(out.Skipped), metric.WithAttributes(attribute.String("outcome", "skipped")))

	interactions := grouped[types.TraceTypeInteraction]
	out.Interactions = a.reducer.ReduceInteractions(interactions)
	out.Logs = a.reducer.ReduceLogs(grouped[types.TraceTypeLog])
	out.Metrics = a.reducer.ReduceMetrics(grouped[types.TraceTypeMetric])
	out.AISignals = a.detector.Detect(interactions, sessions)

	span.SetAttributes(
		attribute.Int("traces.total", len(raws)),
		attribute.Int("traces.skipped", out.Skipped),
		attribute.Int("sessions", sessions.Len()),
	)
	a.logger.Info("analysis pass complete",
		zap.String("user", userKey(userID)),
		zap.Int("traces", len(raws)),
		zap.Int("skipped", out.Skipped),
		zap.Int("interactions", len(out.Interactions)),
		zap.Int("logs", len(out.Logs)),
		zap.Int("metrics", len(out.Metrics)),
		zap.Int("hallucinations", len(out.AISignals.Hallucinations)),
		zap.Int("session_contexts", len(out.AISignals.SessionContexts)),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

// AnalysisData builds the RCA input from a pass.
func (a *Agent) AnalysisData(processed *ProcessedData) AnalysisPayload {
	return BuildAnalysisPayload(processed)
}

// BuildAnalysisPayload wraps the reduced data in the RCA input envelope.
func BuildAnalysisPayload(processed *ProcessedData) AnalysisPayload {
	if processed == nil {
		processed = newProcessedData()
	}
	return AnalysisPayload{Data: AnalysisData{
		Interactions: processed.Interactions,
		Logs:         processed.Logs,
		Metrics:      processed.Metrics,
	}}
}

// Reducer returns the agent's reducer.
func (a *Agent) Reducer() *Reducer { return a.reducer }

// Detector returns the agent's signal detector.
func (a *Agent) Detector() *Detector { return a.detector }

func userKey(userID *uint) string {
	if userID == nil {
		return "all"
	}
	return strconv.FormatUint(uint64(*userID), 10)
}
