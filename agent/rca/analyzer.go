package rca

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/cache"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/metrics"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/llm"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/llm/tokenizer"
)

// CacheKeyPrefix prefixes cached reports in Redis.
const CacheKeyPrefix = "rca:"

const systemPrompt = `You are a root cause analysis engine for AI agent failures.
Respond with a single bare JSON object and nothing else: no markdown fences, no prose before or after it.
The object must have exactly these keys:
  "summary": string,
  "root_cause": string,
  "contributing_factors": [{"title": string, "details": string, "log_id": string, "trace_id": string, "timestamp": string}],
  "replay": [{"step": integer, "title": string, "details": string, "timestamp": string}],
  "resolution": [{"action": string, "status": string, "details": string}]
Cite trace_id and log_id values from the data wherever they support a factor or step.`

const userPromptPrefix = "Analyze this data and identify the root cause of the failure:\n\n"

// Cache stores successful reports. *cache.Manager satisfies it.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Keyed payloads choose what identifies them in the report cache.
// CacheIdentity typically drops per-run fields such as wall-clock timestamps.
type Keyed interface {
	CacheIdentity() any
}

// Config controls the model request.
type Config struct {
	Model            string
	Temperature      float32
	MaxPayloadTokens int
	CacheTTL         time.Duration
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return Config{
		Model:            "gpt-4",
		MaxPayloadTokens: 6000,
		CacheTTL:         24 * time.Hour,
	}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCache enables report caching.
func WithCache(c Cache) Option {
	return func(a *Analyzer) { a.cache = c }
}

// WithTokenizer overrides the model tokenizer.
func WithTokenizer(t tokenizer.Tokenizer) Option {
	return func(a *Analyzer) { a.tokenizer = t }
}

// WithMetrics records RCA and LLM metrics.
func WithMetrics(c *metrics.Collector) Option {
	return func(a *Analyzer) { a.metrics = c }
}

// Analyzer produces RCA reports. It is safe for concurrent use.
type Analyzer struct {
	cfg       Config
	provider  llm.Provider
	tokenizer tokenizer.Tokenizer
	cache     Cache
	logger    *zap.Logger
	metrics   *metrics.Collector
	tracer    trace.Tracer
}

// NewAnalyzer creates an Analyzer. The provider is expected to carry its own
// timeout, retry and circuit breaking (see llm.ResilientProvider).
func NewAnalyzer(cfg Config, provider llm.Provider, logger *zap.Logger, opts ...Option) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxPayloadTokens <= 0 {
		cfg.MaxPayloadTokens = def.MaxPayloadTokens
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	a := &Analyzer{
		cfg:      cfg,
		provider: provider,
		logger:   logger.With(zap.String("component", "rca")),
		tracer:   otel.Tracer("echosys/rca"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.tokenizer == nil {
		a.tokenizer = tokenizer.ForModel(cfg.Model)
	}
	return a
}

// Analyze asks the model for a report on payload. Errors are returned as a
// Result with Status "error".
func (a *Analyzer) Analyze(ctx context.Context, payload any) (res Result) {
	start := time.Now()
	ctx, span := a.tracer.Start(ctx, "rca.analyze", trace.WithAttributes(
		attribute.String("llm.model", a.cfg.Model),
	))
	defer func() {
		span.SetAttributes(attribute.String("rca.status", res.Status), attribute.Bool("rca.cached", res.Cached))
		if res.Status == StatusError {
			span.SetStatus(codes.Error, res.Error)
		}
		span.End()
		a.metrics.RecordRCA(res.Status, time.Since(start))
	}()

	if a.provider == nil {
		return Result{Status: StatusError, Error: "no llm provider configured"}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errorResult(fmt.Errorf("serialize payload: %w", err), "")
	}
	key := CacheKey(data)
	if k, ok := payload.(Keyed); ok {
		identity, err := json.Marshal(k.CacheIdentity())
		if err != nil {
			return errorResult(fmt.Errorf("serialize cache identity: %w", err), "")
		}
		key = CacheKey(identity)
	}

	if cached, ok := a.lookup(ctx, key); ok {
		return cached
	}

	text, err := a.fit(string(data))
	if err != nil {
		return errorResult(err, "")
	}

	raw, err := a.complete(ctx, text)
	if err != nil {
		a.logger.Warn("rca completion failed", zap.Error(err))
		return errorResult(err, "")
	}

	res = ParseReport(raw)
	if !res.OK() {
		a.logger.Warn("rca output unparseable", zap.String("error", res.Error), zap.Int("raw_len", len(raw)))
		return res
	}
	a.store(ctx, key, res.Report)
	return res
}

// CacheKey returns the cache key of a serialized payload.
func CacheKey(serialized []byte) string {
	sum := sha256.Sum256(serialized)
	return CacheKeyPrefix + hex.EncodeToString(sum[:])
}

// fit trims the serialized payload to the token budget.
func (a *Analyzer) fit(text string) (string, error) {
	ok, n, err := tokenizer.FitsBudget(a.tokenizer, text, a.cfg.MaxPayloadTokens)
	if err != nil {
		return "", err
	}
	if ok {
		return text, nil
	}
	trimmed, err := a.tokenizer.Truncate(text, a.cfg.MaxPayloadTokens)
	if err != nil {
		return "", fmt.Errorf("truncate payload: %w", err)
	}
	a.logger.Info("rca payload truncated",
		zap.Int("tokens", n),
		zap.Int("budget", a.cfg.MaxPayloadTokens),
		zap.String("tokenizer", a.tokenizer.Name()))
	return trimmed, nil
}

func (a *Analyzer) complete(ctx context.Context, text string) (string, error) {
	req := &llm.ChatRequest{
		Model: a.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: userPromptPrefix + text},
		},
		Temperature:    a.cfg.Temperature,
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
	}

	start := time.Now()
	resp, err := a.provider.Completion(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	var usage llm.ChatUsage
	if resp != nil {
		usage = resp.Usage
	}
	a.metrics.RecordLLMRequest(a.provider.Name(), a.cfg.Model, status, time.Since(start), usage.PromptTokens, usage.CompletionTokens)
	if err != nil {
		return "", err
	}
	return llm.FirstContent(resp)
}

func (a *Analyzer) lookup(ctx context.Context, key string) (Result, bool) {
	if a.cache == nil {
		return Result{}, false
	}
	var report Report
	if err := a.cache.GetJSON(ctx, key, &report); err != nil {
		if !cache.IsCacheMiss(err) {
			a.logger.Warn("rca cache read failed", zap.Error(err))
		}
		a.metrics.RecordCacheMiss("rca")
		return Result{}, false
	}
	a.metrics.RecordCacheHit("rca")
	return Result{Status: StatusSuccess, Report: &report, Cached: true}, true
}

func (a *Analyzer) store(ctx context.Context, key string, report *Report) {
	if a.cache == nil {
		return
	}
	if err := a.cache.SetJSON(ctx, key, report, a.cfg.CacheTTL); err != nil {
		a.logger.Warn("rca cache write failed", zap.Error(err))
	}
}
