package rca

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/cache"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/metrics"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/llm"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/llm/tokenizer"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/testutil/fixtures"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/testutil/mocks"
)

var samplePayload = map[string]any{
	"test_name": "checkout",
	"data": map[string]any{
		"interactions": []any{map[string]any{"trace_id": 12, "prompt": "price?"}},
	},
}

func newTestAnalyzer(t *testing.T, p llm.Provider, opts ...Option) *Analyzer {
	t.Helper()
	opts = append([]Option{WithTokenizer(tokenizer.NewEstimatorTokenizer("gpt-4", 8192))}, opts...)
	return NewAnalyzer(DefaultConfig(), p, zaptest.NewLogger(t), opts...)
}

func newRedisCache(t *testing.T) (*miniredis.Miniredis, *cache.Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	m, err := cache.NewManager(cache.Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return mr, m
}

func TestAnalyzer_Success(t *testing.T) {
	provider := mocks.NewSuccessProvider(fixtures.RCAReportJSON)
	a := newTestAnalyzer(t, provider)

	res := a.Analyze(context.Background(), samplePayload)
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, "Checkout agent returned stale prices", res.Report.Summary)
	assert.False(t, res.Cached)

	req := provider.LastCall()
	require.NotNil(t, req)
	assert.Equal(t, "gpt-4", req.Model)
	assert.Zero(t, req.Temperature)
	require.NotNil(t, req.ResponseFormat)
	assert.Equal(t, "json_object", req.ResponseFormat.Type)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, `"contributing_factors"`)
	assert.Contains(t, req.Messages[1].Content, `"test_name":"checkout"`)
}

func TestAnalyzer_UnparseableOutput(t *testing.T) {
	a := newTestAnalyzer(t, mocks.NewSuccessProvider("Sorry, I can't help with that."))

	res := a.Analyze(context.Background(), samplePayload)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "Sorry, I can't help with that.", res.Raw)
	assert.Contains(t, res.Error, "parse rca report")
}

func TestAnalyzer_TransportFailure(t *testing.T) {
	a := newTestAnalyzer(t, mocks.NewErrorProvider(&llm.Error{Code: llm.ErrUpstreamError, Message: "connection refused"}))

	res := a.Analyze(context.Background(), samplePayload)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "connection refused")
	assert.Nil(t, res.Report)
}

func TestAnalyzer_NoProvider(t *testing.T) {
	res := newTestAnalyzer(t, nil).Analyze(context.Background(), samplePayload)
	assert.Equal(t, StatusError, res.Status)
}

func TestAnalyzer_UnserializablePayload(t *testing.T) {
	provider := mocks.NewSuccessProvider(fixtures.RCAReportJSON)
	res := newTestAnalyzer(t, provider).Analyze(context.Background(), map[string]any{"ch": make(chan int)})
	assert.Equal(t, StatusError, res.Status)
	assert.Zero(t, provider.CallCount())
}

func TestAnalyzer_TruncatesToBudget(t *testing.T) {
	provider := mocks.NewSuccessProvider(fixtures.RCAReportJSON)
	a := NewAnalyzer(Config{MaxPayloadTokens: 20}, provider, zaptest.NewLogger(t),
		WithTokenizer(tokenizer.NewEstimatorTokenizer("gpt-4", 8192)))

	big := map[string]any{"logs": strings.Repeat("timeout while calling pricing tool; ", 200)}
	res := a.Analyze(context.Background(), big)
	require.True(t, res.OK())

	full, err := json.Marshal(big)
	require.NoError(t, err)
	sent := strings.TrimPrefix(provider.LastCall().Messages[1].Content, userPromptPrefix)
	assert.Less(t, len(sent), len(full))
	assert.True(t, strings.HasPrefix(string(full), sent))
}

func TestAnalyzer_CachesReports(t *testing.T) {
	mr, c := newRedisCache(t)
	provider := mocks.NewSuccessProvider(fixtures.RCAReportJSON)
	a := newTestAnalyzer(t, provider, WithCache(c))

	first := a.Analyze(context.Background(), samplePayload)
	require.True(t, first.OK())

	data, err := json.Marshal(samplePayload)
	require.NoError(t, err)
	key := CacheKey(data)
	assert.True(t, strings.HasPrefix(key, "rca:"))
	assert.True(t, mr.Exists(key))

	second := a.Analyze(context.Background(), samplePayload)
	require.True(t, second.OK())
	assert.True(t, second.Cached)
	assert.Equal(t, first.Report, second.Report)
	assert.Equal(t, 1, provider.CallCount())
}

type stampedPayload struct {
	TestName string    `json:"test_name"`
	At       time.Time `json:"at"`
}

func (p stampedPayload) CacheIdentity() any {
	p.At = time.Time{}
	return p
}

func TestAnalyzer_KeyedPayloadIgnoresVolatileFields(t *testing.T) {
	_, c := newRedisCache(t)
	provider := mocks.NewSuccessProvider(fixtures.RCAReportJSON)
	a := newTestAnalyzer(t, provider, WithCache(c))

	first := a.Analyze(context.Background(), stampedPayload{TestName: "checkout", At: time.Unix(100, 0).UTC()})
	require.True(t, first.OK(), first.Error)
	assert.Contains(t, provider.LastCall().Messages[1].Content, "1970-01-01T00:01:40Z")

	second := a.Analyze(context.Background(), stampedPayload{TestName: "checkout", At: time.Unix(200, 0).UTC()})
	require.True(t, second.OK(), second.Error)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, provider.CallCount())

	third := a.Analyze(context.Background(), stampedPayload{TestName: "refunds", At: time.Unix(200, 0).UTC()})
	require.True(t, third.OK(), third.Error)
	assert.False(t, third.Cached)
	assert.Equal(t, 2, provider.CallCount())
}

func TestAnalyzer_DoesNotCacheFailures(t *testing.T) {
	_, c := newRedisCache(t)
	provider := mocks.NewSuccessProvider("not json")
	a := newTestAnalyzer(t, provider, WithCache(c))

	a.Analyze(context.Background(), samplePayload)
	a.Analyze(context.Background(), samplePayload)
	assert.Equal(t, 2, provider.CallCount())
}

func TestAnalyzer_CacheUnavailable(t *testing.T) {
	mr, c := newRedisCache(t)
	mr.Close()
	provider := mocks.NewSuccessProvider(fixtures.RCAReportJSON)

	res := newTestAnalyzer(t, provider, WithCache(c)).Analyze(context.Background(), samplePayload)
	assert.True(t, res.OK(), "cache errors never fail the analysis")
}

func TestAnalyzer_RetriesThroughResilientProvider(t *testing.T) {
	var calls atomic.Int32
	inner := mocks.NewMockProvider().WithCompletionFunc(func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		if calls.Add(1) == 1 {
			return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: "502", Retryable: true}
		}
		return fixtures.SimpleResponse(fixtures.RCAReportJSON), nil
	})
	resilient := llm.NewResilientProvider(inner, llm.ResilientConfig{
		Timeout:          time.Second,
		MaxRetries:       2,
		RetryDelay:       time.Millisecond,
		FailureThreshold: 5,
		ResetTimeout:     time.Second,
	}, zaptest.NewLogger(t))

	res := newTestAnalyzer(t, resilient).Analyze(context.Background(), samplePayload)
	require.True(t, res.OK(), res.Error)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAnalyzer_TimeoutIsReported(t *testing.T) {
	inner := mocks.NewSuccessProvider(fixtures.RCAReportJSON).WithDelay(time.Second)
	resilient := llm.NewResilientProvider(inner, llm.ResilientConfig{
		Timeout:          20 * time.Millisecond,
		FailureThreshold: 5,
		ResetTimeout:     time.Second,
	}, nil)

	res := newTestAnalyzer(t, resilient).Analyze(context.Background(), samplePayload)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, string(llm.ErrUpstreamTimeout))
}

func TestAnalyzer_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegisterer("test", reg, nil)
	a := newTestAnalyzer(t, mocks.NewSuccessProvider(fixtures.RCAReportJSON).WithTokenUsage(100, 50), WithMetrics(collector))

	a.Analyze(context.Background(), samplePayload)

	n, err := testutil.GatherAndCount(reg, "test_rca_reports_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCacheKey_Stable(t *testing.T) {
	assert.Equal(t, CacheKey([]byte(`{"a":1}`)), CacheKey([]byte(`{"a":1}`)))
	assert.NotEqual(t, CacheKey([]byte(`{"a":1}`)), CacheKey([]byte(`{"a":2}`)))
	assert.Len(t, CacheKey(nil), len(CacheKeyPrefix)+64)
}

