// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者安全，
// 未配置指标的组件可以直接传 nil。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 分析流水线指标
	tracesIngested   *prometheus.CounterVec
	tracesSkipped    *prometheus.CounterVec
	reductionInput   *prometheus.CounterVec
	reductionOutput  *prometheus.CounterVec
	signalsDetected  *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec

	// 评估指标
	evaluationsTotal *prometheus.CounterVec
	evaluationScore  *prometheus.HistogramVec

	// RCA / LLM 指标
	rcaTotal           *prometheus.CounterVec
	rcaDuration        prometheus.Histogram
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 测试执行指标
	testRunsTotal *prometheus.CounterVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegisterer(namespace, prometheus.DefaultRegisterer, logger)
}

// NewCollectorWithRegisterer 使用指定 Registerer 创建收集器
func NewCollectorWithRegisterer(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	c.httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	c.httpRequestSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 7),
		},
		[]string{"method", "path"},
	)
	c.httpResponseSize = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 7),
		},
		[]string{"method", "path"},
	)

	// 分析流水线指标
	c.tracesIngested = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traces_ingested_total",
			Help:      "Trace records decoded into an analysis pass",
		},
		[]string{"type"},
	)
	c.tracesSkipped = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "traces_skipped_total",
			Help:      "Trace records skipped as malformed",
		},
		[]string{"reason"},
	)
	c.reductionInput = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reduction_input_records_total",
			Help:      "Records fed into the reducers",
		},
		[]string{"type"},
	)
	c.reductionOutput = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reduction_output_records_total",
			Help:      "Synthesized records emitted by the reducers",
		},
		[]string{"type"},
	)
	c.signalsDetected = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_signals_total",
			Help:      "AI signals emitted by the detector",
		},
		[]string{"kind"},
	)
	c.analysisDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_pass_duration_seconds",
			Help:      "Duration of a full analysis pass",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	// 评估指标
	c.evaluationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Metric evaluations by outcome",
		},
		[]string{"metric", "outcome"},
	)
	c.evaluationScore = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "evaluation_score",
			Help:      "Distribution of evaluation scores",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"metric"},
	)

	// RCA / LLM 指标
	c.rcaTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rca_reports_total",
			Help:      "RCA runs by result status",
		},
		[]string{"status"},
	)
	c.rcaDuration = f.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rca_duration_seconds",
			Help:      "RCA duration in seconds, including the LLM call",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
	c.llmRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests",
		},
		[]string{"provider", "model", "status"},
	)
	c.llmRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)
	c.llmTokensUsed = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used",
		},
		[]string{"provider", "model", "type"},
	)

	c.testRunsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "test_runs_total",
			Help:      "Test executions by outcome",
		},
		[]string{"status"},
	)

	// 缓存指标
	c.cacheHits = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)
	c.cacheMisses = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)
	c.dbConnectionsIdle = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔬 分析流水线指标记录
// =============================================================================

// RecordTraceIngested 记录进入分析的 trace
func (c *Collector) RecordTraceIngested(traceType string) {
	if c == nil {
		return
	}
	c.tracesIngested.WithLabelValues(traceType).Inc()
}

// RecordTraceSkipped 记录被跳过的畸形 trace
func (c *Collector) RecordTraceSkipped(reason string) {
	if c == nil {
		return
	}
	c.tracesSkipped.WithLabelValues(reason).Inc()
}

// RecordReduction 记录一次压缩的输入输出数量
func (c *Collector) RecordReduction(traceType string, in, out int) {
	if c == nil {
		return
	}
	c.reductionInput.WithLabelValues(traceType).Add(float64(in))
	c.reductionOutput.WithLabelValues(traceType).Add(float64(out))
}

// RecordSignals 记录检测到的 AI 信号
func (c *Collector) RecordSignals(kind string, n int) {
	if c == nil || n == 0 {
		return
	}
	c.signalsDetected.WithLabelValues(kind).Add(float64(n))
}

// RecordAnalysisPass 记录一次完整分析
func (c *Collector) RecordAnalysisPass(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.analysisDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// =============================================================================
// 📏 评估指标记录
// =============================================================================

// RecordEvaluation 记录单个指标的评估结果
func (c *Collector) RecordEvaluation(metric string, score float64, passed bool) {
	if c == nil {
		return
	}
	outcome := "failed"
	if passed {
		outcome = "passed"
	}
	c.evaluationsTotal.WithLabelValues(metric, outcome).Inc()
	c.evaluationScore.WithLabelValues(metric).Observe(score)
}

// =============================================================================
// 🤖 RCA / LLM 指标记录
// =============================================================================

// RecordRCA 记录一次 RCA
func (c *Collector) RecordRCA(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.rcaTotal.WithLabelValues(status).Inc()
	c.rcaDuration.Observe(duration.Seconds())
}

// RecordLLMRequest 记录 LLM 请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordTestRun 记录一次测试执行
func (c *Collector) RecordTestRun(status string) {
	if c == nil {
		return
	}
	c.testRunsTotal.WithLabelValues(status).Inc()
}

// =============================================================================
// 💾 缓存 / 数据库指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
