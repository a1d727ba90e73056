// Package evaluation scores interactions against configurable, deterministic
// quality metrics and aggregates the scores across batches.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/ingestion"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/metrics"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

const goldSuffix = "_gold_comparison"

// MetricResult 单个指标的评估结果
type MetricResult struct {
	Score     float64  `json:"score"`
	Threshold float64  `json:"threshold"`
	Passed    bool     `json:"passed"`
	Criteria  Criteria `json:"criteria"`
}

// GoldComparison 当前回答与标准答案在同一指标上的对比
type GoldComparison struct {
	GoldScore    float64 `json:"gold_score"`
	CurrentScore float64 `json:"current_score"`
	Difference   float64 `json:"difference"`
}

// GoldStandard 标准输入输出
type GoldStandard struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// InteractionResult 单次交互的评估结果。
// JSON 形式为扁平对象：<metric> 与 <metric>_gold_comparison。
type InteractionResult struct {
	Metrics map[string]MetricResult
	Gold    map[string]GoldComparison
}

// Passed 所有指标都通过时返回 true
func (r InteractionResult) Passed() bool {
	for _, m := range r.Metrics {
		if !m.Passed {
			return false
		}
	}
	return true
}

// MarshalJSON implements json.Marshaler.
func (r InteractionResult) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Metrics)+len(r.Gold))
	for name, m := range r.Metrics {
		flat[name] = m
	}
	for name, g := range r.Gold {
		flat[name+goldSuffix] = g
	}
	return json.Marshal(flat)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *InteractionResult) UnmarshalJSON(b []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}
	r.Metrics = make(map[string]MetricResult)
	for key, raw := range flat {
		if name, ok := strings.CutSuffix(key, goldSuffix); ok {
			var g GoldComparison
			if err := json.Unmarshal(raw, &g); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			if r.Gold == nil {
				r.Gold = make(map[string]GoldComparison)
			}
			r.Gold[name] = g
			continue
		}
		var m MetricResult
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		r.Metrics[key] = m
	}
	return nil
}

// InteractionEvaluation 批量评估中的一条记录
type InteractionEvaluation struct {
	TraceID    uint              `json:"trace_id"`
	Timestamp  time.Time         `json:"timestamp"`
	Evaluation InteractionResult `json:"evaluation"`
}

// FailedMetric 未通过的指标
type FailedMetric struct {
	Metric   string   `json:"metric"`
	TraceID  uint     `json:"trace_id"`
	Score    float64  `json:"score"`
	Criteria Criteria `json:"criteria"`
}

// BatchSummary 批量评估汇总
type BatchSummary struct {
	TotalInteractions int                `json:"total_interactions"`
	AverageScores     map[string]float64 `json:"average_scores"`
	FailedMetrics     []FailedMetric     `json:"failed_metrics"`
}

// BatchResult 批量评估结果
type BatchResult struct {
	UserID       uint                    `json:"user_id"`
	Interactions []InteractionEvaluation `json:"interactions"`
	Summary      BatchSummary            `json:"summary"`
}

// NewBatchResult 创建空的批量结果
func NewBatchResult(userID uint) *BatchResult {
	return &BatchResult{
		UserID:       userID,
		Interactions: []InteractionEvaluation{},
		Summary: BatchSummary{
			AverageScores: map[string]float64{},
			FailedMetrics: []FailedMetric{},
		},
	}
}

// ResultStore 持久化批量评估结果。实现必须在单个事务中写入
// trace 注解与指标汇总，出错时整体回滚。
type ResultStore interface {
	SaveBatch(ctx context.Context, userID uint, batch *BatchResult) error
}

// Config 评估器配置
type Config struct {
	DefaultThreshold float64             `json:"default_threshold"`
	Metrics          map[string]Criteria `json:"metrics"`
}

// DefaultConfig 启用 answer_relevancy、faithfulness、hallucination
func DefaultConfig() Config {
	return Config{
		DefaultThreshold: DefaultThreshold,
		Metrics: map[string]Criteria{
			MetricAnswerRelevancy: NewCriteria(DefaultThreshold),
			MetricFaithfulness:    NewCriteria(DefaultThreshold),
			MetricHallucination:   NewCriteria(DefaultThreshold),
		},
	}
}

// Option 评估器选项
type Option func(*Evaluator)

// WithRegistry 使用自定义指标注册表
func WithRegistry(r *MetricRegistry) Option {
	return func(e *Evaluator) { e.registry = r }
}

// WithMetrics 记录评估指标
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Evaluator) { e.metrics = c }
}

// Evaluator 按已启用指标评估交互。并发安全。
type Evaluator struct {
	mu               sync.RWMutex
	registry         *MetricRegistry
	criteria         map[string]Criteria
	defaultThreshold float64
	store            ResultStore
	logger           *zap.Logger
	metrics          *metrics.Collector
}

// NewEvaluator 创建评估器。store 为 nil 时 EvaluateMetrics 不持久化。
func NewEvaluator(cfg Config, store ResultStore, logger *zap.Logger, opts ...Option) (*Evaluator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultThreshold <= 0 {
		cfg.DefaultThreshold = DefaultThreshold
	}
	e := &Evaluator{
		registry:         NewRegistryWithBuiltinMetrics(),
		criteria:         make(map[string]Criteria),
		defaultThreshold: cfg.DefaultThreshold,
		store:            store,
		logger:           logger.With(zap.String("component", "evaluator")),
	}
	for _, opt := range opts {
		opt(e)
	}
	for name, c := range cfg.Metrics {
		if err := e.SetMetricCriteria(name, c); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// SetMetricCriteria 启用指标并设置其评估标准
func (e *Evaluator) SetMetricCriteria(name string, c Criteria) error {
	if _, ok := e.registry.Get(name); !ok {
		return types.NewError(types.ErrValidation, fmt.Sprintf("unknown metric %q", name)).WithHTTPStatus(400)
	}
	if t := c.ThresholdOr(e.defaultThreshold); t < 0 || t > 1 {
		return types.NewError(types.ErrValidation, fmt.Sprintf("threshold for %s must be between 0 and 1", name)).WithHTTPStatus(400)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.criteria[name] = c.clone()
	e.logger.Info("metric criteria set", zap.String("metric", name), zap.Float64("threshold", c.ThresholdOr(e.defaultThreshold)))
	return nil
}

// MetricCriteria 返回已启用指标的评估标准副本
func (e *Evaluator) MetricCriteria() map[string]Criteria {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]Criteria, len(e.criteria))
	for name, c := range e.criteria {
		out[name] = c.clone()
	}
	return out
}

// EnabledMetrics 按名称排序返回已启用指标
func (e *Evaluator) EnabledMetrics() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.criteria))
	for _, name := range e.registry.List() {
		if _, ok := e.criteria[name]; ok {
			names = append(names, name)
		}
	}
	return names
}

// EvaluateInteraction 用所有已启用指标评估一次交互。gold 非空时附加标准答案对比。
func (e *Evaluator) EvaluateInteraction(ctx context.Context, query, output string, passages []string, gold *GoldStandard) (InteractionResult, error) {
	criteria := e.MetricCriteria()
	result := InteractionResult{Metrics: make(map[string]MetricResult, len(criteria))}

	for _, name := range e.EnabledMetrics() {
		if err := ctx.Err(); err != nil {
			return InteractionResult{}, err
		}
		c := criteria[name]
		score, err := e.score(ctx, name, c, query, output, passages, gold)
		if err != nil {
			return InteractionResult{}, types.NewError(types.ErrEvaluationFailed, "metric computation failed").WithCause(err)
		}
		threshold := c.ThresholdOr(e.defaultThreshold)
		result.Metrics[name] = MetricResult{
			Score:     score,
			Threshold: threshold,
			Passed:    score >= threshold,
			Criteria:  c,
		}
		e.metrics.RecordEvaluation(name, score, score >= threshold)

		if gold == nil {
			continue
		}
		goldScore, err := e.score(ctx, name, c, gold.Input, gold.Output, passages, gold)
		if err != nil {
			return InteractionResult{}, types.NewError(types.ErrEvaluationFailed, "gold comparison failed").WithCause(err)
		}
		if result.Gold == nil {
			result.Gold = make(map[string]GoldComparison)
		}
		result.Gold[name] = GoldComparison{
			GoldScore:    goldScore,
			CurrentScore: score,
			Difference:   score - goldScore,
		}
	}
	return result, nil
}

func (e *Evaluator) score(ctx context.Context, name string, c Criteria, query, output string, passages []string, gold *GoldStandard) (float64, error) {
	input := NewEvalInput(query).WithContext(passages)
	if gold != nil {
		input.WithExpected(gold.Output)
	}
	base, err := e.registry.Compute(ctx, name, input, NewEvalOutput(output))
	if err != nil {
		return 0, err
	}
	return clamp01(c.Adjust(base, output)), nil
}

// EvaluateMetrics 评估一批合成交互并在一个事务内持久化。
// 任何错误都会返回空结果与错误。
func (e *Evaluator) EvaluateMetrics(ctx context.Context, userID uint, interactions []ingestion.SynthesizedInteraction) (*BatchResult, error) {
	batch := NewBatchResult(userID)
	batch.Summary.TotalInteractions = len(interactions)
	if len(interactions) == 0 {
		return batch, nil
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, it := range interactions {
		result, err := e.EvaluateInteraction(ctx, it.Prompt.Text, ResponseText(it.Response.Text), it.Context, nil)
		if err != nil {
			e.logger.Error("batch evaluation aborted", zap.Uint("trace_id", it.TraceID), zap.Error(err))
			return NewBatchResult(userID), err
		}
		batch.Interactions = append(batch.Interactions, InteractionEvaluation{
			TraceID:    it.TraceID,
			Timestamp:  it.Timestamp,
			Evaluation: result,
		})
		for _, name := range sortedKeys(result.Metrics) {
			m := result.Metrics[name]
			sums[name] += m.Score
			counts[name]++
			if !m.Passed {
				batch.Summary.FailedMetrics = append(batch.Summary.FailedMetrics, FailedMetric{
					Metric:   name,
					TraceID:  it.TraceID,
					Score:    m.Score,
					Criteria: m.Criteria,
				})
			}
		}
	}
	for name, sum := range sums {
		batch.Summary.AverageScores[name] = sum / float64(counts[name])
	}

	if e.store != nil {
		if err := e.store.SaveBatch(ctx, userID, batch); err != nil {
			e.logger.Error("persist evaluation batch", zap.Uint("user_id", userID), zap.Error(err))
			return NewBatchResult(userID), types.NewError(types.ErrPersistenceFailed, "save evaluation batch").
				WithCause(err).WithHTTPStatus(500).WithRetryable(true)
		}
	}

	e.logger.Info("batch evaluated",
		zap.Uint("user_id", userID),
		zap.Int("interactions", len(interactions)),
		zap.Int("failed_metrics", len(batch.Summary.FailedMetrics)))
	return batch, nil
}

// Summarize 使用评估器当前的标准生成汇总
func (e *Evaluator) Summarize(batch *BatchResult) Summary {
	return Summarize(batch, e.MetricCriteria(), e.defaultThreshold)
}

// ResponseText 将合成交互的回答转换为可评估文本
func ResponseText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		if text, ok := t["text"].(string); ok {
			return text
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
