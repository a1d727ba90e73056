package evaluation

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Metric 评估指标接口。实现必须是 (query, output, context) 的纯函数，
// 相同输入总是得到相同分数。
type Metric interface {
	// Name 指标名称
	Name() string
	// Compute 计算指标值，范围 0.0 - 1.0
	Compute(ctx context.Context, input *EvalInput, output *EvalOutput) (float64, error)
}

// EvalInput 评估输入
type EvalInput struct {
	Query    string   `json:"query"`
	Context  []string `json:"context,omitempty"`
	Expected string   `json:"expected,omitempty"`
}

// EvalOutput 评估输出
type EvalOutput struct {
	Response string `json:"response"`
}

// NewEvalInput 创建评估输入
func NewEvalInput(query string) *EvalInput {
	return &EvalInput{Query: query}
}

// WithContext 设置检索上下文
func (e *EvalInput) WithContext(passages []string) *EvalInput {
	e.Context = passages
	return e
}

// WithExpected 设置期望输出
func (e *EvalInput) WithExpected(expected string) *EvalInput {
	e.Expected = expected
	return e
}

// NewEvalOutput 创建评估输出
func NewEvalOutput(response string) *EvalOutput {
	return &EvalOutput{Response: response}
}

// MetricRegistry 指标注册表，并发安全
type MetricRegistry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewMetricRegistry 创建指标注册表
func NewMetricRegistry() *MetricRegistry {
	return &MetricRegistry{
		metrics: make(map[string]Metric),
	}
}

// Register 注册指标，同名指标会被覆盖
func (r *MetricRegistry) Register(metric Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics[metric.Name()] = metric
}

// Get 获取指标
func (r *MetricRegistry) Get(name string) (Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[name]
	return m, ok
}

// List 按名称排序列出所有指标
func (r *MetricRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compute 计算单个指标，结果截断到 [0, 1]
func (r *MetricRegistry) Compute(ctx context.Context, name string, input *EvalInput, output *EvalOutput) (float64, error) {
	m, ok := r.Get(name)
	if !ok {
		return 0, fmt.Errorf("metric %q is not registered", name)
	}
	score, err := m.Compute(ctx, input, output)
	if err != nil {
		return 0, fmt.Errorf("metric %s: %w", name, err)
	}
	return clamp01(score), nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
