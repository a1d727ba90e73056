package evaluation

import (
	"fmt"
	"sort"
)

// 整体健康状态
const (
	HealthGood           = "good"
	HealthNeedsAttention = "needs_attention"

	StatusGood             = "good"
	StatusNeedsImprovement = "needs_improvement"
)

// criticalFailureCount 失败次数超过该值的指标视为关键问题
const criticalFailureCount = 2

// CriticalIssue 频繁失败的指标
type CriticalIssue struct {
	Metric       string   `json:"metric"`
	FailureCount int      `json:"failure_count"`
	AvgScore     float64  `json:"avg_score"`
	Criteria     Criteria `json:"criteria"`
}

// MetricTrend 指标当前水平
type MetricTrend struct {
	CurrentScore float64 `json:"current_score"`
	Threshold    float64 `json:"threshold"`
	Status       string  `json:"status"`
}

// Recommendation 针对关键问题的改进建议
type Recommendation struct {
	Metric   string   `json:"metric"`
	Action   string   `json:"action"`
	Priority string   `json:"priority"`
	Criteria Criteria `json:"criteria"`
}

// Summary 批量评估的可读汇总
type Summary struct {
	OverallHealth   string                 `json:"overall_health"`
	CriticalIssues  []CriticalIssue        `json:"critical_issues"`
	MetricTrends    map[string]MetricTrend `json:"metric_trends"`
	Recommendations []Recommendation       `json:"recommendations"`
}

// Summarize 汇总批量评估结果。criteria 中没有阈值的指标使用 defaultThreshold。
func Summarize(batch *BatchResult, criteria map[string]Criteria, defaultThreshold float64) Summary {
	s := Summary{
		OverallHealth:   HealthGood,
		CriticalIssues:  []CriticalIssue{},
		MetricTrends:    map[string]MetricTrend{},
		Recommendations: []Recommendation{},
	}
	if batch == nil {
		return s
	}

	type failures struct {
		count int
		sum   float64
		first Criteria
	}
	byMetric := make(map[string]*failures)
	var order []string
	for _, f := range batch.Summary.FailedMetrics {
		agg, ok := byMetric[f.Metric]
		if !ok {
			agg = &failures{first: f.Criteria}
			byMetric[f.Metric] = agg
			order = append(order, f.Metric)
		}
		agg.count++
		agg.sum += f.Score
	}

	for _, name := range order {
		agg := byMetric[name]
		if agg.count <= criticalFailureCount {
			continue
		}
		s.CriticalIssues = append(s.CriticalIssues, CriticalIssue{
			Metric:       name,
			FailureCount: agg.count,
			AvgScore:     agg.sum / float64(agg.count),
			Criteria:     agg.first,
		})
		s.Recommendations = append(s.Recommendations, Recommendation{
			Metric:   name,
			Action:   fmt.Sprintf("Improve %s performance", name),
			Priority: "high",
			Criteria: agg.first,
		})
	}
	if len(batch.Summary.FailedMetrics) > 0 {
		s.OverallHealth = HealthNeedsAttention
	}

	for _, name := range sortedKeys(batch.Summary.AverageScores) {
		avg := batch.Summary.AverageScores[name]
		threshold := criteria[name].ThresholdOr(defaultThreshold)
		status := StatusGood
		if avg < threshold {
			status = StatusNeedsImprovement
		}
		s.MetricTrends[name] = MetricTrend{CurrentScore: avg, Threshold: threshold, Status: status}
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
