package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failed(metric string, traceID uint, score float64) FailedMetric {
	return FailedMetric{Metric: metric, TraceID: traceID, Score: score, Criteria: NewCriteria(0.7)}
}

func TestSummarize(t *testing.T) {
	batch := NewBatchResult(1)
	batch.Summary.TotalInteractions = 4
	batch.Summary.AverageScores = map[string]float64{
		MetricFaithfulness:    0.4,
		MetricAnswerRelevancy: 0.9,
	}
	batch.Summary.FailedMetrics = []FailedMetric{
		failed(MetricFaithfulness, 1, 0.2),
		failed(MetricAnswerRelevancy, 1, 0.6),
		failed(MetricFaithfulness, 2, 0.4),
		failed(MetricFaithfulness, 3, 0.3),
	}

	s := Summarize(batch, map[string]Criteria{MetricFaithfulness: NewCriteria(0.8)}, DefaultThreshold)

	assert.Equal(t, HealthNeedsAttention, s.OverallHealth)
	require.Len(t, s.CriticalIssues, 1)
	issue := s.CriticalIssues[0]
	assert.Equal(t, MetricFaithfulness, issue.Metric)
	assert.Equal(t, 3, issue.FailureCount)
	assert.InDelta(t, 0.3, issue.AvgScore, 1e-9)
	assert.Equal(t, 0.7, issue.Criteria.ThresholdOr(0))

	require.Len(t, s.Recommendations, 1)
	assert.Equal(t, Recommendation{
		Metric:   MetricFaithfulness,
		Action:   "Improve faithfulness performance",
		Priority: "high",
		Criteria: issue.Criteria,
	}, s.Recommendations[0])

	assert.Equal(t, MetricTrend{CurrentScore: 0.4, Threshold: 0.8, Status: StatusNeedsImprovement}, s.MetricTrends[MetricFaithfulness])
	assert.Equal(t, MetricTrend{CurrentScore: 0.9, Threshold: DefaultThreshold, Status: StatusGood}, s.MetricTrends[MetricAnswerRelevancy])
}

func TestSummarize_TwoFailuresIsNotCritical(t *testing.T) {
	batch := NewBatchResult(1)
	batch.Summary.FailedMetrics = []FailedMetric{
		failed(MetricToxicity, 1, 0.1),
		failed(MetricToxicity, 2, 0.1),
	}

	s := Summarize(batch, nil, DefaultThreshold)
	assert.Equal(t, HealthNeedsAttention, s.OverallHealth)
	assert.Empty(t, s.CriticalIssues)
	assert.Empty(t, s.Recommendations)
}

func TestSummarize_SingleFailureNeedsAttention(t *testing.T) {
	batch := NewBatchResult(1)
	batch.Summary.FailedMetrics = []FailedMetric{failed(MetricFaithfulness, 1, 0.3)}

	s := Summarize(batch, nil, DefaultThreshold)
	assert.Equal(t, HealthNeedsAttention, s.OverallHealth)
	assert.Empty(t, s.CriticalIssues)

	clean := NewBatchResult(1)
	assert.Equal(t, HealthGood, Summarize(clean, nil, DefaultThreshold).OverallHealth)
}

func TestSummarize_CriticalIssueOrder(t *testing.T) {
	batch := NewBatchResult(1)
	for i := uint(1); i <= 3; i++ {
		batch.Summary.FailedMetrics = append(batch.Summary.FailedMetrics,
			failed(MetricToxicity, i, 0.1), failed(MetricAnswerRelevancy, i, 0.2))
	}

	s := Summarize(batch, nil, DefaultThreshold)
	require.Len(t, s.CriticalIssues, 2)
	assert.Equal(t, MetricToxicity, s.CriticalIssues[0].Metric)
	assert.Equal(t, MetricAnswerRelevancy, s.CriticalIssues[1].Metric)
}

func TestSummarize_Nil(t *testing.T) {
	s := Summarize(nil, nil, DefaultThreshold)
	assert.Equal(t, HealthGood, s.OverallHealth)
	assert.NotNil(t, s.CriticalIssues)
	assert.NotNil(t, s.MetricTrends)
}
