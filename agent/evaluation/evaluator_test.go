package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/ingestion"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/metrics"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

type recordingStore struct {
	mu      sync.Mutex
	err     error
	batches []*BatchResult
}

func (s *recordingStore) SaveBatch(_ context.Context, _ uint, batch *BatchResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingStore) saved() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func newTestEvaluator(t *testing.T, cfg Config, store ResultStore, opts ...Option) *Evaluator {
	t.Helper()
	e, err := NewEvaluator(cfg, store, zaptest.NewLogger(t), opts...)
	require.NoError(t, err)
	return e
}

func relevancyOnly() Config {
	return Config{Metrics: map[string]Criteria{MetricAnswerRelevancy: NewCriteria(0.7)}}
}

func interaction(id uint, prompt string, response any) ingestion.SynthesizedInteraction {
	return ingestion.SynthesizedInteraction{
		TraceID:   id,
		Timestamp: time.Date(2024, 1, 1, 0, 0, int(id), 0, time.UTC),
		Prompt:    ingestion.PromptSummary{Text: prompt},
		Response:  ingestion.ResponseSummary{Text: response},
	}
}

func TestNewEvaluator_DefaultConfig(t *testing.T) {
	e := newTestEvaluator(t, DefaultConfig(), nil)
	assert.Equal(t, []string{MetricAnswerRelevancy, MetricFaithfulness, MetricHallucination}, e.EnabledMetrics())
	for _, c := range e.MetricCriteria() {
		assert.Equal(t, DefaultThreshold, c.ThresholdOr(0))
	}
}

func TestNewEvaluator_RejectsUnknownMetric(t *testing.T) {
	_, err := NewEvaluator(Config{Metrics: map[string]Criteria{"bleu": {}}}, nil, nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
}

func TestEvaluator_SetMetricCriteria(t *testing.T) {
	e := newTestEvaluator(t, Config{}, nil)
	assert.Empty(t, e.EnabledMetrics())

	require.NoError(t, e.SetMetricCriteria(MetricToxicity, Criteria{}))
	assert.Equal(t, []string{MetricToxicity}, e.EnabledMetrics())
	assert.Equal(t, DefaultThreshold, e.MetricCriteria()[MetricToxicity].ThresholdOr(DefaultThreshold))

	assert.Error(t, e.SetMetricCriteria(MetricToxicity, NewCriteria(1.5)))
	assert.Error(t, e.SetMetricCriteria("nope", Criteria{}))

	// 返回的是副本
	c := e.MetricCriteria()[MetricToxicity]
	c.DetectionRules = map[string]string{"x": "y"}
	assert.Nil(t, e.MetricCriteria()[MetricToxicity].DetectionRules)
}

func TestEvaluator_EvaluateInteraction(t *testing.T) {
	e := newTestEvaluator(t, DefaultConfig(), nil)

	result, err := e.EvaluateInteraction(context.Background(),
		franceQuery,
		"Paris is the capital of France. The moon is made of cheese.",
		[]string{francePassage}, nil)
	require.NoError(t, err)

	require.Len(t, result.Metrics, 3)
	assert.Equal(t, 1.0, result.Metrics[MetricAnswerRelevancy].Score)
	assert.True(t, result.Metrics[MetricAnswerRelevancy].Passed)
	assert.Equal(t, 0.5, result.Metrics[MetricFaithfulness].Score)
	assert.False(t, result.Metrics[MetricFaithfulness].Passed)
	assert.Equal(t, 0.7, result.Metrics[MetricFaithfulness].Threshold)
	assert.Equal(t, 0.5, result.Metrics[MetricHallucination].Score)
	assert.False(t, result.Passed())
	assert.Nil(t, result.Gold)
}

func TestEvaluator_EvaluateInteraction_Deterministic(t *testing.T) {
	e := newTestEvaluator(t, DefaultConfig(), nil)
	ctx := context.Background()
	passages := []string{francePassage, "France borders Spain."}

	first, err := e.EvaluateInteraction(ctx, franceQuery, "The capital is Paris, near Spain.", passages, nil)
	require.NoError(t, err)
	second, err := e.EvaluateInteraction(ctx, franceQuery, "The capital is Paris, near Spain.", passages, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEvaluator_EvaluateInteraction_ThresholdBoundary(t *testing.T) {
	e := newTestEvaluator(t, Config{Metrics: map[string]Criteria{MetricAnswerRelevancy: NewCriteria(0.5)}}, nil)

	result, err := e.EvaluateInteraction(context.Background(), franceQuery, "The capital is Paris.", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.5, result.Metrics[MetricAnswerRelevancy].Score)
	assert.True(t, result.Metrics[MetricAnswerRelevancy].Passed, "score equal to threshold passes")
}

func TestEvaluator_EvaluateInteraction_Gold(t *testing.T) {
	e := newTestEvaluator(t, relevancyOnly(), nil)

	result, err := e.EvaluateInteraction(context.Background(), franceQuery, "Paris.", nil,
		&GoldStandard{Input: franceQuery, Output: francePassage})
	require.NoError(t, err)

	gold := result.Gold[MetricAnswerRelevancy]
	assert.Equal(t, 1.0, gold.GoldScore)
	assert.Equal(t, 0.0, gold.CurrentScore)
	assert.Equal(t, -1.0, gold.Difference)

	raw, err := json.Marshal(result)
	require.NoError(t, err)
	var flat map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &flat))
	assert.Contains(t, flat, "answer_relevancy")
	assert.Contains(t, flat, "answer_relevancy_gold_comparison")

	var decoded InteractionResult
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, gold, decoded.Gold[MetricAnswerRelevancy])
	assert.Equal(t, result.Metrics[MetricAnswerRelevancy].Score, decoded.Metrics[MetricAnswerRelevancy].Score)
}

func TestEvaluator_EvaluateInteraction_CriteriaRules(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		response string
		want     float64
	}{
		{"required term missing", Criteria{EvaluationRules: map[string]string{"greeting": "hello, hi"}}, "Paris is the capital of France.", 0},
		{"required term present", Criteria{EvaluationRules: map[string]string{"greeting": "hello, hi"}}, "Hello! Paris is the capital of France.", 1},
		{"forbidden term", Criteria{DetectionRules: map[string]string{"geo": "france"}}, "Paris is the capital of France.", 0},
		{"empty rules ignored", Criteria{EvaluationRules: map[string]string{"noop": " , "}}, "Paris is the capital of France.", 1},
		{"half of rules", Criteria{EvaluationRules: map[string]string{"a": "paris", "b": "london"}}, "Paris is the capital of France.", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEvaluator(t, Config{Metrics: map[string]Criteria{MetricAnswerRelevancy: tt.criteria}}, nil)
			result, err := e.EvaluateInteraction(context.Background(), franceQuery, tt.response, nil, nil)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, result.Metrics[MetricAnswerRelevancy].Score, 1e-9)
		})
	}
}

func TestEvaluator_EvaluateInteraction_Errors(t *testing.T) {
	reg := NewMetricRegistry()
	reg.Register(&mockMetric{name: "broken", err: errors.New("boom")})
	e := newTestEvaluator(t, Config{Metrics: map[string]Criteria{"broken": {}}}, nil, WithRegistry(reg))

	_, err := e.EvaluateInteraction(context.Background(), "q", "a", nil, nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrEvaluationFailed))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = newTestEvaluator(t, DefaultConfig(), nil).EvaluateInteraction(ctx, "q", "a", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluator_EvaluateMetrics(t *testing.T) {
	store := &recordingStore{}
	e := newTestEvaluator(t, relevancyOnly(), store)

	batch, err := e.EvaluateMetrics(context.Background(), 7, []ingestion.SynthesizedInteraction{
		interaction(1, franceQuery, francePassage),
		interaction(2, franceQuery, "I don't know"),
		interaction(3, franceQuery, "I don't know"),
		interaction(4, franceQuery, map[string]any{"text": "No idea"}),
	})
	require.NoError(t, err)

	assert.Equal(t, uint(7), batch.UserID)
	assert.Equal(t, 4, batch.Summary.TotalInteractions)
	require.Len(t, batch.Interactions, 4)
	assert.Equal(t, uint(3), batch.Interactions[2].TraceID)
	assert.InDelta(t, 0.25, batch.Summary.AverageScores[MetricAnswerRelevancy], 1e-9)

	require.Len(t, batch.Summary.FailedMetrics, 3)
	for i, f := range batch.Summary.FailedMetrics {
		assert.Equal(t, MetricAnswerRelevancy, f.Metric)
		assert.Equal(t, uint(i+2), f.TraceID)
		assert.Equal(t, 0.0, f.Score)
	}
	assert.Equal(t, 1, store.saved())

	summary := e.Summarize(batch)
	assert.Equal(t, HealthNeedsAttention, summary.OverallHealth)
	require.Len(t, summary.CriticalIssues, 1)
	assert.Equal(t, MetricAnswerRelevancy, summary.CriticalIssues[0].Metric)
	assert.Equal(t, 3, summary.CriticalIssues[0].FailureCount)
}

func TestEvaluator_EvaluateMetrics_Empty(t *testing.T) {
	store := &recordingStore{}
	e := newTestEvaluator(t, DefaultConfig(), store)

	batch, err := e.EvaluateMetrics(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Zero(t, batch.Summary.TotalInteractions)
	assert.NotNil(t, batch.Interactions)
	assert.NotNil(t, batch.Summary.FailedMetrics)
	assert.Zero(t, store.saved())
}

func TestEvaluator_EvaluateMetrics_PersistenceFailure(t *testing.T) {
	store := &recordingStore{err: errors.New("tx aborted")}
	e := newTestEvaluator(t, relevancyOnly(), store)

	batch, err := e.EvaluateMetrics(context.Background(), 3, []ingestion.SynthesizedInteraction{
		interaction(1, franceQuery, "Paris."),
	})
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrPersistenceFailed))
	assert.True(t, types.IsRetryable(err))

	require.NotNil(t, batch)
	assert.Equal(t, uint(3), batch.UserID)
	assert.Empty(t, batch.Interactions)
	assert.Empty(t, batch.Summary.FailedMetrics)
	assert.Empty(t, batch.Summary.AverageScores)
	assert.Zero(t, batch.Summary.TotalInteractions)
}

func TestEvaluator_RecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollectorWithRegisterer("test", reg, nil)
	e := newTestEvaluator(t, DefaultConfig(), nil, WithMetrics(collector))

	_, err := e.EvaluateInteraction(context.Background(), franceQuery, francePassage, []string{francePassage}, nil)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "test_evaluations_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestResponseText(t *testing.T) {
	assert.Equal(t, "", ResponseText(nil))
	assert.Equal(t, "plain", ResponseText("plain"))
	assert.Equal(t, "inner", ResponseText(map[string]any{"text": "inner", "tokens": 3}))
	assert.JSONEq(t, `{"answer":"x"}`, ResponseText(map[string]any{"answer": "x"}))
}
