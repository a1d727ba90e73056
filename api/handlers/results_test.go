package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/store"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

type fakeResultStore struct {
	testName string
	limit    int
	userID   uint
	name     string
}

func (f *fakeResultStore) ListTestResults(_ context.Context, testName string, limit int) ([]store.TestResult, error) {
	f.testName, f.limit = testName, limit
	return []store.TestResult{{ID: 1, TestName: "checkout", Status: "passed"}}, nil
}

func (f *fakeResultStore) GetMetricSummary(_ context.Context, userID uint, name string) (*store.MetricSummary, error) {
	f.userID, f.name = userID, name
	if userID != 7 {
		return nil, types.NewError(types.ErrNotFound, "metric summary not found")
	}
	return &store.MetricSummary{ID: 3, UserID: userID, Name: name}, nil
}

func TestResultHandler_TestResults(t *testing.T) {
	s := &fakeResultStore{}
	h := NewResultHandler(s, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	h.HandleTestResults(w, httptest.NewRequest(http.MethodGet, "/api/v1/tests/results?test_name=checkout&limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "checkout", s.testName)
	assert.Equal(t, 5, s.limit)

	var results []store.TestResult
	decodeResponse(t, w, &results)
	require.Len(t, results, 1)
	assert.Equal(t, "passed", results[0].Status)

	w = httptest.NewRecorder()
	h.HandleTestResults(w, httptest.NewRequest(http.MethodGet, "/api/v1/tests/results?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	h.HandleTestResults(w, httptest.NewRequest(http.MethodPost, "/api/v1/tests/results", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestResultHandler_Summary(t *testing.T) {
	s := &fakeResultStore{}
	h := NewResultHandler(s, zaptest.NewLogger(t))

	w := httptest.NewRecorder()
	h.HandleSummary(w, httptest.NewRequest(http.MethodGet, "/api/v1/evaluations/summary?user_id=7", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, store.EvaluationSummaryMetric, s.name)

	w = httptest.NewRecorder()
	h.HandleSummary(w, httptest.NewRequest(http.MethodGet, "/api/v1/evaluations/summary", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 认证用户的 user_id 覆盖查询参数
	w = httptest.NewRecorder()
	h.HandleSummary(w, withUser(httptest.NewRequest(http.MethodGet, "/api/v1/evaluations/summary?user_id=7&name=faithfulness", nil), 8))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, uint(8), s.userID)
	assert.Equal(t, "faithfulness", s.name)
}
