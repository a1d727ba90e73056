package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/store"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// ResultStore 由 internal/store.Store 实现
type ResultStore interface {
	ListTestResults(ctx context.Context, testName string, limit int) ([]store.TestResult, error)
	GetMetricSummary(ctx context.Context, userID uint, name string) (*store.MetricSummary, error)
}

// ResultHandler 测试结果与评估汇总查询
type ResultHandler struct {
	store  ResultStore
	logger *zap.Logger
}

// NewResultHandler 创建 ResultHandler
func NewResultHandler(s ResultStore, logger *zap.Logger) *ResultHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultHandler{store: s, logger: logger.With(zap.String("handler", "results"))}
}

// HandleTestResults 处理 GET /api/v1/tests/results?test_name=&limit=
func (h *ResultHandler) HandleTestResults(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	results, err := h.store.ListTestResults(r.Context(), strings.TrimSpace(r.URL.Query().Get("test_name")), limit)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, results)
}

// HandleSummary 处理 GET /api/v1/evaluations/summary?user_id=&name=
// name 缺省为最近一次批量评估的汇总
func (h *ResultHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	userID, err := queryUint(r, "user_id")
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if uid, ok := types.UserID(r.Context()); ok {
		userID = &uid
	}
	if userID == nil {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "user_id is required"), h.logger)
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = store.EvaluationSummaryMetric
	}
	summary, err := h.store.GetMetricSummary(r.Context(), *userID, name)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, summary)
}
