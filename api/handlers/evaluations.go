package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/evaluation"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/ingestion"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// Evaluator 由 evaluation.Evaluator 实现
type Evaluator interface {
	EvaluateInteraction(ctx context.Context, query, output string, passages []string, gold *evaluation.GoldStandard) (evaluation.InteractionResult, error)
	EvaluateMetrics(ctx context.Context, userID uint, interactions []ingestion.SynthesizedInteraction) (*evaluation.BatchResult, error)
	Summarize(batch *evaluation.BatchResult) evaluation.Summary
	SetMetricCriteria(name string, c evaluation.Criteria) error
	MetricCriteria() map[string]evaluation.Criteria
	EnabledMetrics() []string
}

// EvaluateRequest POST /api/v1/evaluations 请求体
type EvaluateRequest struct {
	Query   string                   `json:"query"`
	Output  string                   `json:"output"`
	Context []string                 `json:"context,omitempty"`
	Gold    *evaluation.GoldStandard `json:"gold_standard,omitempty"`
}

// BatchEvaluateRequest POST /api/v1/evaluations/batch 请求体
type BatchEvaluateRequest struct {
	UserID uint `json:"user_id"`
}

// BatchEvaluateResponse 批量评估结果与汇总
type BatchEvaluateResponse struct {
	Results *evaluation.BatchResult `json:"results"`
	Summary evaluation.Summary      `json:"summary"`
}

// CriteriaRequest PUT /api/v1/evaluations/criteria 请求体
type CriteriaRequest struct {
	Metric   string              `json:"metric"`
	Criteria evaluation.Criteria `json:"criteria"`
}

// EvaluationHandler 评估接口
type EvaluationHandler struct {
	evaluator Evaluator
	processor TraceProcessor
	logger    *zap.Logger
}

// NewEvaluationHandler 创建 EvaluationHandler
func NewEvaluationHandler(e Evaluator, p TraceProcessor, logger *zap.Logger) *EvaluationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvaluationHandler{evaluator: e, processor: p, logger: logger.With(zap.String("handler", "evaluations"))}
}

// HandleEvaluate 处理 POST /api/v1/evaluations
func (h *EvaluationHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req EvaluateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Query == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "query is required"), h.logger)
		return
	}

	res, err := h.evaluator.EvaluateInteraction(r.Context(), req.Query, req.Output, req.Context, req.Gold)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, res)
}

// HandleBatch 处理 POST /api/v1/evaluations/batch：对用户的 trace 执行一次分析后批量评估
func (h *EvaluationHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req BatchEvaluateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if uid, ok := types.UserID(r.Context()); ok {
		req.UserID = uid
	}
	if req.UserID == 0 {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "user_id is required"), h.logger)
		return
	}

	userID := req.UserID
	processed, err := h.processor.ProcessTraces(r.Context(), &userID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	batch, err := h.evaluator.EvaluateMetrics(r.Context(), userID, processed.Interactions)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, BatchEvaluateResponse{Results: batch, Summary: h.evaluator.Summarize(batch)})
}

// HandleCriteria 处理 /api/v1/evaluations/criteria：GET 返回当前标准，PUT 更新单个指标
func (h *EvaluationHandler) HandleCriteria(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPut) {
		return
	}
	if r.Method == http.MethodGet {
		WriteSuccess(w, r, h.evaluator.MetricCriteria())
		return
	}

	var req CriteriaRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Metric == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "metric is required"), h.logger)
		return
	}
	if err := h.evaluator.SetMetricCriteria(req.Metric, req.Criteria); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	h.logger.Info("metric criteria updated", zap.String("metric", req.Metric))
	WriteSuccess(w, r, map[string]any{"metric": req.Metric, "enabled_metrics": h.evaluator.EnabledMetrics()})
}
