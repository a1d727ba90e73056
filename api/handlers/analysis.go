package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/ingestion"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/rca"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// TraceProcessor 由 ingestion.Agent 实现
type TraceProcessor interface {
	ProcessTraces(ctx context.Context, userID *uint) (*ingestion.ProcessedData, error)
}

// RootCauseAnalyzer 由 rca.Analyzer 实现
type RootCauseAnalyzer interface {
	Analyze(ctx context.Context, payload any) rca.Result
}

// AnalysisRequest POST /api/v1/analysis 请求体
type AnalysisRequest struct {
	UserID *uint `json:"user_id,omitempty"`
}

// RCARequest POST /api/v1/analysis/rca 请求体。
// Payload 为空时先对 user_id 执行一次分析，再用压缩后的数据做 RCA。
type RCARequest struct {
	UserID  *uint           `json:"user_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AnalysisHandler 数据压缩、信号检测与根因分析
type AnalysisHandler struct {
	processor TraceProcessor
	analyzer  RootCauseAnalyzer
	hub       *SignalHub
	logger    *zap.Logger
}

// NewAnalysisHandler 创建 AnalysisHandler。hub 为 nil 时不广播信号
func NewAnalysisHandler(p TraceProcessor, a RootCauseAnalyzer, hub *SignalHub, logger *zap.Logger) *AnalysisHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisHandler{processor: p, analyzer: a, hub: hub, logger: logger.With(zap.String("handler", "analysis"))}
}

// HandleAnalyze 处理 POST /api/v1/analysis
func (h *AnalysisHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req AnalysisRequest
	if r.ContentLength != 0 {
		if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
			return
		}
	}

	processed, err := h.process(r.Context(), scopedUser(r.Context(), req.UserID))
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, processed)
}

// HandleRCA 处理 POST /api/v1/analysis/rca
func (h *AnalysisHandler) HandleRCA(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req RCARequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	var payload any = req.Payload
	if len(req.Payload) == 0 || string(req.Payload) == "null" {
		processed, err := h.process(r.Context(), scopedUser(r.Context(), req.UserID))
		if err != nil {
			WriteError(w, r, err, h.logger)
			return
		}
		payload = ingestion.BuildAnalysisPayload(processed)
	}

	res := h.analyzer.Analyze(r.Context(), payload)
	if !res.OK() {
		msg := res.Error
		if msg == "" {
			msg = "RCA agent did not return a report"
		}
		WriteError(w, r, types.NewError(types.ErrRCAFailed, msg), h.logger)
		return
	}
	WriteSuccess(w, r, res)
}

func (h *AnalysisHandler) process(ctx context.Context, userID *uint) (*ingestion.ProcessedData, error) {
	processed, err := h.processor.ProcessTraces(ctx, userID)
	if err != nil {
		return nil, err
	}
	if h.hub != nil {
		h.hub.Publish(SignalEvent{UserID: userID, Timestamp: time.Now().UTC(), Signals: processed.AISignals})
	}
	return processed, nil
}

// scopedUser 认证用户只能分析自己的数据
func scopedUser(ctx context.Context, requested *uint) *uint {
	if uid, ok := types.UserID(ctx); ok {
		return &uid
	}
	return requested
}
