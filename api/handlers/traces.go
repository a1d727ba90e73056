package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/store"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// TraceStore 由 internal/store.Store 实现
type TraceStore interface {
	CreateTrace(ctx context.Context, t *store.Trace) error
	List(ctx context.Context, userID *uint) ([]types.RawTrace, error)
}

// CreateTraceRequest POST /api/v1/traces 请求体
type CreateTraceRequest struct {
	UserID   *uint           `json:"user_id,omitempty"`
	FileName string          `json:"file_name,omitempty"`
	Duration *float64        `json:"duration,omitempty"`
	Content  json.RawMessage `json:"content"`
}

// TraceHandler trace 写入与查询
type TraceHandler struct {
	store  TraceStore
	logger *zap.Logger
}

// NewTraceHandler 创建 TraceHandler
func NewTraceHandler(s TraceStore, logger *zap.Logger) *TraceHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TraceHandler{store: s, logger: logger.With(zap.String("handler", "traces"))}
}

// ServeHTTP 处理 /api/v1/traces：POST 写入，GET 按 user_id 列出
func (h *TraceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	if r.Method == http.MethodPost {
		h.create(w, r)
		return
	}

	userID, err := queryUint(r, "user_id")
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	// 认证用户只能看到自己的 trace
	if uid, ok := types.UserID(r.Context()); ok {
		userID = &uid
	}
	traces, err := h.store.List(r.Context(), userID)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, traces)
}

func (h *TraceHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateTraceRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if len(req.Content) == 0 {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "content is required"), h.logger)
		return
	}
	if uid, ok := types.UserID(r.Context()); ok {
		req.UserID = &uid
	}

	trace := &store.Trace{
		UserID:   req.UserID,
		Content:  store.JSON(req.Content),
		FileName: req.FileName,
		FileSize: len(req.Content),
		Duration: req.Duration,
	}
	if err := h.store.CreateTrace(r.Context(), trace); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteStatus(w, r, http.StatusCreated, trace)
}
