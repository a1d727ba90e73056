package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/execution"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/store"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// maxBatchTests 单次批量执行的测试数上限
const maxBatchTests = 100

// TestRunner 由 execution.Agent 实现
type TestRunner interface {
	ExecuteTest(ctx context.Context, cfg execution.TestConfig) execution.TestOutcome
	ExecuteBatch(ctx context.Context, configs []execution.TestConfig) []execution.BatchItem
}

// ScheduleStore 由 internal/store.Store 实现
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, sch *store.TestSchedule) error
	ListSchedules(ctx context.Context) ([]store.TestSchedule, error)
	DeleteSchedule(ctx context.Context, id uint) error
}

// BatchTestRequest POST /api/v1/tests/batch 请求体
type BatchTestRequest struct {
	Tests []execution.TestConfig `json:"tests"`
}

// ScheduleRequest POST /api/v1/tests/schedules 请求体，date/time 为 UTC
type ScheduleRequest struct {
	Date        string               `json:"date"`
	Time        string               `json:"time"`
	Description string               `json:"description,omitempty"`
	Tags        []string             `json:"tags,omitempty"`
	Config      execution.TestConfig `json:"config"`
}

// ScheduleView 对外展示的定时测试
type ScheduleView struct {
	store.TestSchedule
	Tags []string `json:"tags"`
}

// TestHandler 测试执行与定时测试
type TestHandler struct {
	runner    TestRunner
	schedules ScheduleStore
	logger    *zap.Logger
}

// NewTestHandler 创建 TestHandler。schedules 为 nil 时定时测试接口返回 503
func NewTestHandler(runner TestRunner, schedules ScheduleStore, logger *zap.Logger) *TestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TestHandler{runner: runner, schedules: schedules, logger: logger.With(zap.String("handler", "tests"))}
}

// HandleExecute 处理 POST /api/v1/tests/execute
func (h *TestHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var cfg execution.TestConfig
	if err := DecodeJSONBody(w, r, &cfg, h.logger); err != nil {
		return
	}
	if err := cfg.Validate(); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	h.scope(r.Context(), &cfg)

	out := h.runner.ExecuteTest(r.Context(), cfg)
	if out.Status == execution.StatusError {
		h.logger.Warn("test execution failed", zap.String("test", cfg.TestName), zap.String("error", out.Error))
	}
	WriteSuccess(w, r, out)
}

// HandleBatch 处理 POST /api/v1/tests/batch，结果顺序与请求一致
func (h *TestHandler) HandleBatch(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req BatchTestRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	switch {
	case len(req.Tests) == 0:
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "tests must not be empty"), h.logger)
		return
	case len(req.Tests) > maxBatchTests:
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "too many tests in one batch"), h.logger)
		return
	}
	for i := range req.Tests {
		h.scope(r.Context(), &req.Tests[i])
	}
	WriteSuccess(w, r, h.runner.ExecuteBatch(r.Context(), req.Tests))
}

// HandleSchedules 处理 /api/v1/tests/schedules：GET 列出，POST 创建，DELETE ?id= 删除
func (h *TestHandler) HandleSchedules(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost, http.MethodDelete) {
		return
	}
	if h.schedules == nil {
		WriteError(w, r, types.NewError(types.ErrServiceUnavailable, "scheduled tests are disabled"), h.logger)
		return
	}

	switch r.Method {
	case http.MethodGet:
		list, err := h.schedules.ListSchedules(r.Context())
		if err != nil {
			WriteError(w, r, err, h.logger)
			return
		}
		views := make([]ScheduleView, len(list))
		for i, s := range list {
			views[i] = ScheduleView{TestSchedule: s, Tags: s.TagList()}
		}
		WriteSuccess(w, r, views)

	case http.MethodPost:
		h.createSchedule(w, r)

	case http.MethodDelete:
		id, err := queryUint(r, "id")
		if err == nil && id == nil {
			err = types.NewError(types.ErrInvalidRequest, "id is required")
		}
		if err != nil {
			WriteError(w, r, err, h.logger)
			return
		}
		if err := h.schedules.DeleteSchedule(r.Context(), *id); err != nil {
			WriteError(w, r, err, h.logger)
			return
		}
		WriteSuccess(w, r, map[string]uint{"deleted": *id})
	}
}

func (h *TestHandler) createSchedule(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := req.Config.Validate(); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if _, err := time.Parse(store.ScheduleDateLayout+" "+store.ScheduleTimeLayout, req.Date+" "+req.Time); err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "date must be YYYY-MM-DD and time HH:MM"), h.logger)
		return
	}
	h.scope(r.Context(), &req.Config)

	raw, err := store.NewJSON(req.Config)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	sch := &store.TestSchedule{
		Date:        req.Date,
		Time:        req.Time,
		TestName:    strings.TrimSpace(req.Config.TestName),
		Description: req.Description,
		Config:      raw,
	}
	sch.SetTags(req.Tags)
	if err := h.schedules.CreateSchedule(r.Context(), sch); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteStatus(w, r, http.StatusCreated, ScheduleView{TestSchedule: *sch, Tags: sch.TagList()})
}

// scope 认证用户的测试只分析自己的 trace
func (h *TestHandler) scope(ctx context.Context, cfg *execution.TestConfig) {
	if uid, ok := types.UserID(ctx); ok {
		cfg.UserID = &uid
	}
}
