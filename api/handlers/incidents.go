package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/store"
)

// IncidentStore 由 internal/store.Store 实现
type IncidentStore interface {
	ListIncidents(ctx context.Context, f store.IncidentFilter) ([]store.Incident, error)
	GetIncident(ctx context.Context, id uint) (*store.Incident, error)
	ListRCADetails(ctx context.Context, incidentID uint) ([]store.RCADetail, error)
}

// IncidentDetail 单个事故及其 RCA 明细
type IncidentDetail struct {
	*store.Incident
	RCADetails []store.RCADetail `json:"rca_details"`
}

// IncidentHandler 事故查询
type IncidentHandler struct {
	store  IncidentStore
	logger *zap.Logger
}

// NewIncidentHandler 创建 IncidentHandler
func NewIncidentHandler(s IncidentStore, logger *zap.Logger) *IncidentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IncidentHandler{store: s, logger: logger.With(zap.String("handler", "incidents"))}
}

// ServeHTTP 处理 GET /api/v1/incidents。带 ?id= 时返回单个事故，
// 否则按 status、severity、agent、limit 过滤列表
func (h *IncidentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	id, err := queryUint(r, "id")
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	if id != nil {
		h.get(w, r, *id)
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	q := r.URL.Query()
	list, err := h.store.ListIncidents(r.Context(), store.IncidentFilter{
		Status:   q.Get("status"),
		Severity: q.Get("severity"),
		Agent:    q.Get("agent"),
		Limit:    limit,
	})
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, list)
}

func (h *IncidentHandler) get(w http.ResponseWriter, r *http.Request, id uint) {
	incident, err := h.store.GetIncident(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	details, err := h.store.ListRCADetails(r.Context(), id)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, IncidentDetail{Incident: incident, RCADetails: details})
}
