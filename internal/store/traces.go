package store

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// CreateTrace 保存一条新 trace。content 必须能通过 types.DecodeTraceContent 校验
func (s *Store) CreateTrace(ctx context.Context, t *Trace) error {
	if _, err := types.DecodeTraceContent(json.RawMessage(t.Content)); err != nil {
		return err
	}
	if t.Status == "" {
		t.Status = TraceStatusPending
	}
	if err := s.db(ctx).Create(t).Error; err != nil {
		return persistenceError("create trace", err)
	}
	return nil
}

// List 按创建时间升序返回 userID 的 trace，userID 为 nil 时返回全部
func (s *Store) List(ctx context.Context, userID *uint) ([]types.RawTrace, error) {
	var rows []Trace
	q := s.db(ctx).Order("created_at ASC").Order("id ASC")
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	out := make([]types.RawTrace, len(rows))
	for i, r := range rows {
		out[i] = r.Raw()
	}
	return out, nil
}

// GetTrace 按 ID 读取 trace
func (s *Store) GetTrace(ctx context.Context, id uint) (*Trace, error) {
	var t Trace
	if err := s.db(ctx).First(&t, id).Error; err != nil {
		return nil, notFound(err, "trace")
	}
	return &t, nil
}

// Annotate 把 results 合并进 trace 的 analysis_results，同名键覆盖
func (s *Store) Annotate(ctx context.Context, traceID uint, results map[string]any) error {
	return s.pool.WithTransactionRetry(ctx, s.retries, func(tx *gorm.DB) error {
		return annotate(tx, traceID, results)
	})
}

func annotate(tx *gorm.DB, traceID uint, results map[string]any) error {
	var t Trace
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id", "analysis_results").
		First(&t, traceID).Error
	if err != nil {
		return notFound(err, fmt.Sprintf("trace %d", traceID))
	}

	merged := make(map[string]any, len(results))
	if err := t.AnalysisResults.Decode(&merged); err != nil {
		return fmt.Errorf("decode analysis results of trace %d: %w", traceID, err)
	}
	for k, v := range results {
		merged[k] = v
	}
	encoded, err := NewJSON(merged)
	if err != nil {
		return fmt.Errorf("encode analysis results: %w", err)
	}
	return tx.Model(&Trace{}).Where("id = ?", traceID).Update("analysis_results", encoded).Error
}

// SetTraceStatus 更新 trace 的处理状态
func (s *Store) SetTraceStatus(ctx context.Context, traceID uint, status string) error {
	res := s.db(ctx).Model(&Trace{}).Where("id = ?", traceID).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, fmt.Sprintf("trace %d", traceID))
	}
	return nil
}
