package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/agent/evaluation"
)

// 评估结果写入 trace 注解时使用的键
const (
	AnnotationEvaluation  = "evaluation"
	AnnotationEvaluatedAt = "evaluated_at"

	// EvaluationSummaryMetric 是批量评估汇总在 metric_summaries 中的名称
	EvaluationSummaryMetric = "evaluation_summary"
)

// SaveBatch 在一个事务中写入每条交互的评估注解与批次汇总。
// 任一写入失败时整体回滚，瞬时错误按事务整体重试。
func (s *Store) SaveBatch(ctx context.Context, userID uint, batch *evaluation.BatchResult) error {
	if batch == nil {
		return nil
	}
	err := s.pool.WithTransactionRetry(ctx, s.retries, func(tx *gorm.DB) error {
		for _, ie := range batch.Interactions {
			annotation := map[string]any{
				AnnotationEvaluation:  ie.Evaluation,
				AnnotationEvaluatedAt: ie.Timestamp,
			}
			if err := annotate(tx, ie.TraceID, annotation); err != nil {
				return fmt.Errorf("annotate trace %d: %w", ie.TraceID, err)
			}
		}
		return saveMetricSummary(tx, userID, EvaluationSummaryMetric, batch.Summary)
	})
	if err != nil {
		return persistenceError("save evaluation batch", err)
	}
	s.logger.Debug("evaluation batch saved",
		zap.Uint("user_id", userID),
		zap.Int("interactions", len(batch.Interactions)))
	return nil
}

// SaveMetricSummary 按 (user_id, name) 写入或更新指标汇总
func (s *Store) SaveMetricSummary(ctx context.Context, userID uint, name string, config any) error {
	err := s.pool.WithTransactionRetry(ctx, s.retries, func(tx *gorm.DB) error {
		return saveMetricSummary(tx, userID, name, config)
	})
	if err != nil {
		return persistenceError("save metric summary", err)
	}
	return nil
}

func saveMetricSummary(tx *gorm.DB, userID uint, name string, config any) error {
	encoded, err := NewJSON(config)
	if err != nil {
		return fmt.Errorf("encode metric summary %q: %w", name, err)
	}
	row := MetricSummary{UserID: userID, Name: name, Config: encoded}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"config", "updated_at"}),
	}).Create(&row).Error
}

// GetMetricSummary 读取指标汇总
func (s *Store) GetMetricSummary(ctx context.Context, userID uint, name string) (*MetricSummary, error) {
	var m MetricSummary
	err := s.db(ctx).Where("user_id = ? AND name = ?", userID, name).First(&m).Error
	if err != nil {
		return nil, notFound(err, "metric summary "+name)
	}
	return &m, nil
}
