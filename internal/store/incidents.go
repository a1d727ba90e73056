package store

import (
	"context"
	"fmt"
)

const defaultListLimit = 100

// IncidentFilter 事故列表过滤条件，零值表示不过滤
type IncidentFilter struct {
	Status   string
	Severity string
	Agent    string
	Limit    int
}

// ListIncidents 按创建时间倒序列出事故
func (s *Store) ListIncidents(ctx context.Context, f IncidentFilter) ([]Incident, error) {
	q := s.db(ctx).Order("created_at DESC").Order("id DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", f.Severity)
	}
	if f.Agent != "" {
		q = q.Where("agent = ?", f.Agent)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var out []Incident
	if err := q.Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return out, nil
}

// GetIncident 读取事故及其关联的测试结果
func (s *Store) GetIncident(ctx context.Context, id uint) (*Incident, error) {
	var in Incident
	if err := s.db(ctx).Preload("TestResult").First(&in, id).Error; err != nil {
		return nil, notFound(err, "incident")
	}
	return &in, nil
}

// ListRCADetails 列出事故的 RCA 明细
func (s *Store) ListRCADetails(ctx context.Context, incidentID uint) ([]RCADetail, error) {
	var out []RCADetail
	if err := s.db(ctx).Where("incident_id = ?", incidentID).Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list rca details: %w", err)
	}
	return out, nil
}

// ListTestResults 按创建时间倒序列出测试结果，testName 为空时不过滤
func (s *Store) ListTestResults(ctx context.Context, testName string, limit int) ([]TestResult, error) {
	q := s.db(ctx).Order("created_at DESC").Order("id DESC")
	if testName != "" {
		q = q.Where("test_name = ?", testName)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	var out []TestResult
	if err := q.Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list test results: %w", err)
	}
	return out, nil
}
