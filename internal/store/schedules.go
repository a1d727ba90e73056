package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// CreateSchedule 保存定时测试，日期与时间必须符合 ScheduleDateLayout / ScheduleTimeLayout
func (s *Store) CreateSchedule(ctx context.Context, sch *TestSchedule) error {
	if sch.TestName == "" {
		return fmt.Errorf("schedule test_name is required")
	}
	if _, err := sch.RunAt(); err != nil {
		return fmt.Errorf("invalid schedule date/time: %w", err)
	}
	if err := s.db(ctx).Create(sch).Error; err != nil {
		return persistenceError("create schedule", err)
	}
	return nil
}

// ListSchedules 按计划时间升序列出全部定时测试
func (s *Store) ListSchedules(ctx context.Context) ([]TestSchedule, error) {
	var out []TestSchedule
	if err := s.db(ctx).Order("run_date ASC").Order("run_time ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return out, nil
}

// DueSchedules 返回计划时间不晚于 now 且尚未执行的定时测试。
// 日期与时间以零填充字符串保存，按字典序比较即按时间比较。
func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]TestSchedule, error) {
	now = now.UTC()
	date := now.Format(ScheduleDateLayout)
	clock := now.Format(ScheduleTimeLayout)

	var out []TestSchedule
	err := s.db(ctx).
		Where("last_run_at IS NULL").
		Where("(run_date < ? OR (run_date = ? AND run_time <= ?))", date, date, clock).
		Order("run_date ASC").Order("run_time ASC").Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return out, nil
}

// MarkScheduleRun 记录定时测试的执行时间。已被其他实例标记时返回 false
func (s *Store) MarkScheduleRun(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := s.db(ctx).Model(&TestSchedule{}).
		Where("id = ? AND last_run_at IS NULL", id).
		Update("last_run_at", at.UTC())
	if res.Error != nil {
		return false, fmt.Errorf("mark schedule %d: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// DeleteSchedule 删除定时测试
func (s *Store) DeleteSchedule(ctx context.Context, id uint) error {
	res := s.db(ctx).Delete(&TestSchedule{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "schedule")
	}
	return nil
}
