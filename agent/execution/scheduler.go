package execution

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/config"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/store"
)

// ScheduleStore lists and claims scheduled tests.
type ScheduleStore interface {
	DueSchedules(ctx context.Context, now time.Time) ([]store.TestSchedule, error)
	MarkScheduleRun(ctx context.Context, id uint, at time.Time) (bool, error)
}

// BatchRunner executes a batch of tests.
type BatchRunner interface {
	ExecuteBatch(ctx context.Context, configs []TestConfig) []BatchItem
}

// Scheduler polls for due schedules and runs them once each.
// A schedule is claimed before it runs, so several instances may poll
// the same database.
type Scheduler struct {
	store    ScheduleStore
	runner   BatchRunner
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewScheduler creates a scheduler polling every cfg.PollInterval.
func NewScheduler(cfg config.SchedulerConfig, st ScheduleStore, runner BatchRunner, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		store:    st,
		runner:   runner,
		interval: interval,
		now:      time.Now,
		logger:   logger.With(zap.String("component", "test_scheduler")),
	}
}

// Run polls until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunDue(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("scheduled run failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunDue claims every due schedule and executes the claimed ones as one batch.
func (s *Scheduler) RunDue(ctx context.Context) ([]BatchItem, error) {
	now := s.now().UTC()
	due, err := s.store.DueSchedules(ctx, now)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, nil
	}

	configs := make([]TestConfig, 0, len(due))
	for _, sch := range due {
		claimed, err := s.store.MarkScheduleRun(ctx, sch.ID, now)
		if err != nil {
			return nil, err
		}
		if !claimed {
			s.logger.Debug("schedule already claimed", zap.Uint("schedule_id", sch.ID))
			continue
		}
		cfg, err := decodeScheduleConfig(sch)
		if err != nil {
			// Still run it; validation reports the missing fields.
			s.logger.Warn("bad schedule config", zap.Uint("schedule_id", sch.ID), zap.Error(err))
		}
		configs = append(configs, cfg)
	}
	if len(configs) == 0 {
		return nil, nil
	}

	s.logger.Info("running scheduled tests", zap.Int("count", len(configs)))
	items := s.runner.ExecuteBatch(ctx, configs)
	for _, item := range items {
		s.logger.Info("scheduled test finished",
			zap.String("test", item.TestName),
			zap.String("status", item.Result.Status))
	}
	return items, nil
}

func decodeScheduleConfig(sch store.TestSchedule) (TestConfig, error) {
	var cfg TestConfig
	err := sch.Config.Decode(&cfg)
	if cfg.TestName == "" {
		cfg.TestName = sch.TestName
	}
	return cfg, err
}
