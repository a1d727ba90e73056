package store

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/internal/database"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// defaultTxRetries 瞬时错误（死锁、序列化失败）时整个事务的最大尝试次数
const defaultTxRetries = 3

// Store 是基于 GORM 的持久化入口
type Store struct {
	pool    *database.PoolManager
	retries int
	logger  *zap.Logger
}

// Option 配置 Store
type Option func(*Store)

// WithTxRetries 设置事务最大尝试次数
func WithTxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retries = n
		}
	}
}

// New 创建 Store
func New(pool *database.PoolManager, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		pool:    pool,
		retries: defaultTxRetries,
		logger:  logger.With(zap.String("component", "store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AutoMigrate 按模型建表，用于 sqlite 开发环境与测试
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.db(ctx).AutoMigrate(Models()...)
}

// Ping 检查数据库连接
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) db(ctx context.Context) *gorm.DB {
	return s.pool.DB().WithContext(ctx)
}

// Tx 是事务内的写操作集合
type Tx struct {
	db *gorm.DB
}

// InTx 在一个事务中执行 fn，fn 返回错误时整体回滚
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	return s.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		return fn(&Tx{db: tx})
	})
}

// SaveTestResult 写入测试结果并回填 ID
func (t *Tx) SaveTestResult(r *TestResult) error {
	return t.db.Create(r).Error
}

// CreateIncident 写入事故并回填 ID
func (t *Tx) CreateIncident(in *Incident) error {
	return t.db.Create(in).Error
}

// CreateRCADetail 写入 RCA 明细
func (t *Tx) CreateRCADetail(d *RCADetail) error {
	return t.db.Create(d).Error
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NewError(types.ErrNotFound, what+" not found").WithHTTPStatus(404)
	}
	return err
}

func persistenceError(msg string, err error) error {
	return types.NewError(types.ErrPersistenceFailed, msg).
		WithCause(err).
		WithHTTPStatus(500).
		WithRetryable(true)
}
