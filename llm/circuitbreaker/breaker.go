// Package circuitbreaker 为上游 LLM 调用提供熔断保护。
//
// 连续失败达到阈值后进入 Open 状态直接拒绝调用，ResetTimeout 之后
// 进入 HalfOpen 放行少量试探请求，试探成功则恢复 Closed。
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// 错误定义
var (
	ErrCircuitOpen            = errors.New("circuit breaker is open")
	ErrTooManyCallsInHalfOpen = errors.New("too many calls in half-open state")
)

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int

	// ResetTimeout 熔断恢复等待时间（Open -> HalfOpen）
	ResetTimeout time.Duration

	// HalfOpenMaxCalls 半开状态下允许的并发试探数
	HalfOpenMaxCalls int

	// IsFailure 判断错误是否计入失败，nil 时所有非 nil 错误都计入
	IsFailure func(error) bool

	// OnStateChange 状态变更回调（同步调用，持锁期间不会执行）
	OnStateChange func(from, to State)

	// now 便于测试替换时钟
	now func() time.Time
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Threshold:        5,
		ResetTimeout:     30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// CircuitBreaker 熔断器
type CircuitBreaker struct {
	config *Config
	logger *zap.Logger

	mu               sync.Mutex
	state            State
	failureCount     int
	openedAt         time.Time
	halfOpenInFlight int
}

// New 创建熔断器
func New(config *Config, logger *zap.Logger) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 1
	}
	if config.now == nil {
		config.now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		config: config,
		logger: logger.With(zap.String("component", "circuit_breaker")),
		state:  StateClosed,
	}
}

// Call 在熔断保护下执行 fn
func (b *CircuitBreaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	transition, err := b.beforeCall()
	b.notify(transition)
	if err != nil {
		return err
	}

	callErr := fn(ctx)

	failed := callErr != nil
	if failed && b.config.IsFailure != nil {
		failed = b.config.IsFailure(callErr)
	}
	b.notify(b.afterCall(failed))
	return callErr
}

// Execute 是 Call 的泛型版本，返回 fn 的结果
func Execute[T any](ctx context.Context, b *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := b.Call(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

type stateChange struct {
	from, to State
	changed  bool
}

func (b *CircuitBreaker) beforeCall() (stateChange, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.config.now().Sub(b.openedAt) < b.config.ResetTimeout {
			return stateChange{}, ErrCircuitOpen
		}
		change := b.setState(StateHalfOpen)
		b.halfOpenInFlight = 1
		return change, nil
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.config.HalfOpenMaxCalls {
			return stateChange{}, ErrTooManyCallsInHalfOpen
		}
		b.halfOpenInFlight++
	}
	return stateChange{}, nil
}

func (b *CircuitBreaker) afterCall(failed bool) stateChange {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	if !failed {
		b.failureCount = 0
		if b.state == StateHalfOpen {
			return b.setState(StateClosed)
		}
		return stateChange{}
	}

	b.failureCount++
	switch b.state {
	case StateClosed:
		if b.failureCount >= b.config.Threshold {
			b.openedAt = b.config.now()
			b.logger.Warn("circuit opened",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.config.Threshold),
			)
			return b.setState(StateOpen)
		}
	case StateHalfOpen:
		b.openedAt = b.config.now()
		b.logger.Warn("half-open probe failed, reopening circuit")
		return b.setState(StateOpen)
	}
	return stateChange{}
}

// setState 必须持锁调用
func (b *CircuitBreaker) setState(to State) stateChange {
	from := b.state
	b.state = to
	if to == StateClosed {
		b.halfOpenInFlight = 0
	}
	return stateChange{from: from, to: to, changed: from != to}
}

func (b *CircuitBreaker) notify(c stateChange) {
	if !c.changed {
		return
	}
	b.logger.Info("circuit state changed",
		zap.String("from", c.from.String()),
		zap.String("to", c.to.String()),
	)
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(c.from, c.to)
	}
}

// State 返回当前状态
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 手动恢复到 Closed
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	change := b.setState(StateClosed)
	b.failureCount = 0
	b.mu.Unlock()
	b.notify(change)
}
