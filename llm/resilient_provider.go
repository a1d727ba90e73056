package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/llm/circuitbreaker"
	"github.com/Priyanshiguptaaa/mvp-beta-bss/llm/retry"
	"go.uber.org/zap"
)

// ResilientProvider 为 Provider 增加超时、重试与熔断。
// 调用顺序：熔断器 → 重试器 → 单次带超时的调用。
type ResilientProvider struct {
	provider Provider
	retryer  *retry.Retryer
	breaker  *circuitbreaker.CircuitBreaker
	timeout  time.Duration
	logger   *zap.Logger
}

// ResilientConfig 弹性 Provider 配置
type ResilientConfig struct {
	// Timeout 单次上游调用超时，0 表示不额外限制
	Timeout time.Duration
	// MaxRetries 可重试错误的最大重试次数
	MaxRetries int
	// RetryDelay 首次重试等待时间
	RetryDelay time.Duration
	// FailureThreshold 连续失败多少次后熔断
	FailureThreshold int
	// ResetTimeout 熔断后多久进入半开
	ResetTimeout time.Duration
}

// DefaultResilientConfig 返回默认配置
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Timeout:          2 * time.Minute,
		MaxRetries:       3,
		RetryDelay:       time.Second,
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// NewResilientProvider 包装 Provider
func NewResilientProvider(p Provider, cfg ResilientConfig, logger *zap.Logger) *ResilientProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "llm"), zap.String("provider", p.Name()))

	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	if cfg.RetryDelay > 0 {
		policy.InitialDelay = cfg.RetryDelay
	}
	policy.ShouldRetry = IsRetryable

	return &ResilientProvider{
		provider: p,
		retryer:  retry.NewBackoffRetryer(policy, logger),
		breaker: circuitbreaker.New(&circuitbreaker.Config{
			Threshold:    cfg.FailureThreshold,
			ResetTimeout: cfg.ResetTimeout,
			IsFailure:    func(err error) bool { return !IsClientError(err) },
		}, logger),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Completion 实现 Provider.Completion
func (rp *ResilientProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	timeout := rp.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := circuitbreaker.Execute(ctx, rp.breaker, func(ctx context.Context) (*ChatResponse, error) {
		return retry.DoWithResult(ctx, rp.retryer, func(ctx context.Context) (*ChatResponse, error) {
			return rp.provider.Completion(ctx, req)
		})
	})
	if err == nil {
		return resp, nil
	}

	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen), errors.Is(err, circuitbreaker.ErrTooManyCallsInHalfOpen):
		return nil, &Error{
			Code:       ErrProviderUnavailable,
			Message:    err.Error(),
			HTTPStatus: http.StatusServiceUnavailable,
			Provider:   rp.provider.Name(),
		}
	case errors.Is(err, context.DeadlineExceeded):
		return nil, &Error{
			Code:       ErrUpstreamTimeout,
			Message:    "llm call timed out after " + timeout.String(),
			HTTPStatus: http.StatusGatewayTimeout,
			Provider:   rp.provider.Name(),
		}
	}
	return nil, err
}

// HealthCheck 实现 Provider.HealthCheck
func (rp *ResilientProvider) HealthCheck(ctx context.Context) (*HealthStatus, error) {
	if rp.breaker.State() == circuitbreaker.StateOpen {
		return &HealthStatus{Healthy: false}, circuitbreaker.ErrCircuitOpen
	}
	return rp.provider.HealthCheck(ctx)
}

// Name 实现 Provider.Name
func (rp *ResilientProvider) Name() string { return rp.provider.Name() }

// BreakerState 返回熔断器状态，用于指标上报
func (rp *ResilientProvider) BreakerState() circuitbreaker.State { return rp.breaker.State() }
