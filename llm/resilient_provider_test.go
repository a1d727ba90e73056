package llm

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type stubProvider struct {
	calls atomic.Int32
	fn    func(ctx context.Context, n int32) (*ChatResponse, error)
}

func (s *stubProvider) Completion(ctx context.Context, _ *ChatRequest) (*ChatResponse, error) {
	return s.fn(ctx, s.calls.Add(1))
}

func (s *stubProvider) HealthCheck(context.Context) (*HealthStatus, error) {
	return &HealthStatus{Healthy: true}, nil
}

func (s *stubProvider) Name() string { return "stub" }

func okResponse(content string) *ChatResponse {
	return &ChatResponse{Choices: []ChatChoice{{Message: Message{Role: RoleAssistant, Content: content}}}}
}

func testConfig() ResilientConfig {
	return ResilientConfig{
		Timeout:          time.Second,
		MaxRetries:       2,
		RetryDelay:       time.Millisecond,
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	}
}

func TestResilientProvider_RetriesRetryableErrors(t *testing.T) {
	stub := &stubProvider{fn: func(_ context.Context, n int32) (*ChatResponse, error) {
		if n < 3 {
			return nil, &Error{Code: ErrRateLimited, Retryable: true, HTTPStatus: http.StatusTooManyRequests}
		}
		return okResponse(`{"summary":"ok"}`), nil
	}}
	rp := NewResilientProvider(stub, testConfig(), zaptest.NewLogger(t))

	resp, err := rp.Completion(context.Background(), &ChatRequest{})
	require.NoError(t, err)
	content, err := FirstContent(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, content)
	assert.EqualValues(t, 3, stub.calls.Load())
}

func TestResilientProvider_DoesNotRetryClientErrors(t *testing.T) {
	stub := &stubProvider{fn: func(context.Context, int32) (*ChatResponse, error) {
		return nil, &Error{Code: ErrUnauthorized, Message: "bad key", HTTPStatus: http.StatusUnauthorized}
	}}
	rp := NewResilientProvider(stub, testConfig(), nil)

	for i := 0; i < 3; i++ {
		_, err := rp.Completion(context.Background(), &ChatRequest{})
		require.Error(t, err)
		assert.False(t, IsRetryable(err))
	}
	assert.EqualValues(t, 3, stub.calls.Load())
	// 客户端错误不会触发熔断
	_, err := rp.HealthCheck(context.Background())
	assert.NoError(t, err)
}

func TestResilientProvider_OpensCircuit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	stub := &stubProvider{fn: func(context.Context, int32) (*ChatResponse, error) {
		return nil, &Error{Code: ErrUpstreamError, Retryable: true, HTTPStatus: http.StatusBadGateway}
	}}
	rp := NewResilientProvider(stub, cfg, nil)

	for i := 0; i < 2; i++ {
		_, err := rp.Completion(context.Background(), &ChatRequest{})
		require.Error(t, err)
	}

	_, err := rp.Completion(context.Background(), &ChatRequest{})
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrProviderUnavailable, llmErr.Code)
	assert.EqualValues(t, 2, stub.calls.Load())

	_, err = rp.HealthCheck(context.Background())
	assert.Error(t, err)
}

func TestResilientProvider_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 0
	stub := &stubProvider{fn: func(ctx context.Context, _ int32) (*ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	rp := NewResilientProvider(stub, cfg, nil)

	_, err := rp.Completion(context.Background(), &ChatRequest{Timeout: 20 * time.Millisecond})
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrUpstreamTimeout, llmErr.Code)
}

func TestFirstContent(t *testing.T) {
	_, err := FirstContent(nil)
	assert.Error(t, err)

	_, err = FirstContent(&ChatResponse{Provider: "stub"})
	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, ErrEmptyResponse, llmErr.Code)
	assert.Contains(t, llmErr.Error(), "[stub]")
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(&Error{Code: ErrInvalidRequest}))
	assert.False(t, IsClientError(&Error{Code: ErrUpstreamError}))
	assert.False(t, IsClientError(assert.AnError))
}
