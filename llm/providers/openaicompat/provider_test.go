package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		ProviderName: "test",
		APIKey:       "sk-test",
		BaseURL:      srv.URL,
		DefaultModel: "gpt-4",
	}, zaptest.NewLogger(t)).WithHTTPClient(srv.Client())
}

func TestNew_Defaults(t *testing.T) {
	p := New(Config{}, nil)
	assert.Equal(t, "openai", p.Name())
	assert.Equal(t, "/v1/chat/completions", p.cfg.EndpointPath)
	assert.Equal(t, "/v1/models", p.cfg.ModelsEndpoint)
	assert.NotNil(t, p.client)
}

func TestCompletion_Success(t *testing.T) {
	var got chatRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1", "model": "gpt-4", "created": 1700000000,
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"summary\":\"x\"}"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	})

	resp, err := p.Completion(context.Background(), &llm.ChatRequest{
		Messages:       []llm.Message{{Role: llm.RoleUser, Content: "analyze"}},
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4", got.Model)
	assert.Zero(t, got.Temperature)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)

	content, err := llm.FirstContent(resp)
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"x"}`, content)
	assert.Equal(t, "test", resp.Provider)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, int64(1700000000), resp.CreatedAt.Unix())
}

func TestCompletion_ErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		code      llm.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, `{"error":{"message":"bad key"}}`, llm.ErrUnauthorized, false},
		{http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, llm.ErrRateLimited, true},
		{http.StatusBadRequest, `{"error":{"message":"insufficient quota"}}`, llm.ErrQuotaExceeded, false},
		{http.StatusBadRequest, `{"error":{"message":"bad field"}}`, llm.ErrInvalidRequest, false},
		{http.StatusInternalServerError, `oops`, llm.ErrUpstreamError, true},
		{http.StatusGatewayTimeout, ``, llm.ErrUpstreamTimeout, true},
		{529, `overloaded`, llm.ErrModelOverloaded, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status)+"/"+string(tt.code), func(t *testing.T) {
			p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := p.Completion(context.Background(), &llm.ChatRequest{})
			var llmErr *llm.Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.code, llmErr.Code)
			assert.Equal(t, tt.retryable, llmErr.Retryable)
			assert.Equal(t, tt.status, llmErr.HTTPStatus)
		})
	}
}

func TestCompletion_RequiresModel(t *testing.T) {
	p := New(Config{BaseURL: "http://127.0.0.1:0"}, nil)
	_, err := p.Completion(context.Background(), &llm.ChatRequest{})
	assert.True(t, llm.IsClientError(err))
}

func TestCompletion_BadJSONIsRetryable(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	_, err := p.Completion(context.Background(), &llm.ChatRequest{})
	assert.True(t, llm.IsRetryable(err))
}

func TestHealthCheck(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"data":[]}`))
	})
	status, err := p.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)

	down := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	status, err = down.HealthCheck(context.Background())
	require.Error(t, err)
	assert.False(t, status.Healthy)
}
