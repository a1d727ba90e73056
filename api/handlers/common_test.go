package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Priyanshiguptaaa/mvp-beta-bss/types"
)

// decodeResponse 解析统一响应，并把 data 解码到 dst（dst 可为 nil）
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, dst any) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	if dst != nil && resp.Data != nil {
		raw, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, dst))
	}
	return resp
}

func jsonRequest(method, target, body string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	r.Header.Set("Content-Type", "application/json")
	return r
}

// =============================================================================
// 🧪 响应辅助函数
// =============================================================================

func TestWriteJSON_Headers(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusAccepted, []int{1, 2, 3})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `[1,2,3]`, w.Body.String())
}

func TestWriteSuccess_CarriesRequestID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-1"))
	w := httptest.NewRecorder()

	WriteSuccess(w, r, map[string]string{"key": "value"})

	var data map[string]string
	resp := decodeResponse(t, w, &data)
	assert.True(t, resp.Success)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, "value", data["key"])
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"validation", types.NewError(types.ErrValidation, "Missing required fields: agent"), 400, "VALIDATION_FAILED", "Missing required fields: agent"},
		{"malformed trace", types.NewError(types.ErrMalformedTrace, "data is not an object"), 400, "MALFORMED_TRACE", "data is not an object"},
		{"not found", types.NewError(types.ErrNotFound, "incident not found"), 404, "NOT_FOUND", "incident not found"},
		{"in flight", types.NewError(types.ErrAnalysisInFlight, "analysis running"), 409, "ANALYSIS_IN_FLIGHT", "analysis running"},
		{"rca", types.NewError(types.ErrRCAFailed, "model down"), 502, "RCA_FAILED", "model down"},
		{"explicit status", types.NewError(types.ErrPersistenceFailed, "save").WithHTTPStatus(503), 503, "PERSISTENCE_FAILED", "save"},
		{"wrapped", errors.Join(errors.New("ctx"), types.NewError(types.ErrNotFound, "trace not found")), 404, "NOT_FOUND", "trace not found"},
		{"plain error hidden", errors.New("pq: password authentication failed"), 500, "INTERNAL_ERROR", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, httptest.NewRequest(http.MethodGet, "/", nil), tt.err, zaptest.NewLogger(t))

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w, nil)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMsg, resp.Error.Message)
		})
	}
}

// =============================================================================
// 🧪 请求解析
// =============================================================================

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"ok", `{"name":"x"}`, ""},
		{"empty", "", "request body is empty"},
		{"unknown field", `{"name":"x","extra":1}`, "invalid JSON body"},
		{"broken", `{"name":`, "invalid JSON body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			var dst payload
			err := DecodeJSONBody(w, jsonRequest(http.MethodPost, "/", tt.body), &dst, nil)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "x", dst.Name)
				return
			}
			require.Error(t, err)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := decodeResponse(t, w, nil)
			assert.Equal(t, tt.wantErr, resp.Error.Message)
		})
	}
}

func TestAllowMethods(t *testing.T) {
	w := httptest.NewRecorder()
	ok := allowMethods(w, httptest.NewRequest(http.MethodDelete, "/", nil), http.MethodGet, http.MethodPost)
	assert.False(t, ok)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, []string{"GET", "POST"}, w.Header().Values("Allow"))

	assert.True(t, allowMethods(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), http.MethodGet))
}

func TestQueryUint(t *testing.T) {
	v, err := queryUint(httptest.NewRequest(http.MethodGet, "/?user_id=7", nil), "user_id")
	require.NoError(t, err)
	assert.Equal(t, uint(7), *v)

	v, err = queryUint(httptest.NewRequest(http.MethodGet, "/", nil), "user_id")
	require.NoError(t, err)
	assert.Nil(t, v)

	for _, bad := range []string{"0", "-1", "abc"} {
		_, err = queryUint(httptest.NewRequest(http.MethodGet, "/?user_id="+bad, nil), "user_id")
		assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest), bad)
	}
}

func TestResponseWriter_CapturesFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	rw.WriteHeader(http.StatusTeapot)
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write([]byte("x"))

	assert.Equal(t, http.StatusTeapot, rw.StatusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, rec, rw.Unwrap())
}
