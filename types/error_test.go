package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrPersistenceFailed, "commit failed").
		WithCause(root).
		WithHTTPStatus(500).
		WithRetryable(true)

	if GetErrorCode(err) != ErrPersistenceFailed {
		t.Fatalf("expected code %s, got %s", ErrPersistenceFailed, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestIsErrorCode_Wrapped(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("decode trace 7: %w", NewError(ErrMalformedTrace, "data is not an object"))

	if !IsErrorCode(wrapped, ErrMalformedTrace) {
		t.Fatalf("expected wrapped error to carry %s", ErrMalformedTrace)
	}
	if IsErrorCode(wrapped, ErrUnknownTraceType) {
		t.Fatalf("unexpected code match")
	}
	if IsErrorCode(errors.New("plain"), ErrMalformedTrace) {
		t.Fatalf("plain errors carry no code")
	}
}
