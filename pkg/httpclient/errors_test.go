package httpclient

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryableError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *RetryableError
		want string
	}{
		{
			name: "with_retry_after",
			err: &RetryableError{
				StatusCode: 429,
				Message:    "rate limited",
				RetryAfter: 5 * time.Second,
			},
			want: "HTTP 429: rate limited (retry after 5s)",
		},
		{
			name: "without_retry_after",
			err: &RetryableError{
				StatusCode: 503,
				Message:    "service unavailable",
			},
			want: "HTTP 503: service unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryableError_Unwrap(t *testing.T) {
	inner := errors.New("connection reset")
	err := &RetryableError{StatusCode: 502, Message: "bad gateway", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is did not reach the wrapped error")
	}
}

func TestIsRetryable(t *testing.T) {
	re := &RetryableError{StatusCode: 429, Message: "rate limited"}
	wrapped := fmt.Errorf("provider call failed: %w", re)

	if !IsRetryable(wrapped) {
		t.Error("IsRetryable(wrapped RetryableError) = false, want true")
	}
	if IsRetryable(errors.New("plain error")) {
		t.Error("IsRetryable(plain error) = true, want false")
	}
	if IsRetryable(nil) {
		t.Error("IsRetryable(nil) = true, want false")
	}
}
