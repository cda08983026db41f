package httpclient

import (
	"net/http"
	"testing"
	"time"
)

func TestParseOpenAIHeaders(t *testing.T) {
	tests := []struct {
		name    string
		headers http.Header
		want    RateLimitInfo
	}{
		{
			name:    "empty_headers",
			headers: http.Header{},
			want:    RateLimitInfo{},
		},
		{
			name: "retry_after",
			headers: http.Header{
				"Retry-After": []string{"30"},
			},
			want: RateLimitInfo{RetryAfter: 30 * time.Second},
		},
		{
			name: "remaining_counters",
			headers: http.Header{
				"X-Ratelimit-Remaining-Requests": []string{"42"},
				"X-Ratelimit-Remaining-Tokens":   []string{"90000"},
			},
			want: RateLimitInfo{RequestsRemaining: 42, TokensRemaining: 90000},
		},
		{
			name: "reset_tokens_takes_priority",
			headers: http.Header{
				"X-Ratelimit-Reset-Tokens":   []string{"1700000000"},
				"X-Ratelimit-Reset-Requests": []string{"1800000000"},
			},
			want: RateLimitInfo{ResetTime: 1700000000},
		},
		{
			name: "malformed_values_ignored",
			headers: http.Header{
				"Retry-After":                    []string{"soon"},
				"X-Ratelimit-Remaining-Requests": []string{"many"},
			},
			want: RateLimitInfo{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseOpenAIHeaders(tt.headers)
			if got != tt.want {
				t.Errorf("ParseOpenAIHeaders() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseGoogleHeaders(t *testing.T) {
	headers := http.Header{"Retry-After": []string{"12"}}
	got := ParseGoogleHeaders(headers)
	if got.RetryAfter != 12*time.Second {
		t.Errorf("ParseGoogleHeaders().RetryAfter = %v, want 12s", got.RetryAfter)
	}

	if got := ParseGoogleHeaders(http.Header{}); got != (RateLimitInfo{}) {
		t.Errorf("ParseGoogleHeaders(empty) = %+v, want zero", got)
	}
}
