package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/repochat/pkg/llms"
	"github.com/kadirpekel/repochat/pkg/repo"
)

func TestClassifyKinds(t *testing.T) {
	authErr := &llms.AuthError{Provider: "openai", Hint: "OPENAI_API_KEY", Err: errors.New("no API key configured")}
	acqErr := &repo.AcquisitionError{Op: "clone repository", Err: errors.New("exit status 128")}

	tests := []struct {
		name     string
		err      error
		fallback Kind
		want     Kind
	}{
		{"context canceled", context.Canceled, KindProviderTransient, KindCancelled},
		{"wrapped deadline", fmt.Errorf("generate: %w", context.DeadlineExceeded), KindProviderTransient, KindCancelled},
		{"auth error", authErr, KindProviderTransient, KindProviderAuth},
		{"wrapped auth error", fmt.Errorf("call failed: %w", authErr), KindProviderTransient, KindProviderAuth},
		{"token limit message", errors.New("this model's maximum context length is 8192 tokens"), KindProviderTransient, KindTokenLimit},
		{"acquisition error", acqErr, KindIngestion, KindAcquisition},
		{"plain error keeps fallback", errors.New("disk full"), KindIngestion, KindIngestion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("stage", tt.err, tt.fallback)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestClassifyNilAndPassThrough(t *testing.T) {
	assert.Nil(t, classify("stage", nil, KindIngestion))

	inner := &Error{Kind: KindValidation, Op: "validate request", Err: errors.New("no messages")}
	got := classify("outer stage", fmt.Errorf("wrapped: %w", inner), KindIngestion)
	assert.Equal(t, KindValidation, got.Kind)
	assert.Equal(t, "validate request", got.Op)
}

func TestErrorFormatAndUnwrap(t *testing.T) {
	cause := errors.New("boom")

	withOp := &Error{Kind: KindIngestion, Op: "prepare repository", Err: cause}
	assert.Equal(t, "prepare repository: boom", withOp.Error())
	assert.True(t, errors.Is(withOp, cause))

	bare := &Error{Kind: KindIngestion, Err: cause}
	assert.Equal(t, "boom", bare.Error())
}

func TestKindHelpers(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("foreign")))
	assert.Equal(t, KindUnknown, KindOf(nil))

	cancelled := fmt.Errorf("run: %w", &Error{Kind: KindCancelled, Err: context.Canceled})
	assert.True(t, IsCancelled(cancelled))
	assert.False(t, IsTokenLimit(cancelled))

	limited := &Error{Kind: KindTokenLimit, Err: errors.New("too many tokens")}
	assert.True(t, IsTokenLimit(limited))
	assert.False(t, IsCancelled(limited))
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		KindUnknown:           "unknown",
		KindValidation:        "validation",
		KindAcquisition:       "acquisition",
		KindIngestion:         "ingestion",
		KindProviderTransient: "provider_transient",
		KindProviderAuth:      "provider_auth",
		KindTokenLimit:        "token_limit",
		KindCancelled:         "cancelled",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}
