package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/kadirpekel/repochat/pkg/llms"
	"github.com/kadirpekel/repochat/pkg/repo"
)

// Kind classifies a query failure for transport mapping. Validation,
// acquisition, and ingestion failures surface before any stream starts;
// provider kinds may arrive mid-stream as a terminal error chunk.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAcquisition
	KindIngestion
	KindProviderTransient
	KindProviderAuth
	KindTokenLimit
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAcquisition:
		return "acquisition"
	case KindIngestion:
		return "ingestion"
	case KindProviderTransient:
		return "provider_transient"
	case KindProviderAuth:
		return "provider_auth"
	case KindTokenLimit:
		return "token_limit"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error couples a failure with its kind and the operation that produced
// it. Credentials are scrubbed before errors reach this layer, never
// stored here.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the error's kind, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsCancelled reports whether the query was aborted by its caller.
func IsCancelled(err error) bool { return KindOf(err) == KindCancelled }

// IsTokenLimit reports whether the provider rejected the prompt size.
func IsTokenLimit(err error) bool { return KindOf(err) == KindTokenLimit }

// classify wraps err with the most specific kind it can prove, falling
// back to the caller's kind. Errors already classified pass through.
func classify(op string, err error, fallback Kind) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	kind := fallback
	var acq *repo.AcquisitionError
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		kind = KindCancelled
	case llms.IsAuthError(err):
		kind = KindProviderAuth
	case llms.IsTokenLimitError(err):
		kind = KindTokenLimit
	case errors.As(err, &acq):
		kind = KindAcquisition
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
