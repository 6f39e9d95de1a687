package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a send or persistence operation failed, mirroring
// the kinds a DeliveryAttempt or campaign-level failure can carry.
type ErrorKind string

const (
	ErrorKindNetwork        ErrorKind = "network"
	ErrorKindProvider5xx    ErrorKind = "provider_5xx"
	ErrorKindRateLimited    ErrorKind = "rate_limited"
	ErrorKindProvider4xx    ErrorKind = "provider_4xx"
	ErrorKindRender         ErrorKind = "render"
	ErrorKindQuotaExhausted ErrorKind = "quota_exhausted"
	ErrorKindStorage        ErrorKind = "storage"
	ErrorKindCancelled      ErrorKind = "cancelled"
	ErrorKindSuppressed     ErrorKind = "suppressed"
)

// DispatchError is the classified error type of the core: it carries one of
// the ErrorKinds above. Callers classify failures through Kind and Retryable
// rather than string-matching error messages.
type DispatchError struct {
	Kind       ErrorKind
	Message    string
	Retryable  bool
	RetryAfter int // seconds; 0 if the failure carries no provider-specified cooldown
	Err        error
}

func (e *DispatchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// NewDispatchError constructs a DispatchError for the given kind.
func NewDispatchError(kind ErrorKind, message string, retryable bool, err error) *DispatchError {
	return &DispatchError{Kind: kind, Message: message, Retryable: retryable, Err: err}
}

// NewRateLimitedError constructs a retryable DispatchError carrying the
// provider's Retry-After hint.
func NewRateLimitedError(message string, retryAfterSeconds int, err error) *DispatchError {
	return &DispatchError{
		Kind:       ErrorKindRateLimited,
		Message:    message,
		Retryable:  true,
		RetryAfter: retryAfterSeconds,
		Err:        err,
	}
}

// IsRetryable reports whether err (or an error it wraps) is a DispatchError
// marked retryable.
func IsRetryable(err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// KindOf extracts the ErrorKind from err, or "" if err is not a DispatchError.
func KindOf(err error) ErrorKind {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// RetryAfterOf extracts the provider-specified cooldown in seconds, or 0.
func RetryAfterOf(err error) int {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.RetryAfter
	}
	return 0
}

// ErrCancelled is returned by RetryController.Run when a campaign's
// cancellation signal fires during a retry sleep. (A cancelled rate-limiter
// wait returns ctx.Err() instead.)
var ErrCancelled = &DispatchError{Kind: ErrorKindCancelled, Message: "operation cancelled", Retryable: false}
