// Package apperr defines the error kinds surfaced at the Dispatcher API
// boundary as sentinel-wrapped errors, mirroring the
// domain.ErrUserExists / domain.ErrUserNotFound sentinel-error idiom in
// internal/auth/adapters/postgres_store.go.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is one of the error kinds the Dispatcher API distinguishes.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindTokenExpired    Kind = "token_expired"
	KindTokenInvalid    Kind = "token_invalid"
	KindNotFound        Kind = "not_found"
	KindUpstream        Kind = "upstream"
	KindInternal        Kind = "internal"
)

// Error wraps an underlying cause with a Kind the transport layer maps to
// an HTTP status and a stable machine-readable Reason (e.g. "wrong_token",
// "token expired").
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs an *Error of the given kind and reason, optionally
// wrapping a cause.
func New(kind Kind, reason string, cause error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: cause}
}

// Unauthenticated builds a missing-token error.
func Unauthenticated(reason string) *Error { return New(KindUnauthenticated, reason, nil) }

// TokenExpired builds a token-expired error.
func TokenExpired() *Error { return New(KindTokenExpired, "token expired", nil) }

// TokenInvalid builds a bad-signature / wrong-secret error.
func TokenInvalid(reason string, cause error) *Error { return New(KindTokenInvalid, reason, cause) }

// NotFound builds a not-found error for a given resource.
func NotFound(resource string) *Error { return New(KindNotFound, resource+" not found", nil) }

// Upstream builds an error for a failed external collaborator call (OAuth).
func Upstream(reason string, cause error) *Error { return New(KindUpstream, reason, cause) }

// Internal builds a catch-all internal error.
func Internal(cause error) *Error { return New(KindInternal, "internal error", cause) }

// KindOf extracts the Kind from err, defaulting to KindInternal when err is
// not an *Error (storage failures bubble up as Internal).
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// ReasonOf extracts the Reason from err, empty string if not an *Error.
func ReasonOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Reason
	}
	return ""
}
