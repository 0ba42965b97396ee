// Package apperror implements the error-kind taxonomy used throughout the
// ingestion and retrieval pipelines: validation, not-found, duplicate,
// external rate-limit, external failure, transient, cancelled, and fatal.
// Callers classify at the edge (HTTP status, retry decision) by inspecting
// Kind rather than matching on sentinel values.
package apperror

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure. It is not a Go error type itself —
// Error wraps a Kind together with a message and an optional cause.
type Kind string

// Kind values, mirroring the taxonomy every pipeline classifies errors into.
const (
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindDuplicate        Kind = "duplicate"
	KindExternalRateLimit Kind = "external_rate_limit"
	KindExternalFailure  Kind = "external_failure"
	KindTransient        Kind = "transient"
	KindCancelled        Kind = "cancelled"
	KindFatal            Kind = "fatal"
)

// Error is a kind-tagged error. Message is the short, user-safe summary;
// Cause carries the wrapped internal error (logged, never surfaced to users).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target shares this error's Kind, so callers can write
// errors.Is(err, &apperror.Error{Kind: apperror.KindNotFound}) — more commonly
// callers use KindOf below instead.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Validation builds a ValidationError (malformed input).
func Validation(format string, args ...any) *Error {
	return newf(KindValidation, nil, format, args...)
}

// NotFound builds a NotFound error (missing document/sync/user/conversation).
func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, nil, format, args...)
}

// Duplicate builds a Duplicate error (unique constraint violation, not fatal).
func Duplicate(format string, args ...any) *Error {
	return newf(KindDuplicate, nil, format, args...)
}

// RateLimit builds an ExternalRateLimit error (throttled upstream call).
func RateLimit(cause error, format string, args ...any) *Error {
	return newf(KindExternalRateLimit, cause, format, args...)
}

// ExternalFailure builds a non-retryable upstream failure.
func ExternalFailure(cause error, format string, args ...any) *Error {
	return newf(KindExternalFailure, cause, format, args...)
}

// Transient builds a Transient error (DB timeout/disconnect; caller may retry).
func Transient(cause error, format string, args ...any) *Error {
	return newf(KindTransient, cause, format, args...)
}

// Cancelled builds a Cancelled error (user- or shutdown-triggered).
func Cancelled(format string, args ...any) *Error {
	return newf(KindCancelled, nil, format, args...)
}

// Fatal builds a Fatal error (misconfiguration at boot).
func Fatal(cause error, format string, args ...any) *Error {
	return newf(KindFatal, cause, format, args...)
}

// KindOf extracts the Kind from err, or "" if err is not (wrapping) an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Retryable reports whether the error's kind is conventionally safe to retry
// (rate limits with backoff, and bare transient infrastructure errors).
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindExternalRateLimit, KindTransient:
		return true
	default:
		return false
	}
}
