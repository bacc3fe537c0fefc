// Package vcerr defines the typed error taxonomy shared by every engine
// component. No exception ever escapes the public API: callers get one of
// these Kinds wrapped around the underlying cause.
package vcerr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind string

const (
	KindUsage         Kind = "usage_error"
	KindParse         Kind = "parse_error"
	KindInvalidShape  Kind = "invalid_structure"
	KindInvalidSig    Kind = "invalid_signature"
	KindUnknownKey    Kind = "unknown_key"
	KindExpired       Kind = "expired_or_not_yet_valid"
	KindRevoked       Kind = "revoked"
	KindFetch         Kind = "fetch_error"
	KindCancellation  Kind = "cancellation_error"
)

// Error is the concrete error type returned across package boundaries.
type Error struct {
	Kind  Kind
	Field string // optional: which field/descriptor the error concerns
	State string // optional: which OpenID4VP state the error concerns
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field=%s)", msg, e.Field)
	}
	if e.State != "" {
		msg = fmt.Sprintf("%s (state=%s)", msg, e.State)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, vcerr.Revoked) match regardless of message/cause.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Usage(format string, args ...interface{}) *Error        { return newErr(KindUsage, format, args...) }
func Parse(format string, args ...interface{}) *Error         { return newErr(KindParse, format, args...) }
func InvalidStructure(format string, args ...interface{}) *Error {
	return newErr(KindInvalidShape, format, args...)
}
func InvalidSignature(format string, args ...interface{}) *Error {
	return newErr(KindInvalidSig, format, args...)
}
func UnknownKey(format string, args ...interface{}) *Error { return newErr(KindUnknownKey, format, args...) }
func Expired(format string, args ...interface{}) *Error    { return newErr(KindExpired, format, args...) }
func Revoked(format string, args ...interface{}) *Error    { return newErr(KindRevoked, format, args...) }
func Fetch(format string, args ...interface{}) *Error      { return newErr(KindFetch, format, args...) }
func Cancellation(format string, args ...interface{}) *Error {
	return newErr(KindCancellation, format, args...)
}

// Wrap attaches a cause to a Kind while keeping the message.
func (e *Error) Wrap(cause error) *Error {
	e.Cause = cause
	return e
}

// ValidationError is the per-descriptor failure used inside an aggregated
// OpenID4VP response result.
type ValidationError struct {
	Field string
	State string
	Err   error
}

func (v *ValidationError) Error() string {
	return fmt.Sprintf("validation error: field=%s state=%s: %v", v.Field, v.State, v.Err)
}

func (v *ValidationError) Unwrap() error { return v.Err }
