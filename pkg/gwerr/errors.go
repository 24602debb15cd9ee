// Package gwerr is the gateway's error taxonomy. Every classified
// failure carries a generic, user-safe message; the underlying cause is
// wrapped for logs only.
package gwerr

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure. The caller-visible message depends
// only on the kind, never on the wrapped cause.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindRateLimited       Kind = "rate_limited"
	KindCredential        Kind = "credential"
	KindProviderAuth      Kind = "provider_auth"
	KindProviderRateLimit Kind = "provider_rate_limit"
	KindProviderTimeout   Kind = "provider_timeout"
	KindProvider          Kind = "provider"
	KindInfrastructure    Kind = "infrastructure"
	KindNotImplemented    Kind = "not_implemented"
)

// userMessages maps kinds to generic, user-safe text. Raw provider output,
// stack traces, and credential material never appear here.
var userMessages = map[Kind]string{
	KindValidation:        "invalid request",
	KindRateLimited:       "rate limit exceeded, try again later",
	KindCredential:        "invalid credential, contact administrator",
	KindProviderAuth:      "invalid credential, contact administrator",
	KindProviderRateLimit: "provider rate limit reached, try again later",
	KindProviderTimeout:   "provider request timed out",
	KindProvider:          "provider request failed",
	KindInfrastructure:    "service temporarily unavailable",
	KindNotImplemented:    "provider not supported",
}

// Error is a classified gateway failure.
type Error struct {
	Kind    Kind
	Message string // user-safe
	cause   error
}

// New creates an Error of the given kind with the standard user-safe message.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: userMessages[kind], cause: cause}
}

// Newf creates an Error with a custom user-safe message. The message must
// not contain provider output or secrets.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf returns the Kind of err, or KindProvider for unclassified errors.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindProvider
}

// UserMessage returns the caller-visible message for err.
func UserMessage(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Message
	}
	return userMessages[KindProvider]
}
