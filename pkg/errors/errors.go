package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind classifies failures so that every layer can decide how to react
// without inspecting error strings.
type Kind string

const (
	KindRateLimited        Kind = "rate_limited"
	KindSessionInvalid     Kind = "session_invalid"
	KindChallengeRequired  Kind = "challenge_required"
	KindSuspended          Kind = "suspended"
	KindDetachedFrame      Kind = "detached_frame"
	KindNoResults          Kind = "no_results"
	KindAccountUnavailable Kind = "account_unavailable"
	KindTransient          Kind = "transient"
	KindNavigation         Kind = "navigation"
	KindUnknown            Kind = "unknown"
)

// Error is a typed failure raised by the engine
type Error struct {
	Kind    Kind
	Message string
	// Wait is the minimum time the caller has to sleep before the
	// condition can clear. Only set for account_unavailable.
	Wait time.Duration
	Err  error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Wait > 0 {
		msg += fmt.Sprintf(" (wait %s)", e.Wait.Round(time.Second))
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a typed error around a cause
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Unavailable creates an account_unavailable error carrying the wait time
func Unavailable(wait time.Duration, message string) *Error {
	return &Error{Kind: KindAccountUnavailable, Message: message, Wait: wait}
}

// KindOf returns the kind of the first typed error in the chain
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// WaitOf returns the wait duration carried by an account_unavailable error
func WaitOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.Wait
	}
	return 0
}

// IsLocallyRecoverable reports whether the same session may retry in place.
// Only UI timing problems qualify; everything else escalates.
func IsLocallyRecoverable(kind Kind) bool {
	return kind == KindTransient
}

// RequiresRotation reports whether the kind forces an account switch
func RequiresRotation(kind Kind) bool {
	switch kind {
	case KindRateLimited, KindDetachedFrame, KindSuspended:
		return true
	default:
		return false
	}
}

// RequiresRecovery reports whether the kind means the login was lost
func RequiresRecovery(kind Kind) bool {
	switch kind {
	case KindSessionInvalid, KindChallengeRequired:
		return true
	default:
		return false
	}
}

// IsFatal reports whether the kind ends a run outright
func IsFatal(kind Kind) bool {
	return kind == KindAccountUnavailable
}

var detachedSignatures = []string{
	"detached",
	"target closed",
	"session closed",
	"execution context was destroyed",
	"invalid context",
}

// ClassifyBrowserError maps a raw browser/CDP error to a typed error.
// rateLimitSignatures are matched case-insensitively against the error text.
func ClassifyBrowserError(err error, rateLimitSignatures []string) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	text := strings.ToLower(err.Error())
	for _, sig := range rateLimitSignatures {
		if sig != "" && strings.Contains(text, strings.ToLower(sig)) {
			return Wrap(KindRateLimited, err, "navigation blocked at network layer")
		}
	}
	for _, sig := range detachedSignatures {
		if strings.Contains(text, sig) {
			return Wrap(KindDetachedFrame, err, "browser frame detached")
		}
	}
	if strings.Contains(text, "deadline exceeded") || strings.Contains(text, "timeout") {
		return Wrap(KindNavigation, err, "navigation timed out")
	}
	return Wrap(KindUnknown, err, "browser operation failed")
}
