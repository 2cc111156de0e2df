// Package apperr defines the client's error taxonomy.  Every failure that
// crosses a component boundary is categorized into one of a few kinds so
// callers can decide how to present it (inline error, retry hint, silent
// recovery) without inspecting transport details.
package apperr

import (
	"errors"
	"fmt"
)

// Kind categorizes a failure.
type Kind string

const (
	// KindCredentialInvalid means the exchange or verify call was rejected.
	KindCredentialInvalid Kind = "CREDENTIAL_INVALID"
	// KindNetworkUnavailable is a transient transport or server failure.
	KindNetworkUnavailable Kind = "NETWORK_UNAVAILABLE"
	// KindMalformedMessage means an inbound push message could not be decoded.
	KindMalformedMessage Kind = "MALFORMED_MESSAGE"
	// KindConnectionLost means the push transport disconnected.
	KindConnectionLost Kind = "CONNECTION_LOST"
	// KindStorageUnavailable means the credential store could not be written.
	KindStorageUnavailable Kind = "STORAGE_UNAVAILABLE"
)

// Sentinels for errors.Is checks.  An *Error matches the sentinel of its Kind.
var (
	ErrCredentialInvalid  = errors.New("credential invalid")
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrMalformedMessage   = errors.New("malformed message")
	ErrConnectionLost     = errors.New("connection lost")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

var sentinels = map[Kind]error{
	KindCredentialInvalid:  ErrCredentialInvalid,
	KindNetworkUnavailable: ErrNetworkUnavailable,
	KindMalformedMessage:   ErrMalformedMessage,
	KindConnectionLost:     ErrConnectionLost,
	KindStorageUnavailable: ErrStorageUnavailable,
}

// Error is a categorized failure.  Op names the operation that failed
// (e.g. "login", "verify"); Err is the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New builds an *Error.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Kind)
	if s, ok := sentinels[e.Kind]; ok {
		msg = s.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// Retryable reports whether the caller may usefully retry the operation.
func (e *Error) Retryable() bool {
	return e.Kind == KindNetworkUnavailable || e.Kind == KindConnectionLost
}

// KindOf extracts the Kind of err, or "" when err is not categorized.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is a categorized, retryable failure.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable()
}
