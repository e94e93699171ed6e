// Package apperrors defines the error taxonomy shared by every stage of the
// deposit pipeline. Each Kind maps to exactly one sentinel, one retry class
// and one user-facing message.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind tags an error with its place in the taxonomy. The string form is
// persisted as the attempt failure code.
type Kind string

const (
	KindSessionCreation     Kind = "session_creation_error"
	KindSessionExpired      Kind = "session_expired"
	KindSessionBusy         Kind = "session_busy"
	KindSessionNotConnected Kind = "session_not_connected"
	KindPoolNotFound        Kind = "pool_not_found"
	KindPoolInactive        Kind = "pool_inactive"
	KindReserveStale        Kind = "reserve_stale"
	KindInsufficientBalance Kind = "insufficient_balance"
	KindSlippageOutOfRange  Kind = "slippage_out_of_range"
	KindWalletRejected      Kind = "wallet_rejected"
	KindSigningTimeout      Kind = "signing_timeout"
	KindCancelled           Kind = "cancelled"
	KindSubmissionRejected  Kind = "submission_rejected"
	KindRPC                 Kind = "rpc_error"
	KindConfirmationUnknown Kind = "confirmation_unknown"
	KindAlreadyInProgress   Kind = "already_in_progress"
	KindInvalidRequest      Kind = "invalid_request"
	KindInterrupted         Kind = "interrupted"
)

var (
	ErrSessionCreation     = errors.New("session creation failed")
	ErrSessionExpired      = errors.New("session expired")
	ErrSessionBusy         = errors.New("session busy")
	ErrSessionNotConnected = errors.New("session not connected")
	ErrPoolNotFound        = errors.New("pool not found")
	ErrPoolInactive        = errors.New("pool inactive")
	ErrReserveStale        = errors.New("reserve snapshot stale")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrSlippageOutOfRange  = errors.New("slippage out of range")
	ErrWalletRejected      = errors.New("rejected in wallet")
	ErrSigningTimeout      = errors.New("signing timed out")
	ErrCancelled           = errors.New("cancelled")
	ErrSubmissionRejected  = errors.New("submission rejected")
	ErrRPC                 = errors.New("rpc error")
	ErrConfirmationUnknown = errors.New("confirmation unknown")
	ErrAlreadyInProgress   = errors.New("already in progress")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrInterrupted         = errors.New("interrupted")
)

var sentinels = map[Kind]error{
	KindSessionCreation:     ErrSessionCreation,
	KindSessionExpired:      ErrSessionExpired,
	KindSessionBusy:         ErrSessionBusy,
	KindSessionNotConnected: ErrSessionNotConnected,
	KindPoolNotFound:        ErrPoolNotFound,
	KindPoolInactive:        ErrPoolInactive,
	KindReserveStale:        ErrReserveStale,
	KindInsufficientBalance: ErrInsufficientBalance,
	KindSlippageOutOfRange:  ErrSlippageOutOfRange,
	KindWalletRejected:      ErrWalletRejected,
	KindSigningTimeout:      ErrSigningTimeout,
	KindCancelled:           ErrCancelled,
	KindSubmissionRejected:  ErrSubmissionRejected,
	KindRPC:                 ErrRPC,
	KindConfirmationUnknown: ErrConfirmationUnknown,
	KindAlreadyInProgress:   ErrAlreadyInProgress,
	KindInvalidRequest:      ErrInvalidRequest,
	KindInterrupted:         ErrInterrupted,
}

// transient kinds may be retried with backoff on read paths.
var transient = map[Kind]bool{
	KindSessionCreation: true,
	KindRPC:             true,
}

// Error is the typed error returned across package boundaries.
type Error struct {
	Kind      Kind
	Message   string
	Details   map[string]interface{}
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		if s, ok := sentinels[e.Kind]; ok {
			msg = s.Error()
		} else {
			msg = string(e.Kind)
		}
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// WithDetails attaches structured details and returns the receiver.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Retryable: transient[kind]}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, cause error, message string) *Error {
	e := New(kind, message)
	e.Cause = cause
	return e
}

// As extracts the typed error from a chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err belongs to a transient class.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}
