// Package errors provides centralized error definitions for the pipeline.
// Errors are grouped by failure class so callers can route them with Classify.
//
// Naming conventions:
//   - Exported errors (Err*): Use for errors that callers need to check with errors.Is
//   - Wrap sentinels with fmt.Errorf and %w to add context
//   - Classification is by sentinel, never by message text
package errors

import (
	"context"
	"errors"
)

// Class markers. Every sentinel below wraps exactly one of them.
var (
	// ErrTransient marks failures that may succeed on a later attempt.
	ErrTransient = errors.New("transient dependency error")

	// ErrPermanentItem marks failures tied to one item that will never succeed on retry.
	ErrPermanentItem = errors.New("permanent item error")

	// ErrConfiguration marks failures an operator must fix (credentials, access scope).
	ErrConfiguration = errors.New("configuration error")
)

// Dependency errors.
var (
	// ErrDependencyUnavailable indicates a backing store could not be reached.
	ErrDependencyUnavailable = mark(ErrTransient, "dependency unavailable")

	// ErrRateLimited indicates an upstream service throttled the request.
	ErrRateLimited = mark(ErrTransient, "rate limited")

	// ErrRecordNotFound indicates the external store does not have the record yet.
	ErrRecordNotFound = mark(ErrTransient, "record not found")

	// ErrCircuitBreakerOpen indicates the circuit breaker has tripped and requests are blocked.
	ErrCircuitBreakerOpen = mark(ErrTransient, "circuit breaker is open")

	// ErrQuotaExhausted indicates an upstream quota ran out for the current period.
	ErrQuotaExhausted = mark(ErrTransient, "quota exhausted")
)

// Item errors.
var (
	// ErrMalformedPayload indicates a queue message body could not be decoded.
	ErrMalformedPayload = mark(ErrPermanentItem, "malformed payload")

	// ErrUnexpectedResponse indicates a well-formed response that does not match the expected shape.
	ErrUnexpectedResponse = mark(ErrPermanentItem, "unexpected response")

	// ErrContentUnavailable indicates the article content cannot be obtained (paywall, gone, too short).
	ErrContentUnavailable = mark(ErrPermanentItem, "content unavailable")
)

// Configuration errors.
var (
	// ErrAccessDenied indicates the caller's credentials lack the required scope.
	ErrAccessDenied = mark(ErrConfiguration, "access denied")

	// ErrMissingCredentials indicates a required credential is not configured.
	ErrMissingCredentials = mark(ErrConfiguration, "missing credentials")
)

// Validation errors.
var (
	// ErrInvalidURL indicates a URL could not be canonicalized.
	ErrInvalidURL = errors.New("invalid url")

	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")
)

// Lookup errors returned by queue and source stores.
var (
	// ErrMessageNotFound indicates an unknown or already settled message ID.
	ErrMessageNotFound = errors.New("message not found")

	// ErrSourceNotFound indicates an unknown source.
	ErrSourceNotFound = errors.New("source not found")
)

type classError struct {
	class error
	msg   string
}

func mark(class error, msg string) error {
	return &classError{class: class, msg: msg}
}

func (e *classError) Error() string {
	return e.msg
}

func (e *classError) Unwrap() error {
	return e.class
}

// Kind is the routing class of an error.
type Kind int

// Error kinds.
const (
	KindNone Kind = iota
	KindTransient
	KindPermanent
	KindConfiguration
)

// String returns the kind label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Classify maps an error chain to its kind. Errors without a class marker
// are treated as transient so the queue's retry budget bounds them.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrPermanentItem):
		return KindPermanent
	case errors.Is(err, ErrTransient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return KindTransient
	default:
		return KindTransient
	}
}

// Is is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is a convenience wrapper around errors.New.
func New(text string) error {
	return errors.New(text)
}

// Join is a convenience wrapper around errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
