// Package apperr defines the error taxonomy shared by every engine
// component: each failure carries a Kind the HTTP layer maps to a status
// code, instead of each handler re-deriving it from sentinel errors.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	KindValidation          Kind = "validation"
	KindAuthentication      Kind = "authentication"
	KindAuthorization       Kind = "authorization"
	KindNotFound            Kind = "not_found"
	KindConflict            Kind = "conflict"
	KindInvalidTransition   Kind = "invalid_transition"
	KindConcurrency         Kind = "concurrency"
	KindIdempotencyInFlight Kind = "idempotency_in_flight"
	KindAlreadyRefunded     Kind = "already_refunded"
	KindProviderFailure     Kind = "provider_failure"
	KindInternal            Kind = "internal"
)

// FieldError is a single field-level validation complaint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the taxonomy-tagged error every engine component returns.
type Error struct {
	Kind    Kind
	Message string
	Fields  []FieldError
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(k Kind, msg string) *Error { return &Error{Kind: k, Message: msg} }

func Wrap(k Kind, msg string, cause error) *Error {
	return &Error{Kind: k, Message: msg, Cause: cause}
}

func Validation(msg string, fields ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// Is reports whether err carries the given Kind.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ToHTTPStatus maps a Kind to its wire status code.
func ToHTTPStatus(k Kind) int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindConcurrency, KindIdempotencyInFlight, KindAlreadyRefunded:
		return http.StatusConflict
	case KindInvalidTransition:
		return http.StatusBadRequest
	case KindProviderFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
