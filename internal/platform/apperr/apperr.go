// Package apperr defines the error kinds surfaced by the ledger services.
// A Kind is itself an error so callers can match with errors.Is:
//
//	if errors.Is(err, apperr.OverPayment) { ... }
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind string

const (
	InvalidAmount    Kind = "invalid_amount"
	InvalidDiscount  Kind = "invalid_discount"
	InvalidState     Kind = "invalid_state"
	MissingReference Kind = "missing_reference"
	OverPayment      Kind = "over_payment"
	AlreadyOpen      Kind = "already_open"
	AlreadyClosed    Kind = "already_closed"
	InvalidConfig    Kind = "invalid_config"
	AlreadyFinalized Kind = "already_finalized"
	InvalidMethod    Kind = "invalid_method"
	Validation       Kind = "validation"
	NotFound         Kind = "not_found"
	Forbidden        Kind = "forbidden"
	// Persistence covers connection loss, constraint violations and any other
	// storage failure. Its detail is logged, never returned to clients.
	Persistence Kind = "persistence"
)

func (k Kind) Error() string { return string(k) }

// Error carries a Kind, a user-facing message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// DB wraps a storage error as Persistence unless it already carries a kind.
func DB(err error, op string) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return Wrap(Persistence, err, op)
}

// KindOf returns the kind of err, or Persistence for untyped errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Persistence
}

// MessageOf returns the user-facing message. Persistence details are hidden.
func MessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != Persistence {
		return ae.Message
	}
	return "internal error"
}

// HTTPStatus maps a kind to the status code returned by the REST layer.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidAmount, InvalidDiscount, MissingReference, InvalidMethod, InvalidConfig, Validation:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	case InvalidState, AlreadyOpen, AlreadyClosed, AlreadyFinalized:
		return http.StatusConflict
	case OverPayment:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
