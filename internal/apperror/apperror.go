// Package apperror defines the typed error values used across the RBAC
// backend. Every failure that reaches the API boundary is one of these kinds;
// handlers convert the kind to an HTTP status code. Callers should use
// errors.As to match.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an application error.
type Kind int

const (
	// Unknown is an unclassified internal failure.
	Unknown Kind = iota
	// Auth is an authentication failure (no/invalid/expired token, missing
	// claims, user vanished after token issuance).
	Auth
	// Forbidden is an authorization failure (valid identity, insufficient
	// capability or role).
	Forbidden
	// Validation is a bad-input failure (missing required field, malformed body).
	Validation
	// Conflict is a uniqueness violation (duplicate username).
	Conflict
	// NotFound is an unknown-id lookup failure.
	NotFound
	// Store is an unexpected failure from the persistence layer.
	Store
)

// Error carries a kind, a user-facing message and an optional underlying error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps the error kind to its HTTP status code.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case Auth:
		return http.StatusUnauthorized
	case Forbidden:
		return http.StatusForbidden
	case Validation:
		return http.StatusBadRequest
	case Conflict:
		return http.StatusConflict
	case NotFound:
		return http.StatusNotFound
	case Store:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func NewAuth(message string, err error) *Error {
	return New(Auth, message, err)
}

func NewForbidden(message string, err error) *Error {
	return New(Forbidden, message, err)
}

func NewValidation(message string, err error) *Error {
	return New(Validation, message, err)
}

func NewConflict(message string, err error) *Error {
	return New(Conflict, message, err)
}

func NewNotFound(message string, err error) *Error {
	return New(NotFound, message, err)
}

func NewStore(message string, err error) *Error {
	return New(Store, message, err)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
