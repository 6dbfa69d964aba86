package app

import (
	"errors"
	"strings"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrExpired    = errors.New("verification code expired")

	// ErrUnauthorized covers unknown phone, wrong password and disabled
	// accounts alike so login does not reveal which accounts exist.
	ErrUnauthorized = errors.New("invalid phone or password")

	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
)

// FieldError is one field-keyed problem with the request.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Error is the concrete error returned by App operations. Kind is one of the
// sentinel errors above, so errors.Is(err, ErrNotFound) and friends work.
type Error struct {
	Kind    error
	Message string
	Fields  []FieldError
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Fields) > 0 {
		parts := make([]string, 0, len(e.Fields))
		for _, f := range e.Fields {
			parts = append(parts, f.Field+": "+f.Reason)
		}
		return e.Kind.Error() + ": " + strings.Join(parts, "; ")
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

func invalid(field, reason string) error {
	return &Error{Kind: ErrValidation, Fields: []FieldError{{Field: field, Reason: reason}}}
}

func invalidFields(fields []FieldError) error {
	return &Error{Kind: ErrValidation, Fields: fields}
}

func notFound(what string) error {
	return &Error{Kind: ErrNotFound, Message: what + " not found"}
}

func conflict(field, message string) error {
	e := &Error{Kind: ErrConflict, Message: message}
	if field != "" {
		e.Fields = []FieldError{{Field: field, Reason: message}}
	}
	return e
}

func forbidden(message string) error {
	return &Error{Kind: ErrForbidden, Message: message}
}
