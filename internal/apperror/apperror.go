package apperror

import (
	"errors"
	"fmt"
)

// Sentinel error kinds. Handlers map these to HTTP status codes; the service
// layer only ever deals in these values plus wrapped internal errors.
//
// ErrNotFound is deliberately used both for "account absent" and for
// "invalid or expired OTP" — giving the two cases the same shape stops a
// caller from enumerating which emails or phone numbers have accounts.
var (
	ErrMissingFields = errors.New("missing required fields")
	ErrDuplicate     = errors.New("identity already exists")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
)

type AppError struct {
	Err     error  // sentinel kind
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// MissingFields flags a request that omitted one or more required fields.
// The generic wording is intentional — it matches the single message the
// public API returns for every field-validation failure.
func MissingFields(field string) *AppError {
	return &AppError{
		Err:     ErrMissingFields,
		Message: "Missing Required Fields: Please provide values for all required fields.",
		Field:   field,
	}
}

// Duplicate flags a signup or resend against an identity that already has an
// active sub-record.
func Duplicate(what string) *AppError {
	return &AppError{
		Err:     ErrDuplicate,
		Message: fmt.Sprintf("%s already exists", what),
	}
}

// NotFound covers both a missing account and a failed OTP check — the two are
// indistinguishable to the caller on purpose.
func NotFound(message string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: message,
	}
}

// Unauthorized flags a bad password or a bad/missing/mismatched token.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}
