package domain

import "errors"

// Sentinel errors shared by every layer. Wrap them with fmt.Errorf("%w")
// and test with errors.Is; the HTTP layer maps them to status codes.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrValidation    = errors.New("validation error")
	// ErrConflict reports a conditional write that lost to a concurrent
	// writer. The whole unit of work may be retried.
	ErrConflict     = errors.New("concurrent modification")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)
