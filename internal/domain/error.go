package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrRateLimited        = errors.New("too many requests")
	ErrOperationFailed    = errors.New("operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid execution context")

	// Submission / polling errors
	ErrUnreachableImage = errors.New("image reference is not reachable or not an image")
	ErrUnknownOutput    = errors.New("unrecognized provider output shape")
)
