package apperrors

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrInvalidState indicates that an operation is not legal for the entity's current status.
// Mutators check this before touching any data.
var ErrInvalidState = errors.New("invalid state for operation")

// ErrInsufficientFunds indicates the account's available balance (overdraft-adjusted)
// cannot cover the requested debit.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrAuthority indicates the acting user lacks the required approval level.
// Fails closed when the actor's authority cannot be verified.
var ErrAuthority = errors.New("insufficient authority")

// ErrExpired indicates a hold, reversal window or SLA deadline has lapsed.
var ErrExpired = errors.New("expired")

// ErrMaxRetriesExceeded indicates a failed transaction has reached its retry cap.
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// ErrConflict indicates a duplicate identifier or a lost concurrency race.
var ErrConflict = errors.New("conflict")

// ErrBusy indicates a row lock could not be acquired without waiting.
// Balances are untouched; callers may retry.
var ErrBusy = errors.New("resource busy")

// ErrInternal indicates an unexpected infrastructure failure.
var ErrInternal = errors.New("internal error")

// ErrProcessingFailure wraps an infrastructure failure inside the processing unit of work.
// The unit is rolled back in full before this surfaces.
var ErrProcessingFailure = errors.New("processing failure")

// AppError carries a status code, a human message and the underlying cause.
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError wrapping the given cause.
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewNotFoundError creates an AppError that matches errors.Is(err, ErrNotFound).
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: 404, Message: message, Err: ErrNotFound}
}
