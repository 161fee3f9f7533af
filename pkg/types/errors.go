package types

import (
	"errors"
	"fmt"
)

// Sentinel errors used for errors.Is matching across packages.
var (
	// ErrValidation marks malformed or out-of-contract input.
	ErrValidation = errors.New("validation error")

	// ErrStorage marks an I/O failure or corruption in the backing store.
	ErrStorage = errors.New("storage error")

	// ErrNotFound is returned when a requested entity does not exist.
	// Absence of matching points is never an error; this is reserved
	// for lookups of named entities such as dashboards.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports input that violates the contract. It is
// reported immediately to the caller and never retried.
type ValidationError struct {
	Message string
}

// NewValidationError creates a ValidationError with the given message
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Message
}

// Is implements errors.Is matching against ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StorageError reports an I/O failure in the backing store. It is
// distinct from an empty result: queries that match nothing succeed.
type StorageError struct {
	Op    string
	Cause error
}

// NewStorageError wraps cause with the failing operation name
func NewStorageError(op string, cause error) *StorageError {
	return &StorageError{Op: op, Cause: cause}
}

func (e *StorageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("storage %s failed", e.Op)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching against ErrStorage
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
