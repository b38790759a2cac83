package errors

import (
	"fmt"
)

// IndexError is the structured error type for the ISCC index.
// It provides rich context for error handling and logging, and maps
// directly onto the error kinds of the index's error-handling design:
// MalformedCode, DuplicateKind, MismatchedLength, KeyAlreadyUsed,
// MapFull, IOError.
type IndexError struct {
	// Code is the unique error code (e.g. "ERR_101_MALFORMED_CODE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Code, Key, Storage, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates the backing store already retried (or will
	// retry) this operation once, per the MapFull recovery contract.
	Retryable bool
}

// Error implements the error interface.
func (e *IndexError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *IndexError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code, enabling
// errors.Is() to work with IndexError.
func (e *IndexError) Is(target error) bool {
	if t, ok := target.(*IndexError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error and returns it for chaining.
func (e *IndexError) WithDetail(key, value string) *IndexError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new IndexError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *IndexError {
	return &IndexError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an IndexError from an existing error, keeping its message.
func Wrap(code string, err error) *IndexError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// MalformedCode creates a parse/decompose error.
func MalformedCode(message string, cause error) *IndexError {
	return New(ErrCodeMalformedCode, message, cause)
}

// DuplicateKind creates an error for composing two components of the
// same (main-type, sub-type).
func DuplicateKind(message string) *IndexError {
	return New(ErrCodeDuplicateKind, message, nil)
}

// MismatchedLength creates an error for computing distance between
// unequal-length byte strings.
func MismatchedLength(message string) *IndexError {
	return New(ErrCodeMismatchedLen, message, nil)
}

// KeyAlreadyUsed creates an error for a caller-supplied key that
// collides with a different ISCC already stored under that key.
func KeyAlreadyUsed(message string) *IndexError {
	return New(ErrCodeKeyAlreadyUsed, message, nil)
}

// MapFullErr creates an error for a backing-store map-size exhaustion.
func MapFullErr(message string, cause error) *IndexError {
	return New(ErrCodeMapFull, message, cause)
}

// IOErr creates an error for an underlying storage failure.
func IOErr(message string, cause error) *IndexError {
	return New(ErrCodeIOError, message, cause)
}

// Locked creates an error for failing to acquire the single-writer lock.
func Locked(message string, cause error) *IndexError {
	return New(ErrCodeLocked, message, cause)
}

// Internal creates an error for unexpected internal failures.
func Internal(message string, cause error) *IndexError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable reports whether err is an IndexError with Retryable set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ie, ok := err.(*IndexError); ok {
		return ie.Retryable
	}
	return false
}

// GetCode extracts the error code from an IndexError, or "" otherwise.
func GetCode(err error) string {
	if ie, ok := err.(*IndexError); ok {
		return ie.Code
	}
	return ""
}
