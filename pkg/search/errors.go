package search

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrorClass is the retry classification of a search failure.
type ErrorClass string

const (
	// ErrorClassRateLimit means the service signalled quota exhaustion.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassTransient covers every other remote failure: network, decoding, 5xx.
	ErrorClassTransient ErrorClass = "transient"
)

// Error is a classified search failure.
type Error struct {
	Class      ErrorClass
	StatusCode int
	Message    string

	// ResetAt is when the service expects the quota to refill, if known.
	ResetAt time.Time

	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("search %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// RateLimited builds a rate-limit error.
func RateLimited(status int, msg string, resetAt time.Time) *Error {
	return &Error{Class: ErrorClassRateLimit, StatusCode: status, Message: msg, ResetAt: resetAt}
}

// Transient wraps err as a transient failure.
func Transient(status int, msg string, err error) *Error {
	return &Error{Class: ErrorClassTransient, StatusCode: status, Message: msg, Err: err}
}

// ClassOf classifies err for retry. Context cancellation is never retried and
// yields an empty class; unclassified errors are transient.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ""
	}
	var se *Error
	if errors.As(err, &se) && se.Class != "" {
		return se.Class
	}
	return ErrorClassTransient
}
