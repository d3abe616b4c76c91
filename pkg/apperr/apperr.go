// Package apperr classifies pipeline failures so callers can decide between
// rejecting input, dead-lettering a job, or asking the broker to redeliver.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Class is the failure taxonomy shared by the producer and the worker.
type Class int

const (
	// Unknown is treated like TransientInfra by the worker.
	Unknown Class = iota
	// InvalidInput is a client error surfaced synchronously by ingest.
	InvalidInput
	// PermanentInput means the job can never succeed; do not requeue.
	PermanentInput
	// TransientInfra covers storage, broker and database hiccups.
	TransientInfra
	// TransientExternal covers extraction provider transport and parse failures.
	TransientExternal
)

func (c Class) String() string {
	switch c {
	case InvalidInput:
		return "invalid_input"
	case PermanentInput:
		return "permanent_input"
	case TransientInfra:
		return "transient_infra"
	case TransientExternal:
		return "transient_external"
	default:
		return "unknown"
	}
}

// Error is a classified error.
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Op
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a class and the operation that failed.
func New(class Class, op string, err error) *Error {
	return &Error{Class: class, Op: op, Err: err}
}

// Invalid is shorthand for an InvalidInput error with a message.
func Invalid(op, format string, args ...any) *Error {
	return &Error{Class: InvalidInput, Op: op, Err: fmt.Errorf(format, args...)}
}

// ClassOf returns the class of the outermost classified error in the chain.
// Context deadline and cancellation errors without a class are transient.
func ClassOf(err error) Class {
	if err == nil {
		return Unknown
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Class
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return TransientInfra
	}
	return Unknown
}

// IsTransient reports whether redelivery could make the operation succeed.
func IsTransient(err error) bool {
	switch ClassOf(err) {
	case TransientInfra, TransientExternal, Unknown:
		return err != nil
	default:
		return false
	}
}

// HTTPStatus maps a classified error to a status code for the HTTP surface.
func HTTPStatus(err error) int {
	switch ClassOf(err) {
	case InvalidInput:
		return http.StatusBadRequest
	case PermanentInput:
		return http.StatusUnprocessableEntity
	case TransientInfra, TransientExternal:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
