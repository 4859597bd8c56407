// Package errors provides classified errors for the streaming connection
// lifecycle. Every transport failure maps to exactly one class, and the
// class alone decides whether the connection machine reconnects.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Class is the classification of an error for reconnection purposes.
type Class int

const (
	// ClassTransient covers network failures, 5xx responses, and explicit
	// server shutdowns. A retry after a delay may succeed.
	ClassTransient Class = iota
	// ClassAuth covers authentication failures (HTTP 401). Retrying with
	// the same credential cannot succeed.
	ClassAuth
	// ClassClient covers the remaining 4xx responses. The request itself
	// is malformed or rejected and will not succeed unchanged.
	ClassClient
	// ClassInvalid covers malformed inbound data. Reported to the caller
	// without touching connection state.
	ClassInvalid
)

// String returns the string representation of a Class.
func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassAuth:
		return "auth"
	case ClassClient:
		return "client"
	case ClassInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this class must not be retried.
func (c Class) Fatal() bool {
	return c == ClassAuth || c == ClassClient
}

// Sentinel errors for common stream conditions.
var (
	// ErrServerShutdown is the cause used when the backend announces a
	// shutdown over the event stream.
	ErrServerShutdown = errors.New("server announced shutdown")
	// ErrStreamEnded is the cause used when the event stream ends without
	// a more specific transport error.
	ErrStreamEnded = errors.New("event stream ended")
	// ErrStopped is returned by operations attempted on a connection that
	// has been explicitly stopped.
	ErrStopped = errors.New("connection stopped")
)

// StatusError is produced at the transport boundary when the backend
// answers with a non-success HTTP status. Carrying the status code as a
// typed value keeps classification a total function of the error rather
// than a guess at optional fields.
type StatusError struct {
	StatusCode int
	Status     string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("unexpected response status %d (%s)", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("unexpected response status %d", e.StatusCode)
}

// NewStatusError builds a StatusError from an HTTP response status.
func NewStatusError(statusCode int) *StatusError {
	return &StatusError{StatusCode: statusCode, Status: http.StatusText(statusCode)}
}

// ClassifiedError wraps an error with its classification and the
// component/operation context that produced it.
type ClassifiedError struct {
	Class     Class
	Err       error
	Component string
	Operation string
}

// Error implements the error interface.
func (ce *ClassifiedError) Error() string {
	return fmt.Sprintf("%s.%s: %v", ce.Component, ce.Operation, ce.Err)
}

// Unwrap returns the underlying error.
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// WrapTransient wraps an error as transient with context.
func WrapTransient(err error, component, operation string) error {
	return wrap(ClassTransient, err, component, operation)
}

// WrapAuth wraps an error as an authentication failure with context.
func WrapAuth(err error, component, operation string) error {
	return wrap(ClassAuth, err, component, operation)
}

// WrapClient wraps an error as a non-auth client error with context.
func WrapClient(err error, component, operation string) error {
	return wrap(ClassClient, err, component, operation)
}

// WrapInvalid wraps an error as invalid-data with context.
func WrapInvalid(err error, component, operation string) error {
	return wrap(ClassInvalid, err, component, operation)
}

func wrap(class Class, err error, component, operation string) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err, Component: component, Operation: operation}
}

// Classify maps any error to exactly one Class. Explicit classifications
// win; otherwise HTTP statuses decide (401 auth, other 4xx client), and
// everything else — network failures, 5xx, parse-free transport errors —
// is transient so that a retry is at least possible.
func Classify(err error) Class {
	if err == nil {
		return ClassTransient
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusUnauthorized:
			return ClassAuth
		case se.StatusCode >= 400 && se.StatusCode < 500:
			return ClassClient
		}
	}

	return ClassTransient
}

// IsTransient reports whether the connection machine may retry err.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ClassTransient
}

// IsFatal reports whether err must park the connection in disconnected.
func IsFatal(err error) bool {
	return err != nil && Classify(err).Fatal()
}
