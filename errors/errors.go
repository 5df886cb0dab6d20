/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package errors

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	// ErrInvalidArgument is returned for malformed input (bad batch size,
	// non-positive concurrency, missing storage client). Never retried.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUniqueViolation is returned when a write collides with a unique
	// constraint. Recoverable through the skip-duplicates retry path.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrNotFound is returned when a record or model is not found
	ErrNotFound = errors.New("not found")

	// ErrTransient is returned for timeouts and connection failures
	ErrTransient = errors.New("transient storage error")

	// ErrNotConfigured is returned when an operation runs before Configure
	ErrNotConfigured = errors.New("batchstore not configured")

	// ErrNoModelInfo is returned when no model metadata is registered for a name
	ErrNoModelInfo = errors.New("no model info registered")
)

// InvalidArgumentError reports a malformed caller-supplied value.
type InvalidArgumentError struct {
	Argument string
	Message  string
}

func (e *InvalidArgumentError) Error() string {
	if e.Argument != "" {
		return fmt.Sprintf("invalid argument %q: %s", e.Argument, e.Message)
	}
	return fmt.Sprintf("invalid argument: %s", e.Message)
}

func (e *InvalidArgumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// UniqueViolationError reports a unique-constraint collision on a model.
type UniqueViolationError struct {
	Model      string
	Constraint []string
	Err        error
}

func (e *UniqueViolationError) Error() string {
	if len(e.Constraint) > 0 {
		return fmt.Sprintf("unique constraint %v violated on %s: %v", e.Constraint, e.Model, e.Err)
	}
	return fmt.Sprintf("unique constraint violated on %s: %v", e.Model, e.Err)
}

func (e *UniqueViolationError) Is(target error) bool {
	return target == ErrUniqueViolation
}

func (e *UniqueViolationError) Unwrap() error { return e.Err }

// NotFoundError reports a missing record or model.
type NotFoundError struct {
	Type string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with key %q not found", e.Type, e.Key)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// TransientError wraps a retriable storage failure.
type TransientError struct {
	Operation string
	Err       error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Operation, e.Err)
}

func (e *TransientError) Is(target error) bool {
	return target == ErrTransient
}

func (e *TransientError) Unwrap() error { return e.Err }

// Helper functions for creating errors

// NewInvalidArgumentError creates a new InvalidArgumentError
func NewInvalidArgumentError(argument, message string) error {
	return &InvalidArgumentError{Argument: argument, Message: message}
}

// NewUniqueViolationError creates a new UniqueViolationError
func NewUniqueViolationError(model string, constraint []string, err error) error {
	return &UniqueViolationError{Model: model, Constraint: constraint, Err: err}
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(entityType, key string) error {
	return &NotFoundError{Type: entityType, Key: key}
}

// NewTransientError creates a new TransientError
func NewTransientError(operation string, err error) error {
	return &TransientError{Operation: operation, Err: err}
}

// IsInvalidArgument checks if an error is an invalid argument error
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

// IsUniqueViolation checks if an error is a unique constraint violation
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient checks if an error is a transient storage error
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
