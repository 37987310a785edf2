// Package errors defines the structured error taxonomy for reconciliation
// and replacement operations.
//
// Precondition errors abort a whole operation before any remote mutation.
// Remote errors are isolated to one entity, recorded, and never propagate
// past the entity loop. Invariant errors flag states the engine refuses to
// write (a host left with zero group memberships).
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Base error types
var (
	ErrNotFound         = errors.New("not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrGroupNotFound    = errors.New("host group not found")
	ErrHostNotFound     = errors.New("host not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrEmptyMembership  = errors.New("host would be left with no group membership")
	ErrInvalidInput     = errors.New("invalid input")
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypePrecondition ErrorType = "precondition"
	ErrorTypeRemote       ErrorType = "remote"
	ErrorTypeInvariant    ErrorType = "invariant"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeAuth         ErrorType = "auth"
	ErrorTypeValidation   ErrorType = "validation"
)

// OpError is a structured error for reconciliation operations. Op names the
// failed action (e.g. "rename_group", "restore_host") and Entity identifies
// the group or host it failed on.
type OpError struct {
	Type      ErrorType
	Op        string
	Entity    string
	Err       error
	Timestamp time.Time
}

func (e *OpError) Error() string {
	if e.Entity != "" {
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Entity, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is so callers can match either the category's base
// error or anything wrapped underneath.
func (e *OpError) Is(target error) bool {
	if target == nil {
		return false
	}

	switch target {
	case ErrNotFound, ErrTemplateNotFound, ErrGroupNotFound, ErrHostNotFound:
		if e.Type == ErrorTypeNotFound && errors.Is(e.Err, target) {
			return true
		}
	case ErrUnauthorized:
		if e.Type == ErrorTypeAuth {
			return true
		}
	case ErrEmptyMembership:
		if e.Type == ErrorTypeInvariant {
			return true
		}
	}

	return errors.Is(e.Err, target)
}

// NewOpError creates a new OpError.
func NewOpError(errorType ErrorType, op, entity string, err error) *OpError {
	return &OpError{
		Type:      errorType,
		Op:        op,
		Entity:    entity,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Precondition wraps err as an operation-aborting precondition failure.
func Precondition(op string, err error) *OpError {
	return NewOpError(ErrorTypePrecondition, op, "", err)
}

// Remote wraps a failed API call scoped to a single entity.
func Remote(op, entity string, err error) *OpError {
	return NewOpError(ErrorTypeRemote, op, entity, err)
}

// IsPrecondition reports whether err is (or wraps) a precondition failure,
// which must fail the whole operation rather than one entity.
func IsPrecondition(err error) bool {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Type == ErrorTypePrecondition
	}
	return false
}
