package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound matches every *NotFoundError.
	ErrNotFound = errors.New("not found")
	// ErrForbidden matches every *AuthorizationError.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError reports malformed or missing input, one reason per field.
type ValidationError struct {
	Problems map[string]string
}

// Add records a problem for field. The first reason recorded for a field wins.
func (e *ValidationError) Add(field, reason string) {
	if e.Problems == nil {
		e.Problems = make(map[string]string)
	}
	if _, ok := e.Problems[field]; ok {
		return
	}
	e.Problems[field] = reason
}

// OrNil returns e when it holds at least one problem.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

// Fields returns the offending field names in sorted order.
func (e *ValidationError) Fields() []string {
	fields := make([]string, 0, len(e.Problems))
	for f := range e.Problems {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, f := range e.Fields() {
		parts = append(parts, f+": "+e.Problems[f])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NotFoundError reports a referenced record or user that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AuthorizationError reports a caller lacking ownership of a record or a role.
type AuthorizationError struct {
	UserID string
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %q not authorized: %s", e.UserID, e.Reason)
}

func (e *AuthorizationError) Is(target error) bool { return target == ErrForbidden }

// PersistenceError wraps a storage backend failure. Its message is meant for
// logs; callers outside the process only ever see a generic failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence classifies a storage error for op. Errors that already belong to
// the taxonomy pass through unchanged.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		verr *ValidationError
		perr *PersistenceError
	)
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden):
		return err
	case errors.As(err, &verr), errors.As(err, &perr):
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
