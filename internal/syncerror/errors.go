// Package syncerror defines the error taxonomy of the sync core: local persistence
// failures, remote call failures, rate lookup failures and input validation.
package syncerror

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a transaction or category id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrPredefinedCategory is returned when deleting a predefined category.
	ErrPredefinedCategory = errors.New("predefined categories cannot be deleted")
	// ErrDuplicateCategory is returned when a category name is already taken.
	ErrDuplicateCategory = errors.New("category name already exists")
	// ErrNoIdentity is returned by operations that need an authenticated owner.
	ErrNoIdentity = errors.New("no authenticated identity")
	// ErrInvalidToken is returned when a session token cannot be verified.
	ErrInvalidToken = errors.New("invalid session token")
)

// PersistError represents a failed read or write against the local durable store.
type PersistError struct {
	Key string
	Op  string // "get", "set" or "remove"
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("local store %s %q failed: %v", e.Op, e.Key, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// RemoteError represents a failed call against the remote backing store.
type RemoteError struct {
	Op         string
	Collection string
	ID         string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("remote %s on %s/%s failed: %v", e.Op, e.Collection, e.ID, e.Err)
	}
	return fmt.Sprintf("remote %s on %s failed: %v", e.Op, e.Collection, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// RateError represents a failed currency rate lookup. It is the only error a
// routine user action can surface.
type RateError struct {
	From string
	To   string
	Err  error
}

func (e *RateError) Error() string {
	return fmt.Sprintf("exchange rate %s->%s unavailable: %v", e.From, e.To, e.Err)
}

func (e *RateError) Unwrap() error {
	return e.Err
}

// ValidationError represents rejected input to a mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
