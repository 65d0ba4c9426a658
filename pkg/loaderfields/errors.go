package loaderfields

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is checks across packages
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrStorage    = errors.New("storage unavailable")
	ErrProjection = errors.New("projection failed")
)

// ValidationError describes one invalid submitted field
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid field %q: %s", e.Field, e.Reason)
}

// ValidationErrors aggregates every field-level failure of a request
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (e *ValidationErrors) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field, fe.Reason))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a failure
func (e *ValidationErrors) Add(field, reason string) {
	e.Errors = append(e.Errors, ValidationError{Field: field, Reason: reason})
}

// Fields returns the names of the invalid fields in report order
func (e *ValidationErrors) Fields() []string {
	names := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		names = append(names, fe.Field)
	}
	return names
}

// ErrOrNil returns e as an error when it holds failures, nil otherwise
func (e *ValidationErrors) ErrOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// NotFoundError reports a missing loader, enum, enum value, field or version
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NotFound builds a NotFoundError
func NotFound(kind string, key any) error {
	return &NotFoundError{Kind: kind, Key: fmt.Sprint(key)}
}

// ConflictError reports a uniqueness or referential integrity violation
type ConflictError struct {
	Kind   string
	Key    string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Key, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Conflict builds a ConflictError
func Conflict(kind string, key any, reason string) error {
	return &ConflictError{Kind: kind, Key: fmt.Sprint(key), Reason: reason}
}

// StorageError wraps a transient failure of the backing store. Callers may
// retry the whole operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Storage wraps err as a StorageError for operation op. Errors that already
// carry a classification are returned unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrStorage) {
		return err
	}
	var verrs *ValidationErrors
	if errors.As(err, &verrs) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
