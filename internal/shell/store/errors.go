// Package store provides persistence for templates.
package store

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// ErrNotFound is returned when a template is not found.
	ErrNotFound = errors.New("template not found")

	// ErrDuplicateID is returned when creating a template whose
	// (namespace, id) already exists.
	ErrDuplicateID = errors.New("template with this id already exists in the namespace")

	// ErrConnectionFailed is returned when database connection fails.
	ErrConnectionFailed = errors.New("database connection failed")

	// ErrMigrationFailed is returned when database migration fails.
	ErrMigrationFailed = errors.New("database migration failed")

	// ErrInvalidData is returned when serialization of template content fails.
	ErrInvalidData = errors.New("invalid data format")

	// ErrTxFailed is returned when a transaction operation fails.
	ErrTxFailed = errors.New("transaction failed")
)

// StoreError wraps errors with operation context.
type StoreError struct {
	Op        string // Operation that failed (e.g., "CreateTemplate")
	Namespace string // Namespace if applicable
	ID        string // Template id if applicable
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	if e.Namespace != "" && e.ID != "" {
		return fmt.Sprintf("%s %s/%s: %s", e.Op, e.Namespace, e.ID, e.Message)
	}
	if e.Namespace != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Namespace, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, namespace, id, message string, err error) *StoreError {
	return &StoreError{
		Op:        op,
		Namespace: namespace,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// IsNotFound reports whether err means the template does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateID reports whether err means the (namespace, id) key is taken.
func IsDuplicateID(err error) bool {
	return errors.Is(err, ErrDuplicateID)
}
