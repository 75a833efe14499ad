// Package store provides SQLite persistence for deployment jobs, artifacts
// and leases.
package store

import (
	"errors"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Lookup and uniqueness
	ErrNotFound    = errors.New("entity not found")
	ErrDuplicateID = errors.New("entity with this ID already exists")

	// ErrLeaseHeld is returned when an unexpired lease belongs to another owner.
	ErrLeaseHeld = errors.New("lease is held by another owner")

	// Database plumbing
	ErrConnectionFailed = errors.New("database connection failed")
	ErrMigrationFailed  = errors.New("database migration failed")
	ErrTxFailed         = errors.New("transaction failed")

	// ErrInvalidData is returned when a JSON column cannot be encoded or decoded.
	ErrInvalidData = errors.New("invalid data format")
)

// StoreError records which store operation failed and on which row.
type StoreError struct {
	Op      string // e.g. "CreateJob"
	Entity  string // "job", "artifact" or "lease"
	ID      string // build number, tag or lease name
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	parts := []string{e.Op}
	if e.Entity != "" {
		parts = append(parts, e.Entity)
	}
	if e.ID != "" {
		parts = append(parts, e.ID)
	}
	return strings.Join(parts, " ") + ": " + e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(op, entity, id, message string, err error) *StoreError {
	return &StoreError{Op: op, Entity: entity, ID: id, Message: message, Err: err}
}
