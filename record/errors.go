package record

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common errors returned by storage operations.
var (
	// ErrNotFound is returned when a record is absent from every tier.
	ErrNotFound = errors.New("record: not found")

	// ErrInvalidID is returned when an id is empty or malformed.
	ErrInvalidID = errors.New("record: invalid id")
)

// ValidationError reports malformed input, rejected before any storage I/O.
type ValidationError struct {
	// Field is the offending input field.
	Field string

	// Reason explains what is wrong with the value.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("record: invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageError reports a failure of a specific tier's backend. Callers can
// distinguish "never existed" (ErrNotFound) from "temporarily unreachable"
// (StorageError) by error type.
type StorageError struct {
	// Tier is the backend that failed.
	Tier Tier

	// Op is the operation that was attempted, e.g. "retrieve".
	Op string

	// Err is the underlying backend error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("record: %s tier %s failed: %v", e.Tier, e.Op, e.Err)
}

// Unwrap returns the underlying backend error.
func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps a backend failure with its tier and operation.
func NewStorageError(tier Tier, op string, err error) *StorageError {
	return &StorageError{Tier: tier, Op: op, Err: err}
}

// DeleteError aggregates per-tier failures of a multi-tier delete. Tiers that
// succeeded are not rolled back; the delete is best-effort complete for them.
type DeleteError struct {
	// ID is the record whose delete partially failed.
	ID string

	// Failures maps each failed tier to its error.
	Failures map[Tier]error
}

// Error lists every failed tier and reason.
func (e *DeleteError) Error() string {
	tiers := make([]string, 0, len(e.Failures))
	for tier := range e.Failures {
		tiers = append(tiers, string(tier))
	}
	sort.Strings(tiers)

	parts := make([]string, 0, len(tiers))
	for _, tier := range tiers {
		parts = append(parts, fmt.Sprintf("%s: %v", tier, e.Failures[Tier(tier)]))
	}
	return fmt.Sprintf("record: delete %s failed on %d tier(s): %s", e.ID, len(e.Failures), strings.Join(parts, "; "))
}

// FailedTiers returns the tiers that failed, sorted by name.
func (e *DeleteError) FailedTiers() []Tier {
	tiers := make([]Tier, 0, len(e.Failures))
	for tier := range e.Failures {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	return tiers
}

// IsNotFound reports whether the error is, or wraps, ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
