package photom

import (
	"errors"
	"fmt"
)

// Sentinel errors for algorithmic dead-ends and lookups. They are data, not
// abort signals: the coordinator records them per (star, filter) unit and
// the batch continues.
var (
	// ErrInsufficientComparisonStars means no usable comparison star
	// survived candidate selection for a (star, filter) pair.
	ErrInsufficientComparisonStars = errors.New("insufficient comparison stars")

	// ErrInsufficientDataPoints means fewer than two light-curve points
	// survived ensemble combination and rejection.
	ErrInsufficientDataPoints = errors.New("insufficient data points")

	// ErrTimeout means a pipeline unit exceeded its per-unit budget.
	ErrTimeout = errors.New("unit timed out")

	// ErrNotFound is returned by database lookups for absent keys.
	ErrNotFound = errors.New("not found")
)

// ValidationError rejects a single malformed record at ingestion. Fatal to
// that record only.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// ConflictError reports an attempt to re-register immutable reference data
// (star, image, filter) under an existing id with different field values.
type ConflictError struct {
	Entity string
	ID     int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %d already exists with different values", e.Entity, e.ID)
}

// DuplicateError reports a second write of a (star, image) measurement.
type DuplicateError struct {
	Entity string
	Key    string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already recorded for %s", e.Entity, e.Key)
}

// StorageError wraps a persistence failure. The database guarantees the
// affected key is never left half-written when one of these surfaces.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
