package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no flow or revision matches.
	ErrNotFound = errors.New("flow not found")

	// ErrVersionConflict is returned when a write's expected version does
	// not match the stored one.
	ErrVersionConflict = errors.New("version conflict")
)

// ConflictError describes a rejected write.
type ConflictError struct {
	FlowID   string
	Expected int64
	Actual   int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: flow %q expected version %d, stored version %d",
		ErrVersionConflict, e.FlowID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error {
	return ErrVersionConflict
}
