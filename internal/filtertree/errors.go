package filtertree

import (
	"errors"
	"fmt"

	"github.com/roach88/flowfilter/internal/partition"
)

// ErrorCode categorizes editor errors.
type ErrorCode string

const (
	// ErrCodeInvalidArgument indicates a bad property, cap or partition input.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeBranchNotFound indicates no list branch carries the name.
	ErrCodeBranchNotFound ErrorCode = "BRANCH_NOT_FOUND"
)

// Error is returned by Editor operations.
type Error struct {
	Code     ErrorCode
	Message  string
	Branch   string
	Property string
	Err      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Branch != "" {
		msg += fmt.Sprintf(" (branch=%q)", e.Branch)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a branch-not-found error.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == ErrCodeBranchNotFound
	}
	return false
}

// IsInvalidArgument reports whether err stems from a rejected argument,
// including partition argument errors.
func IsInvalidArgument(err error) bool {
	var fe *Error
	if errors.As(err, &fe) && fe.Code == ErrCodeInvalidArgument {
		return true
	}
	return errors.Is(err, partition.ErrInvalidArgument)
}

func newNotFound(branch string) *Error {
	return &Error{
		Code:    ErrCodeBranchNotFound,
		Message: "no list branch with this name",
		Branch:  branch,
	}
}

func newInvalidArgument(branch, property, message string) *Error {
	return &Error{
		Code:     ErrCodeInvalidArgument,
		Message:  message,
		Branch:   branch,
		Property: property,
	}
}
