package workload

import (
	"errors"
	"fmt"
)

// UnitErrorCode categorizes unit-level failures.
type UnitErrorCode string

const (
	// ErrCodeAllocationFailed indicates the region could not be acquired.
	ErrCodeAllocationFailed UnitErrorCode = "ALLOCATION_FAILED"

	// ErrCodeIntegrityMismatch indicates observed memory diverged from the
	// deterministic expected pattern. This is the defining failure signal of
	// the whole harness.
	ErrCodeIntegrityMismatch UnitErrorCode = "INTEGRITY_MISMATCH"
)

// UnitError represents a failure local to one workload unit.
//
// Unit errors are recorded in that unit's result and never propagated as
// aborts to sibling units.
type UnitError struct {
	Code     UnitErrorCode
	Identity Identity
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *UnitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: unit %s: %s: %v", e.Code, e.Identity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: unit %s: %s", e.Code, e.Identity, e.Message)
}

// Unwrap returns the underlying error.
func (e *UnitError) Unwrap() error {
	return e.Err
}

// isAllocationFailure reports whether err is an allocation failure.
// Uses errors.As to handle wrapped errors.
func isAllocationFailure(err error) bool {
	var ue *UnitError
	if errors.As(err, &ue) {
		return ue.Code == ErrCodeAllocationFailed
	}
	return false
}

// MismatchError describes a single observed/expected divergence.
type MismatchError struct {
	Identity Identity
	Offset   int
	Expected uint32
	Observed uint32
}

// Error implements the error interface.
func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: unit %s: word %d: expected 0x%08x, observed 0x%08x",
		ErrCodeIntegrityMismatch, e.Identity, e.Offset, e.Expected, e.Observed)
}
