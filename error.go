package pmtree

import (
	"errors"
	"fmt"
)

// ErrorCode enumerates the error kinds surfaced across the engine, record
// classes, nesting helper and façade (spec §6/§7).
type ErrorCode int

const (
	// Ok indicates success; rarely constructed, but useful as a zero value.
	Ok ErrorCode = iota
	// Invalid marks a malformed key or value (wrong length, missing NUL, etc).
	Invalid
	// NonExistent marks no matching record, or a tombstone hit on an EQ probe.
	NonExistent
	// OutOfMemory marks a PMM allocation failure.
	OutOfMemory
	// NoHandle marks use of a tree handle that is Closed or Destroyed.
	NoHandle
	// NoPermission marks an operation rejected by the backing store's access rules.
	NoPermission
	// Truncated marks a fetch whose caller buffer was smaller than the record.
	Truncated
	// StageViolation marks a mutation attempted outside a WORK-stage transaction.
	StageViolation
	// IoFailure marks a PMM-reported persistence failure.
	IoFailure
)

func (c ErrorCode) String() string {
	switch c {
	case Ok:
		return "Ok"
	case Invalid:
		return "Invalid"
	case NonExistent:
		return "NonExistent"
	case OutOfMemory:
		return "OutOfMemory"
	case NoHandle:
		return "NoHandle"
	case NoPermission:
		return "NoPermission"
	case Truncated:
		return "Truncated"
	case StageViolation:
		return "StageViolation"
	case IoFailure:
		return "IoFailure"
	default:
		return "Unknown"
	}
}

// Error is the error type returned across package boundaries. UserData
// carries optional context such as the raw key bytes of the record involved
// (for NonExistent), a persistent identifier, or nil.
type Error struct {
	Code     ErrorCode
	Err      error
	UserData any
}

func (e Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("pmtree: %s (key: %v)", e.Code, e.UserData)
	}
	return fmt.Errorf("pmtree: %s (key: %v): %w", e.Code, e.UserData, e.Err).Error()
}

// Unwrap allows errors.Is/errors.As to reach the wrapped cause.
func (e Error) Unwrap() error {
	return e.Err
}

// New constructs an Error with the given code and optional cause/user data.
func New(code ErrorCode, err error, userData any) Error {
	return Error{Code: code, Err: err, UserData: userData}
}

// CodeOf extracts the ErrorCode from err if it is (or wraps) a pmtree.Error,
// otherwise returns Ok as "no specific code known".
func CodeOf(err error) ErrorCode {
	if err == nil {
		return Ok
	}
	var e Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Ok
}
