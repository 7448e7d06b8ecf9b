// Package ferrors defines the typed error kinds surfaced across the fleet
// workflow engine. Callers use errors.As to recover a specific kind and
// decide how to report it (HTTP status, CLI exit code, retry policy).
package ferrors

import "fmt"

// NotFoundError means a referenced Task, WorkflowRun, WorkflowStep, or
// PoiMapping does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ConflictError means the requested operation is disallowed given the
// current state of the resource (robot busy, run not RUNNING, step not
// MANUAL_CONFIRM).
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}

// InvalidArgumentError means the caller supplied a bad decision, an
// unresolvable POI target, or another malformed request.
type InvalidArgumentError struct {
	Field   string
	Message string
}

func (e *InvalidArgumentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid argument: %s", e.Message)
}

// UnavailableError means the operation is blocked by an operator switch,
// such as SAFE_MODE preventing new vendor task creation.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("unavailable: %s", e.Reason)
}

// InternalError wraps an unexpected failure, typically from the vendor
// API, the robot directory, or the persistence layer.
type InternalError struct {
	Op    string
	Cause error
}

func (e *InternalError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("internal error during %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("internal error: %v", e.Cause)
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}
