package domain

import (
	"errors"
	"fmt"

	"github.com/treeshop/treeshop-ops-go/internal/pricing"
)

// Error types for consistent error handling across the API.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrInvalidTransition indicates a state change the entity's lifecycle forbids.
type ErrInvalidTransition struct {
	Entity string
	From   string
	To     string
	Reason string
}

func (e *ErrInvalidTransition) Error() string {
	msg := fmt.Sprintf("invalid %s transition from %s", e.Entity, e.From)
	if e.To != "" {
		msg += " to " + e.To
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// ErrVersionConflict indicates the record changed since the caller read it.
type ErrVersionConflict struct {
	Resource string
	ID       string
	Expected int
	Actual   int
}

func (e *ErrVersionConflict) Error() string {
	return fmt.Sprintf("%s %s was modified: expected version %d, found %d", e.Resource, e.ID, e.Expected, e.Actual)
}

// ErrReferenceMissing indicates an identifier that points at no record.
type ErrReferenceMissing struct {
	Field    string
	Resource string
	ID       string
}

func (e *ErrReferenceMissing) Error() string {
	return fmt.Sprintf("'%s' references unknown %s %s", e.Field, e.Resource, e.ID)
}

// ErrConflict indicates the operation clashes with the resource's current state.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnprocessable indicates well-formed input the operation cannot use,
// such as a polygon with too few points.
type ErrUnprocessable struct {
	Message string
}

func (e *ErrUnprocessable) Error() string { return e.Message }

// ErrUnauthorized indicates an invalid or missing identity.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// invalid converts a calculator input error into ErrValidation and passes
// anything else through.
func invalid(err error) error {
	var inputErr *pricing.InputError
	if errors.As(err, &inputErr) {
		return &ErrValidation{Field: inputErr.Field, Message: inputErr.Reason}
	}
	return err
}

func required(field, value string) error {
	if value == "" {
		return &ErrValidation{Field: field, Message: "is required"}
	}
	return nil
}
