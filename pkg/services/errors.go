// Package services implements the authoring operations on stages, rules, action
// instances and pubs, enforcing the invariants the engine relies on.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/registry"
	"github.com/dukex/stageflow/pkg/schema"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest    = errors.New("invalid request")
	ErrConfigInvalid     = errors.New("config is invalid")
	ErrEventNotBindable  = errors.New("event kind cannot be bound to a rule")
	ErrCommunityMismatch = errors.New("entities belong to different communities")
	ErrUnknownActionKind = registry.ErrUnknownActionKind

	// Business Logic Conflicts (409 Conflict).
	ErrStageNotEmpty    = errors.New("stage still holds pubs")
	ErrInstanceInUse    = errors.New("action instance is bound by rules")
	ErrInvalidMigration = errors.New("invalid migration target")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
	// Fields lists per-field config failures.
	Fields []models.FieldError
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrConfigInvalid) ||
		errors.Is(err, ErrEventNotBindable) ||
		errors.Is(err, ErrCommunityMismatch) ||
		errors.Is(err, ErrUnknownActionKind)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrStageNotEmpty) ||
		errors.Is(err, ErrInstanceInUse) ||
		errors.Is(err, ErrInvalidMigration)
}

// FieldErrors returns the per-field failures carried by err, if any.
func FieldErrors(err error) []models.FieldError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr.Fields
	}

	return nil
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func newConfigError(op string, fieldErrors []models.FieldError) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    "config_invalid",
		Message: schema.FormatErrors(fieldErrors),
		Err:     ErrConfigInvalid,
		Fields:  fieldErrors,
	}
}
