// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrStageNotFound indicates a stage was not found by the given identifier.
	ErrStageNotFound = errors.New("stage not found")

	// ErrRuleNotFound indicates a rule was not found by the given identifier.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrActionInstanceNotFound indicates an action instance was not found.
	ErrActionInstanceNotFound = errors.New("action instance not found")

	// ErrPubNotFound indicates a pub was not found by the given identifier.
	ErrPubNotFound = errors.New("pub not found")

	// ErrStageNotEmpty indicates a stage still holds pubs and cannot be deleted.
	ErrStageNotEmpty = errors.New("stage still holds pubs")

	// ErrRunAlreadyExists indicates a run with the same id was already appended.
	ErrRunAlreadyExists = errors.New("run already exists")

	// ErrInvalidID indicates an identifier that cannot be stored safely.
	ErrInvalidID = errors.New("invalid identifier")
)

// EntityError wraps repository errors with the operation and entity involved.
type EntityError struct {
	Op     string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	Entity string // Entity type (stage, rule, action_instance, pub, run)
	ID     string // Entity ID if applicable
	Err    error  // Underlying error
}

func (e *EntityError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s operation failed for %s: %v", e.Op, e.Entity, e.Err)
	}

	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Entity, e.ID, e.Err)
}

func (e *EntityError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for entity errors.
func (e *EntityError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewEntityError creates a new entity error with context.
func NewEntityError(op, entity, id string, err error) *EntityError {
	return &EntityError{
		Op:     op,
		Entity: entity,
		ID:     id,
		Err:    err,
	}
}

// IsStageNotFound checks if an error indicates a stage was not found.
func IsStageNotFound(err error) bool {
	return errors.Is(err, ErrStageNotFound)
}

// IsRuleNotFound checks if an error indicates a rule was not found.
func IsRuleNotFound(err error) bool {
	return errors.Is(err, ErrRuleNotFound)
}

// IsActionInstanceNotFound checks if an error indicates an action instance was not found.
func IsActionInstanceNotFound(err error) bool {
	return errors.Is(err, ErrActionInstanceNotFound)
}

// IsPubNotFound checks if an error indicates a pub was not found.
func IsPubNotFound(err error) bool {
	return errors.Is(err, ErrPubNotFound)
}

// IsNotFound checks if an error indicates any entity was not found.
func IsNotFound(err error) bool {
	return IsStageNotFound(err) || IsRuleNotFound(err) || IsActionInstanceNotFound(err) || IsPubNotFound(err)
}
