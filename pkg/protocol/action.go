// Package protocol defines the interfaces and contracts for pluggable actions.
package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/stageflow/pkg/models"
)

// Result is what an action returns after a successful execution.
type Result struct {
	// Output is stored on the run as its result payload.
	Output map[string]any
	// Emitted are follow-up events. The engine fills community, pub and depth.
	Emitted []models.Event
}

// Action is one executable action, created from a merged and validated config.
//
// Execute must honor ctx cancellation. Side effects are the action's own
// responsibility, including idempotency when it is cancelled or retried.
type Action interface {
	Execute(ctx context.Context, event models.Event, logger *slog.Logger) (*Result, error)
}

// ActionFactory creates actions and provides metadata about the action kind.
type ActionFactory interface {
	// Create creates a new action with the given merged configuration
	Create(config map[string]any) (Action, error)

	// ID returns the unique kind identifier for this action
	ID() string

	// Name returns the human-readable name for this action
	Name() string

	// Description returns a description of what this action does
	Description() string

	// Schema returns the JSON schema for configuring this action, including defaults
	Schema() map[string]any
}

// TimeoutProvider is implemented by factories whose actions need a timeout other
// than the engine default.
type TimeoutProvider interface {
	Timeout() time.Duration
}
