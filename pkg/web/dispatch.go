package web

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/stageflow/pkg/eventbus"
	"github.com/dukex/stageflow/pkg/events"
	"github.com/dukex/stageflow/pkg/models"
)

// Dispatch is the outcome of handing an event to the engine.
type Dispatch struct {
	// Queued is set when the work was published for a worker instead of run inline.
	Queued bool          `json:"queued"`
	Runs   []*models.Run `json:"runs"`
	Errors []string      `json:"errors,omitempty"`
}

// Dispatcher hands submitted events and manual triggers to the engine.
type Dispatcher interface {
	Submit(ctx context.Context, event models.Event) (*Dispatch, error)
	TriggerManual(ctx context.Context, communityID, instanceID, pubID string, payload map[string]any) (*Dispatch, error)
}

// Engine is the subset of the trigger engine the API runs inline.
type Engine interface {
	Submit(ctx context.Context, event models.Event) ([]*models.Run, error)
	TriggerManual(ctx context.Context, communityID, instanceID, pubID string, payload map[string]any) ([]*models.Run, error)
}

// Fatal reports errors that mean nothing ran; the rest are returned next to the runs.
type Fatal func(err error) bool

type engineDispatcher struct {
	engine Engine
	fatal  Fatal
}

// NewEngineDispatcher runs events in the API process and waits for the
// propagation tree to settle.
func NewEngineDispatcher(engine Engine, fatal Fatal) Dispatcher {
	return &engineDispatcher{engine: engine, fatal: fatal}
}

func (d *engineDispatcher) Submit(ctx context.Context, event models.Event) (*Dispatch, error) {
	return d.settle(d.engine.Submit(ctx, event))
}

func (d *engineDispatcher) TriggerManual(
	ctx context.Context,
	communityID, instanceID, pubID string,
	payload map[string]any,
) (*Dispatch, error) {
	return d.settle(d.engine.TriggerManual(ctx, communityID, instanceID, pubID, payload))
}

func (d *engineDispatcher) settle(runs []*models.Run, err error) (*Dispatch, error) {
	if err != nil && (len(runs) == 0 && d.fatal(err)) {
		return nil, err
	}

	dispatch := &Dispatch{Runs: runs}
	if dispatch.Runs == nil {
		dispatch.Runs = []*models.Run{}
	}

	if err != nil {
		dispatch.Errors = splitJoined(err)
	}

	return dispatch, nil
}

func splitJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		messages := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			messages = append(messages, e.Error())
		}

		return messages
	}

	return []string{err.Error()}
}

type busDispatcher struct {
	publisher eventbus.EventPublisher
}

// NewBusDispatcher publishes events for workers and returns immediately.
func NewBusDispatcher(publisher eventbus.EventPublisher) Dispatcher {
	return &busDispatcher{publisher: publisher}
}

func (d *busDispatcher) Submit(ctx context.Context, event models.Event) (*Dispatch, error) {
	message := events.NewPubEventSubmitted(event)
	if err := d.publisher.Publish(ctx, message.Key(), message); err != nil {
		return nil, fmt.Errorf("failed to publish event: %w", err)
	}

	return &Dispatch{Queued: true, Runs: []*models.Run{}}, nil
}

func (d *busDispatcher) TriggerManual(
	ctx context.Context,
	communityID, instanceID, pubID string,
	payload map[string]any,
) (*Dispatch, error) {
	message := events.NewManualTriggerRequested(communityID, instanceID, pubID, payload)
	if err := d.publisher.Publish(ctx, message.Key(), message); err != nil {
		return nil, fmt.Errorf("failed to publish manual trigger: %w", err)
	}

	return &Dispatch{Queued: true, Runs: []*models.Run{}}, nil
}
