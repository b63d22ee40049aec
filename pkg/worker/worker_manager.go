// Package worker consumes pub events from the event bus, runs them through the
// engine and announces the recorded runs.
package worker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/stageflow/pkg/engine"
	"github.com/dukex/stageflow/pkg/eventbus"
	"github.com/dukex/stageflow/pkg/events"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
)

// Engine is the part of *engine.Engine the worker drives.
type Engine interface {
	Submit(ctx context.Context, event models.Event) ([]*models.Run, error)
	TriggerManual(ctx context.Context, communityID, instanceID, pubID string, payload map[string]any) ([]*models.Run, error)
}

type WorkerManager struct {
	id       string
	logger   *slog.Logger
	engine   Engine
	eventBus eventbus.EventBus
}

func NewWorkerManager(id string, eng Engine, eventBus eventbus.EventBus, logger *slog.Logger) *WorkerManager {
	return &WorkerManager{
		id:       id,
		logger:   logger.With("module", "stageflow-worker", "worker_id", id),
		engine:   eng,
		eventBus: eventBus,
	}
}

// Start subscribes to the bus and blocks until ctx is done.
func (w *WorkerManager) Start(ctx context.Context) error {
	if err := w.Listen(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	w.logger.Info("Shutting down worker")

	return nil
}

// Listen registers the handlers and subscribes without blocking.
func (w *WorkerManager) Listen(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	err := w.eventBus.Handle(events.PubEventSubmittedType, w.handlePubEventSubmitted)
	if err != nil {
		return err
	}

	err = w.eventBus.Handle(events.ManualTriggerRequestedType, w.handleManualTriggerRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	return nil
}

func (w *WorkerManager) handlePubEventSubmitted(ctx context.Context, event any) error {
	submitted, ok := event.(*events.PubEventSubmitted)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for PubEventSubmitted")

		return nil
	}

	logger := w.logger.With(
		"community_id", submitted.Event.CommunityID,
		"pub_id", submitted.Event.PubID,
		"event", submitted.Event.Kind,
		"message_id", submitted.ID,
	)
	logger.InfoContext(ctx, "Processing pub event")

	runs, err := w.engine.Submit(ctx, submitted.Event)

	return w.finish(ctx, logger, runs, err)
}

func (w *WorkerManager) handleManualTriggerRequested(ctx context.Context, event any) error {
	requested, ok := event.(*events.ManualTriggerRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ManualTriggerRequested")

		return nil
	}

	logger := w.logger.With(
		"community_id", requested.CommunityID,
		"action_instance_id", requested.ActionInstanceID,
		"pub_id", requested.PubID,
		"message_id", requested.ID,
	)
	logger.InfoContext(ctx, "Processing manual trigger")

	runs, err := w.engine.TriggerManual(ctx, requested.CommunityID, requested.ActionInstanceID, requested.PubID, requested.Payload)

	return w.finish(ctx, logger, runs, err)
}

// finish publishes the runs. A pass that recorded nothing and failed for a
// reason other than bad input is handed back to the bus for redelivery.
func (w *WorkerManager) finish(ctx context.Context, logger *slog.Logger, runs []*models.Run, err error) error {
	for _, run := range runs {
		recorded := events.NewRunRecorded(run, w.id)

		if publishErr := w.eventBus.Publish(ctx, recorded.Key(), recorded); publishErr != nil {
			logger.ErrorContext(ctx, "Failed to publish run", "run_id", run.ID, "error", publishErr)
		}
	}

	if err == nil {
		logger.InfoContext(ctx, "Event settled", "runs", len(runs))

		return nil
	}

	logger.ErrorContext(ctx, "Event settled with errors", "runs", len(runs), "error", err)

	if len(runs) == 0 && retryable(err) {
		return err
	}

	return nil
}

func retryable(err error) bool {
	return !errors.Is(err, engine.ErrInvalidEvent) &&
		!errors.Is(err, engine.ErrCommunityMismatch) &&
		!persistence.IsNotFound(err)
}
