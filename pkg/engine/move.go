package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stageflow/pkg/models"
)

// MoveDestinationKey is the payload key of a pub-move-requested event naming
// the destination stage.
const MoveDestinationKey = "stage_id"

var errMissingDestination = errors.New("move request has no destination stage")

// move applies a pub-move-requested event emitted by a run. The request carries
// the depth of the event that run handled, so the pub-left-stage and
// pub-entered-stage events it returns are one level deeper than that event. A
// rejected move is recorded against the run that requested it.
func (p *pass) move(ctx context.Context, logger *slog.Logger, event models.Event) []models.Event {
	destination, _ := event.Payload[MoveDestinationKey].(string)

	source, err := p.applyMove(ctx, event, destination)
	if err != nil {
		logger.WarnContext(ctx, "Move rejected", "destination", destination, "error", err)
		p.rejectMove(ctx, event, err)

		return nil
	}

	if source == destination {
		logger.DebugContext(ctx, "Pub already in destination stage", "destination", destination)

		return nil
	}

	logger.InfoContext(ctx, "Pub moved", "from", source, "to", destination)

	payload := func() map[string]any {
		return map[string]any{
			"from_stage_id": source,
			"to_stage_id":   destination,
		}
	}

	left := event.Child(models.EventKindPubLeftStage, source, payload(), event.Origin)
	entered := event.Child(models.EventKindPubEnteredStage, destination, payload(), event.Origin)

	return []models.Event{left, entered}
}

// applyMove validates the destination and updates the pub pointer. It returns
// the stage the pub was in; equal source and destination means nothing changed.
func (p *pass) applyMove(ctx context.Context, event models.Event, destination string) (string, error) {
	if destination == "" {
		return "", errMissingDestination
	}

	if event.PubID == "" {
		return "", errors.New("move request has no pub")
	}

	pubs := p.engine.store.PubRepository()

	pub, err := pubs.GetByID(ctx, event.PubID)
	if err != nil {
		return "", err
	}

	if pub.CommunityID != event.CommunityID {
		return "", fmt.Errorf("%w: pub %s belongs to %s", ErrCommunityMismatch, pub.ID, pub.CommunityID)
	}

	stage, err := p.engine.store.StageRepository().GetByID(ctx, destination)
	if err != nil {
		return "", err
	}

	if stage.CommunityID != pub.CommunityID {
		return "", fmt.Errorf("%w: stage %s belongs to %s", ErrCommunityMismatch, stage.ID, stage.CommunityID)
	}

	if pub.StageID == destination {
		return pub.StageID, nil
	}

	err = pubs.MoveToStage(ctx, pub.ID, destination)
	if err != nil {
		return "", err
	}

	return pub.StageID, nil
}

func (p *pass) rejectMove(ctx context.Context, event models.Event, cause error) {
	if event.Origin == nil {
		p.fail(fmt.Errorf("move rejected: %w", cause))

		return
	}

	p.collect(p.record(ctx, event, event.Origin.RuleID, event.Origin.ActionInstanceID, models.ReasonMoveRejected, cause))
}
