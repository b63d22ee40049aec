// Package move provides the move action, which requests that the engine move
// the triggering pub to another stage.
package move

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/protocol"
	"github.com/dukex/stageflow/pkg/template"
)

const (
	Kind = "move"

	// DestinationKey is the payload key carrying the destination stage.
	DestinationKey = "stage_id"
)

var ErrNoPub = errors.New("move requires an event about a pub")

type ActionFactory struct{}

func NewActionFactory() *ActionFactory {
	return &ActionFactory{}
}

func (*ActionFactory) ID() string {
	return Kind
}

func (*ActionFactory) Name() string {
	return "Move"
}

func (*ActionFactory) Description() string {
	return "Moves the pub to another stage of the same community."
}

func (*ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"stage_id": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Destination stage. Supports templating.",
			},
		},
		"required":             []any{"stage_id"},
		"additionalProperties": false,
	}
}

func (*ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	stageID, _ := config["stage_id"].(string)

	if _, err := template.Parse(stageID); err != nil {
		return nil, err
	}

	return &Action{StageID: stageID}, nil
}

// Action emits a pub-move-requested event. The engine performs the move.
type Action struct {
	StageID string
}

func (a *Action) Execute(ctx context.Context, event models.Event, logger *slog.Logger) (*protocol.Result, error) {
	if event.PubID == "" {
		return nil, protocol.Permanent(ErrNoPub)
	}

	destination, err := template.RenderString(a.StageID, template.EventData(event))
	if err != nil {
		return nil, protocol.Permanent(err)
	}

	logger.DebugContext(ctx, "Requesting move", "action_type", Kind, "pub_id", event.PubID, "to_stage_id", destination)

	return &protocol.Result{
		Output: map[string]any{"requested_stage_id": destination},
		Emitted: []models.Event{{
			Kind:    models.EventKindPubMoveRequested,
			Payload: map[string]any{DestinationKey: destination},
		}},
	}, nil
}
