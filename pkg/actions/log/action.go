// Package log_action provides the log action, which records the triggering event in the engine log.
package log_action

import (
	"context"
	"log/slog"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/protocol"
	"github.com/dukex/stageflow/pkg/template"
)

type LogAction struct {
	Message string
	Level   string
}

func NewLogAction(config map[string]any) *LogAction {
	message, _ := config["message"].(string)

	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	return &LogAction{Message: message, Level: level}
}

func (a *LogAction) Execute(ctx context.Context, event models.Event, logger *slog.Logger) (*protocol.Result, error) {
	logger = logger.With("action_type", Kind)

	message, err := template.RenderString(a.Message, template.EventData(event))
	if err != nil {
		return nil, protocol.Permanent(err)
	}

	if message == "" {
		message = "Event received"
	}

	logger.Log(ctx, level(a.Level), message,
		"event", string(event.Kind),
		"pub_id", event.PubID,
		"stage_id", event.StageID,
		"depth", event.Depth,
	)

	return &protocol.Result{
		Output: map[string]any{
			"level":   a.Level,
			"message": message,
		},
	}, nil
}

func level(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
