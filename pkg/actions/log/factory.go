package log_action

import (
	"fmt"

	"github.com/dukex/stageflow/pkg/protocol"
	"github.com/dukex/stageflow/pkg/template"
)

const Kind = "log"

func NewLogActionFactory() *LogActionFactory {
	return &LogActionFactory{}
}

type LogActionFactory struct{}

func (*LogActionFactory) ID() string {
	return Kind
}

func (*LogActionFactory) Name() string {
	return "Log"
}

func (*LogActionFactory) Description() string {
	return "Writes a message about the triggering event to the engine log."
}

func (*LogActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"level": map[string]any{
				"type":        "string",
				"description": "Log level of the entry",
				"enum":        []any{"debug", "info", "warn", "error"},
				"default":     "info",
			},
			"message": map[string]any{
				"type":        "string",
				"description": "Message to log. Supports templating with event data.",
				"examples": []string{
					"Pub {{ .pub_id }} entered {{ .stage_id }}",
				},
			},
		},
		"additionalProperties": false,
	}
}

func (f *LogActionFactory) Create(config map[string]any) (protocol.Action, error) {
	action := NewLogAction(config)

	if _, err := template.Parse(action.Message); err != nil {
		return nil, fmt.Errorf("invalid message template: %w", err)
	}

	return action, nil
}
