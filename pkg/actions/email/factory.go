package email

import (
	"fmt"

	"github.com/dukex/stageflow/pkg/protocol"
	"github.com/dukex/stageflow/pkg/template"
)

type ActionFactory struct {
	mailer Mailer
}

// NewActionFactory creates an email factory. Actions created without a mailer fail permanently.
func NewActionFactory(mailer Mailer) *ActionFactory {
	return &ActionFactory{mailer: mailer}
}

func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	action := NewAction(f.mailer, config)

	for name, tmpl := range map[string]string{"to": action.To, "subject": action.Subject, "body": action.Body} {
		if _, err := template.Parse(tmpl); err != nil {
			return nil, fmt.Errorf("invalid %s template: %w", name, err)
		}
	}

	return action, nil
}

func (f *ActionFactory) ID() string {
	return Kind
}

func (f *ActionFactory) Name() string {
	return "Email"
}

func (f *ActionFactory) Description() string {
	return "Sends a plain-text email rendered from the triggering event."
}

func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"to": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Comma separated recipients. Supports templating.",
			},
			"from": map[string]any{
				"type":    "string",
				"default": defaultFrom,
			},
			"subject": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Subject line. Supports templating.",
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Plain-text body. Supports templating.",
			},
		},
		"required":             []any{"to", "subject", "body"},
		"additionalProperties": false,
	}
}
