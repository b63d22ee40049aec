package schema

import (
	"fmt"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/robfig/cron/v3"
)

var ruleConfigSchemas = map[models.EventKind]map[string]any{
	models.EventKindPubEnteredStage: emptyObject(),
	models.EventKindPubLeftStage:    emptyObject(),
	models.EventKindManual:          emptyObject(),
	models.EventKindPubFieldChanged: {
		"type": "object",
		"properties": map[string]any{
			"field": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Only fire when this pub field changed",
			},
		},
		"additionalProperties": false,
	},
	models.EventKindScheduled: {
		"type": "object",
		"properties": map[string]any{
			"cron": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Standard five-field cron expression",
			},
		},
		"required":             []string{"cron"},
		"additionalProperties": false,
	},
}

func emptyObject() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
	}
}

// RuleConfigSchema returns the fixed rule-config schema for kind.
func RuleConfigSchema(kind models.EventKind) (map[string]any, bool) {
	declared, ok := ruleConfigSchemas[kind]

	return declared, ok
}

// ValidateRuleConfig checks a rule-level config against the schema of its event kind.
func ValidateRuleConfig(kind models.EventKind, config map[string]any) []models.FieldError {
	declared, ok := ruleConfigSchemas[kind]
	if !ok {
		return []models.FieldError{{
			Path:    "event",
			Type:    "enum",
			Message: fmt.Sprintf("event kind %q cannot be bound to a rule", kind),
		}}
	}

	_, fieldErrors := MergeAndValidate(declared, config)

	if kind == models.EventKindScheduled && len(fieldErrors) == 0 {
		expr, _ := config["cron"].(string)
		if _, err := cron.ParseStandard(expr); err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{
				Path:    "cron",
				Type:    "format",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return fieldErrors
}

// RuleMatches reports whether a rule's filter config accepts the event.
// The config is assumed to be valid.
func RuleMatches(rule *models.Rule, event models.Event) bool {
	switch rule.Event {
	case models.EventKindPubFieldChanged:
		field, _ := rule.Config["field"].(string)
		if field == "" {
			return true
		}

		changed, _ := event.Payload["field"].(string)

		return changed == field
	case models.EventKindScheduled:
		expr, _ := rule.Config["cron"].(string)
		fired, _ := event.Payload["cron"].(string)

		return expr == fired
	default:
		return true
	}
}
