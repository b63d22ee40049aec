package webhook

import (
	"fmt"
	"net/http"
	"time"

	"github.com/dukex/stageflow/pkg/protocol"
	"github.com/dukex/stageflow/pkg/template"
)

const (
	Kind = "webhook"

	defaultTimeout = 15 * time.Second
)

// ActionFactory creates webhook actions sharing one HTTP client.
type ActionFactory struct {
	client *http.Client
}

// NewActionFactory creates a webhook factory. A nil client uses http.DefaultClient.
func NewActionFactory(client *http.Client) *ActionFactory {
	if client == nil {
		client = http.DefaultClient
	}

	return &ActionFactory{client: client}
}

// Create creates a new webhook action from the merged configuration.
func (f *ActionFactory) Create(config map[string]any) (protocol.Action, error) {
	action, err := NewAction(f.client, config)
	if err != nil {
		return nil, err
	}

	templates := map[string]string{"url": action.URL, "body": action.Body}
	for key, value := range action.Headers {
		templates["header "+key] = value
	}

	for name, tmpl := range templates {
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
	return "Webhook"
}

func (f *ActionFactory) Description() string {
	return "Sends an HTTP request about the triggering event to an external URL."
}

// Timeout bounds a single webhook attempt.
func (f *ActionFactory) Timeout() time.Duration {
	return defaultTimeout
}

// Schema returns the JSON schema for configuring this action.
func (f *ActionFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"title":       "URL",
				"type":        "string",
				"minLength":   1,
				"description": "The URL to send the request to. Supports templating with event data.",
				"examples": []string{
					"https://api.example.com/hooks/stageflow",
					"https://api.example.com/pubs/{{ .pub_id }}",
				},
			},
			"method": map[string]any{
				"type":        "string",
				"description": "HTTP method to use",
				"default":     http.MethodPost,
				"enum":        []any{"GET", "POST", "PUT", "DELETE", "PATCH"},
			},
			"headers": map[string]any{
				"type":        "object",
				"description": "HTTP headers to include in the request. Values support templating.",
				"additionalProperties": map[string]any{
					"type": "string",
				},
			},
			"body": map[string]any{
				"type":        "string",
				"description": "Request body. Supports templating; a JSON result is sent as application/json.",
				"examples": []string{
					`{"pub": "{{ .pub_id }}", "event": "{{ .kind }}"}`,
				},
			},
		},
		"required":             []any{"url"},
		"additionalProperties": false,
	}
}
