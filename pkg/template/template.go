// Package template renders text/template strings in action configs against the
// triggering event.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/stageflow/pkg/models"
)

// EventData exposes an event to templates as .event, .pub_id, .stage_id,
// .community_id and .payload.
func EventData(event models.Event) map[string]any {
	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	return map[string]any{
		"event":        event.Snapshot(),
		"kind":         string(event.Kind),
		"pub_id":       event.PubID,
		"stage_id":     event.StageID,
		"community_id": event.CommunityID,
		"payload":      payload,
	}
}

func funcs() template.FuncMap {
	return template.FuncMap{
		"now": func() string {
			return time.Now().UTC().Format(time.RFC3339)
		},
		"rand": func(max int) int {
			if max <= 0 {
				return 0
			}
			num := make([]byte, 1)
			_, err := rand.Read(num)
			if err != nil {
				return 0
			}

			return int(num[0]) % max
		},
		"json": func(value any) (string, error) {
			data, err := json.Marshal(value)

			return string(data), err
		},
	}
}

// Parse checks that templateStr is a valid template.
func Parse(templateStr string) (*template.Template, error) {
	tmpl, err := template.New("config").Funcs(funcs()).Option("missingkey=zero").Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	return tmpl, nil
}

// RenderString executes templateStr and returns the raw text.
func RenderString(templateStr string, data any) (string, error) {
	if !strings.Contains(templateStr, "{{") {
		return templateStr, nil
	}

	tmpl, err := Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// Render executes templateStr and converts the output to JSON, a number or a
// boolean when it parses as one.
func Render(templateStr string, data any) (any, error) {
	result, err := RenderString(templateStr, data)
	if err != nil {
		return nil, err
	}

	result = strings.TrimSpace(result)
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err != nil {
			return nil, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
		}

		return jsonResult, nil
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}
