// Package webhook provides the webhook action, which notifies an external HTTP endpoint.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/protocol"
	"github.com/dukex/stageflow/pkg/template"
)

const maxResponseBody = 1 << 20

var (
	// ErrURLInvalid is returned when the url is missing from the configuration.
	ErrURLInvalid = errors.New("invalid webhook url")
	// ErrServerError is returned when the endpoint answers with a 5xx or 429.
	ErrServerError = errors.New("webhook server error")
	// ErrClientError is returned when the endpoint rejects the request with a 4xx.
	ErrClientError = errors.New("webhook request rejected")
)

// Action performs a single HTTP request. Retries are left to the invoker.
type Action struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string

	client *http.Client
}

// NewAction creates a webhook action from configuration.
func NewAction(client *http.Client, config map[string]any) (*Action, error) {
	url, _ := config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("missing 'url' in configuration: %w", ErrURLInvalid)
	}

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	body, _ := config["body"].(string)

	headers := make(map[string]string)

	if headersMap, ok := config["headers"].(map[string]any); ok {
		for k, v := range headersMap {
			if strVal, ok := v.(string); ok {
				headers[k] = strVal
			}
		}
	}

	return &Action{
		URL:     url,
		Method:  strings.ToUpper(method),
		Headers: headers,
		Body:    body,
		client:  client,
	}, nil
}

// Execute sends the request and classifies the outcome.
func (a *Action) Execute(ctx context.Context, event models.Event, logger *slog.Logger) (*protocol.Result, error) {
	logger = logger.With("action_type", Kind)

	req, err := a.buildRequest(ctx, template.EventData(event))
	if err != nil {
		return nil, protocol.Permanent(err)
	}

	logger.DebugContext(ctx, "Sending webhook", "method", a.Method, "url", req.URL.String())

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, protocol.Recoverable(fmt.Errorf("webhook request failed: %w", err))
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, protocol.Recoverable(fmt.Errorf("failed to read response body: %w", err))
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return nil, protocol.Recoverable(fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, protocol.Permanent(fmt.Errorf("%w: status %d", ErrClientError, resp.StatusCode))
	}

	var body any
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		body = string(bodyBytes)
	}

	logger.InfoContext(ctx, "Webhook delivered", "status_code", resp.StatusCode, "body_length", len(bodyBytes))

	return &protocol.Result{
		Output: map[string]any{
			"status_code": resp.StatusCode,
			"body":        body,
		},
	}, nil
}

func (a *Action) buildRequest(ctx context.Context, data map[string]any) (*http.Request, error) {
	url, err := template.RenderString(a.URL, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render url template: %w", err)
	}

	body, err := template.RenderString(a.Body, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render body template: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, a.Method, url, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}

	if body != "" && json.Valid([]byte(body)) {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, value := range a.Headers {
		headerValue, err := template.RenderString(value, data)
		if err != nil {
			return nil, fmt.Errorf("failed to render header '%s' template: %w", key, err)
		}

		req.Header.Set(key, headerValue)
	}

	return req, nil
}
