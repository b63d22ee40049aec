// Package email provides the email action, which sends a templated message about a pub.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/protocol"
	"github.com/dukex/stageflow/pkg/template"
)

const (
	Kind = "email"

	defaultFrom = "stageflow@localhost"
)

var ErrNoMailer = errors.New("no mailer configured")

type Action struct {
	From    string
	To      string
	Subject string
	Body    string

	mailer Mailer
}

func NewAction(mailer Mailer, config map[string]any) *Action {
	from, _ := config["from"].(string)
	if from == "" {
		from = defaultFrom
	}

	to, _ := config["to"].(string)
	subject, _ := config["subject"].(string)
	body, _ := config["body"].(string)

	return &Action{From: from, To: to, Subject: subject, Body: body, mailer: mailer}
}

func (a *Action) Execute(ctx context.Context, event models.Event, logger *slog.Logger) (*protocol.Result, error) {
	if a.mailer == nil {
		return nil, protocol.Permanent(ErrNoMailer)
	}

	data := template.EventData(event)

	msg := Message{From: a.From}

	fields := []struct {
		name string
		tmpl string
		dst  *string
	}{
		{"subject", a.Subject, &msg.Subject},
		{"body", a.Body, &msg.Body},
	}

	for _, field := range fields {
		rendered, err := template.RenderString(field.tmpl, data)
		if err != nil {
			return nil, protocol.Permanent(fmt.Errorf("failed to render %s: %w", field.name, err))
		}

		*field.dst = rendered
	}

	msg.Subject = singleLine(msg.Subject)

	to, err := template.RenderString(a.To, data)
	if err != nil {
		return nil, protocol.Permanent(fmt.Errorf("failed to render to: %w", err))
	}

	for _, addr := range strings.Split(to, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			msg.To = append(msg.To, addr)
		}
	}

	if len(msg.To) == 0 {
		return nil, protocol.Permanent(errors.New("no recipients"))
	}

	if err := a.mailer.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to send email: %w", err)
	}

	logger.InfoContext(ctx, "Email sent", "action_type", Kind, "recipients", len(msg.To))

	return &protocol.Result{
		Output: map[string]any{
			"to":      msg.To,
			"subject": msg.Subject,
		},
	}, nil
}
