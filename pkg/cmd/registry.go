// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/stageflow/pkg/actions"
	"github.com/dukex/stageflow/pkg/actions/email"
	"github.com/dukex/stageflow/pkg/registry"
)

const webhookClientTimeout = 30 * time.Second

// NewRegistry registers the built-in action kinds and the plugins found under
// pluginsPath. The engine seals it.
func NewRegistry(logger *slog.Logger, pluginsPath, smtpURL string) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger)

	deps := actions.Dependencies{
		HTTPClient: &http.Client{Timeout: webhookClientTimeout},
	}

	if smtpURL != "" {
		mailer, err := email.NewSMTPMailer(smtpURL)
		if err != nil {
			return nil, fmt.Errorf("invalid smtp url: %w", err)
		}

		deps.Mailer = mailer
	}

	for _, factory := range actions.Native(deps) {
		if err := reg.RegisterAction(factory); err != nil {
			return nil, err
		}
	}

	plugins, err := reg.LoadActionPlugins(pluginsPath)
	if err != nil {
		return nil, err
	}

	for _, plugin := range plugins {
		if err := reg.RegisterAction(plugin); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
