// Package actions lists the action kinds built into stageflow.
package actions

import (
	"net/http"

	"github.com/dukex/stageflow/pkg/actions/email"
	log_action "github.com/dukex/stageflow/pkg/actions/log"
	"github.com/dukex/stageflow/pkg/actions/move"
	"github.com/dukex/stageflow/pkg/actions/webhook"
	"github.com/dukex/stageflow/pkg/protocol"
)

// Dependencies are the outside collaborators built-in actions need.
type Dependencies struct {
	HTTPClient *http.Client
	Mailer     email.Mailer
}

// Native returns one factory per built-in action kind.
func Native(deps Dependencies) []protocol.ActionFactory {
	return []protocol.ActionFactory{
		log_action.NewLogActionFactory(),
		webhook.NewActionFactory(deps.HTTPClient),
		email.NewActionFactory(deps.Mailer),
		move.NewActionFactory(),
	}
}
