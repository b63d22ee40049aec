package web

import "github.com/dukex/stageflow/pkg/models"

// SubmitEventRequest is an externally observed pub event. Submitted events
// always start at depth 0.
type SubmitEventRequest struct {
	Kind        models.EventKind `json:"kind"         validate:"required,oneof=pub-entered-stage pub-left-stage pub-field-changed scheduled manual"`
	CommunityID string           `json:"community_id" validate:"required"`
	PubID       string           `json:"pub_id"`
	StageID     string           `json:"stage_id"`
	Payload     map[string]any   `json:"payload"`
}

func (r SubmitEventRequest) Event() models.Event {
	return models.Event{
		Kind:        r.Kind,
		CommunityID: r.CommunityID,
		PubID:       r.PubID,
		StageID:     r.StageID,
		Payload:     r.Payload,
	}
}

type TriggerActionRequest struct {
	PubID   string         `json:"pub_id"`
	Payload map[string]any `json:"payload"`
}

type ValidateConfigRequest struct {
	Config map[string]any `json:"config"`
}

type ValidateConfigResponse struct {
	Valid  bool                `json:"valid"`
	Config map[string]any      `json:"config,omitempty"`
	Errors []models.FieldError `json:"errors"`
}

type PlacePubResponse struct {
	Pub      *models.Pub `json:"pub"`
	Dispatch *Dispatch   `json:"dispatch"`
}
