// Package models defines the core domain models for stage-based workflow automation.
package models

import "time"

// Stage is a node in a community's workflow graph. Pubs reside in stages.
type Stage struct {
	ID          string    `json:"id"           validate:"required"`
	CommunityID string    `json:"community_id" validate:"required"`
	Name        string    `json:"name"         validate:"required,min=1"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Pub is the subject moved through stages. Only its placement matters to the engine.
type Pub struct {
	ID          string    `json:"id"           validate:"required"`
	CommunityID string    `json:"community_id" validate:"required"`
	StageID     string    `json:"stage_id"     validate:"required"`
	UpdatedAt   time.Time `json:"updated_at"`
}
