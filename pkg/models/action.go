package models

import "time"

// ActionInstance is a configured, reusable invocation target for one action kind.
type ActionInstance struct {
	ID          string         `json:"id"           validate:"required"`
	CommunityID string         `json:"community_id" validate:"required"`
	Kind        string         `json:"kind"         validate:"required"`
	Name        string         `json:"name"`
	Config      map[string]any `json:"config"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// ActionKind describes a registered action kind for catalogs.
type ActionKind struct {
	Kind        string         `json:"kind"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema"`
}
