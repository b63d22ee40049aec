package models

// Origin identifies the run that emitted an event.
type Origin struct {
	RuleID           string `json:"rule_id,omitempty"`
	ActionInstanceID string `json:"action_instance_id,omitempty"`
	RunID            string `json:"run_id,omitempty"`
	AttemptGroupID   string `json:"attempt_group_id,omitempty"`
}

// Event is an ephemeral trigger signal. Events are never persisted; only the runs
// they cause are.
type Event struct {
	Kind        EventKind      `json:"kind"              validate:"required"`
	CommunityID string         `json:"community_id"      validate:"required"`
	PubID       string         `json:"pub_id,omitempty"`
	StageID     string         `json:"stage_id,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
	Depth       int            `json:"depth"             validate:"gte=0"`
	Origin      *Origin        `json:"origin,omitempty"`
}

// Child returns a copy of e one hop deeper, attributed to origin.
func (e Event) Child(kind EventKind, stageID string, payload map[string]any, origin *Origin) Event {
	return Event{
		Kind:        kind,
		CommunityID: e.CommunityID,
		PubID:       e.PubID,
		StageID:     stageID,
		Payload:     payload,
		Depth:       e.Depth + 1,
		Origin:      origin,
	}
}

// Snapshot returns the event as a plain map for storage in a run.
func (e Event) Snapshot() map[string]any {
	snapshot := map[string]any{
		"kind":         string(e.Kind),
		"community_id": e.CommunityID,
		"depth":        e.Depth,
	}

	if e.PubID != "" {
		snapshot["pub_id"] = e.PubID
	}

	if e.StageID != "" {
		snapshot["stage_id"] = e.StageID
	}

	if e.Payload != nil {
		snapshot["payload"] = e.Payload
	}

	if e.Origin != nil {
		snapshot["origin"] = map[string]any{
			"rule_id":            e.Origin.RuleID,
			"action_instance_id": e.Origin.ActionInstanceID,
			"run_id":             e.Origin.RunID,
		}
	}

	return snapshot
}
