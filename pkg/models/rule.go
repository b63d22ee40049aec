package models

import (
	"sort"
	"time"
)

// EventKind enumerates the events rules can bind to.
type EventKind string

const (
	EventKindPubEnteredStage EventKind = "pub-entered-stage"
	EventKindPubLeftStage    EventKind = "pub-left-stage"
	EventKindPubFieldChanged EventKind = "pub-field-changed"
	EventKindScheduled       EventKind = "scheduled"
	EventKindManual          EventKind = "manual"

	// EventKindPubMoveRequested is emitted by actions that move a pub. The engine
	// interprets it and never binds it to rules.
	EventKindPubMoveRequested EventKind = "pub-move-requested"
)

var bindableEventKinds = []EventKind{
	EventKindPubEnteredStage,
	EventKindPubLeftStage,
	EventKindPubFieldChanged,
	EventKindScheduled,
	EventKindManual,
}

// BindableEventKinds returns the event kinds a rule may bind to.
func BindableEventKinds() []EventKind {
	kinds := make([]EventKind, len(bindableEventKinds))
	copy(kinds, bindableEventKinds)

	return kinds
}

// IsBindable reports whether rules may be bound to the kind.
func (k EventKind) IsBindable() bool {
	for _, kind := range bindableEventKinds {
		if kind == k {
			return true
		}
	}

	return false
}

// Rule binds a (stage, event kind) pair to an action instance.
type Rule struct {
	ID               string         `json:"id"                 validate:"required"`
	CommunityID      string         `json:"community_id"       validate:"required"`
	StageID          string         `json:"stage_id"           validate:"required"`
	Event            EventKind      `json:"event"              validate:"required"`
	ActionInstanceID string         `json:"action_instance_id" validate:"required"`
	Config           map[string]any `json:"config,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// SortRules orders rules by creation time, breaking ties by id.
func SortRules(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}

		return rules[i].ID < rules[j].ID
	})
}
