// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestStage creates a test Stage with default values that can be overridden.
func CreateTestStage(communityID string, overrides ...func(*models.Stage)) *models.Stage {
	stage := &models.Stage{
		ID:          uuid.New().String(),
		CommunityID: communityID,
		Name:        "Test Stage",
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	for _, override := range overrides {
		override(stage)
	}

	return stage
}

// CreateTestActionInstance creates an action instance of kind in communityID.
func CreateTestActionInstance(communityID, kind string, config map[string]any, overrides ...func(*models.ActionInstance)) *models.ActionInstance {
	instance := &models.ActionInstance{
		ID:          uuid.New().String(),
		CommunityID: communityID,
		Kind:        kind,
		Name:        "Test " + kind,
		Config:      config,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	for _, override := range overrides {
		override(instance)
	}

	return instance
}

// CreateTestRule binds instance to (stage, event).
func CreateTestRule(stage *models.Stage, event models.EventKind, instance *models.ActionInstance, overrides ...func(*models.Rule)) *models.Rule {
	rule := &models.Rule{
		ID:               uuid.New().String(),
		CommunityID:      stage.CommunityID,
		StageID:          stage.ID,
		Event:            event,
		ActionInstanceID: instance.ID,
		Config:           map[string]any{},
		CreatedAt:        time.Now().UTC(),
	}

	for _, override := range overrides {
		override(rule)
	}

	return rule
}

// WithRuleID sets the rule id.
func WithRuleID(id string) func(*models.Rule) {
	return func(r *models.Rule) {
		r.ID = id
	}
}

// WithRuleConfig sets the rule-level config.
func WithRuleConfig(config map[string]any) func(*models.Rule) {
	return func(r *models.Rule) {
		r.Config = config
	}
}

// WithCreatedAt sets the rule creation time.
func WithCreatedAt(createdAt time.Time) func(*models.Rule) {
	return func(r *models.Rule) {
		r.CreatedAt = createdAt
	}
}

// CreateTestPub places a pub in stage.
func CreateTestPub(stage *models.Stage) *models.Pub {
	return &models.Pub{
		ID:          uuid.New().String(),
		CommunityID: stage.CommunityID,
		StageID:     stage.ID,
		UpdatedAt:   time.Now().UTC(),
	}
}

// CreateTestEvent creates an external (depth 0) event for pub in its stage.
func CreateTestEvent(kind models.EventKind, pub *models.Pub, overrides ...func(*models.Event)) models.Event {
	event := models.Event{
		Kind:        kind,
		CommunityID: pub.CommunityID,
		PubID:       pub.ID,
		StageID:     pub.StageID,
		Payload:     map[string]any{},
	}

	for _, override := range overrides {
		override(&event)
	}

	return event
}

// WithDepth sets the event depth.
func WithDepth(depth int) func(*models.Event) {
	return func(e *models.Event) {
		e.Depth = depth
	}
}

// WithPayload sets the event payload.
func WithPayload(payload map[string]any) func(*models.Event) {
	return func(e *models.Event) {
		e.Payload = payload
	}
}
