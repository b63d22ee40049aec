package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/dukex/stageflow/pkg/schema"
	"github.com/google/uuid"
)

type CreateRuleRequest struct {
	StageID          string           `json:"stage_id"           validate:"required"`
	Event            models.EventKind `json:"event"              validate:"required"`
	ActionInstanceID string           `json:"action_instance_id" validate:"required"`
	Config           map[string]any   `json:"config"`
}

type UpdateRuleRequest struct {
	ActionInstanceID string         `json:"action_instance_id" validate:"required"`
	Config           map[string]any `json:"config"`
}

// Rule handles rule business operations.
type Rule struct {
	persistence persistence.Persistence
}

func NewRule(persistence persistence.Persistence) *Rule {
	return &Rule{persistence: persistence}
}

func (r *Rule) Create(ctx context.Context, req *CreateRuleRequest) (*models.Rule, error) {
	if err := validateRequest("CreateRule", req); err != nil {
		return nil, err
	}

	stage, err := r.persistence.StageRepository().GetByID(ctx, req.StageID)
	if err != nil {
		return nil, err
	}

	if err := r.checkBinding(ctx, "CreateRule", stage.CommunityID, req.Event, req.ActionInstanceID, req.Config); err != nil {
		return nil, err
	}

	rule := &models.Rule{
		ID:               uuid.New().String(),
		CommunityID:      stage.CommunityID,
		StageID:          stage.ID,
		Event:            req.Event,
		ActionInstanceID: req.ActionInstanceID,
		Config:           configOrEmpty(req.Config),
		CreatedAt:        time.Now().UTC(),
	}

	if err := r.persistence.RuleRepository().Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	return rule, nil
}

// Update rebinds the rule or changes its config. Stage and event are fixed.
func (r *Rule) Update(ctx context.Context, id string, req *UpdateRuleRequest) (*models.Rule, error) {
	if err := validateRequest("UpdateRule", req); err != nil {
		return nil, err
	}

	rule, err := r.persistence.RuleRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := r.checkBinding(ctx, "UpdateRule", rule.CommunityID, rule.Event, req.ActionInstanceID, req.Config); err != nil {
		return nil, err
	}

	rule.ActionInstanceID = req.ActionInstanceID
	rule.Config = configOrEmpty(req.Config)

	if err := r.persistence.RuleRepository().Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}

	return rule, nil
}

func (r *Rule) checkBinding(ctx context.Context, op, communityID string, event models.EventKind, instanceID string, config map[string]any) error {
	if !event.IsBindable() {
		return NewValidationError(op, "event_not_bindable", fmt.Sprintf("event %q cannot be bound", event), ErrEventNotBindable)
	}

	if fieldErrors := schema.ValidateRuleConfig(event, config); len(fieldErrors) > 0 {
		return newConfigError(op, fieldErrors)
	}

	instance, err := r.persistence.ActionInstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		return err
	}

	if instance.CommunityID != communityID {
		return NewValidationError(op, "community_mismatch",
			fmt.Sprintf("action instance %s is not in community %s", instance.ID, communityID), ErrCommunityMismatch)
	}

	return nil
}

func (r *Rule) Get(ctx context.Context, id string) (*models.Rule, error) {
	return r.persistence.RuleRepository().GetByID(ctx, id)
}

// ListByStage returns the rules of a stage in execution order.
func (r *Rule) ListByStage(ctx context.Context, stageID string) ([]*models.Rule, error) {
	stage, err := r.persistence.StageRepository().GetByID(ctx, stageID)
	if err != nil {
		return nil, err
	}

	all, err := r.persistence.RuleRepository().ListByCommunity(ctx, stage.CommunityID)
	if err != nil {
		return nil, err
	}

	rules := make([]*models.Rule, 0, len(all))

	for _, rule := range all {
		if rule.StageID == stageID {
			rules = append(rules, rule)
		}
	}

	models.SortRules(rules)

	return rules, nil
}

func (r *Rule) Delete(ctx context.Context, id string) error {
	return r.persistence.RuleRepository().Delete(ctx, id)
}

func configOrEmpty(config map[string]any) map[string]any {
	if config == nil {
		return map[string]any{}
	}

	return config
}

// Put creates or replaces a rule under its own id. A new rule keeps the
// CreatedAt it was given so callers control execution order; an existing rule
// keeps its original one.
func (r *Rule) Put(ctx context.Context, rule *models.Rule) error {
	stage, err := r.persistence.StageRepository().GetByID(ctx, rule.StageID)
	if err != nil {
		return err
	}

	rule.CommunityID = stage.CommunityID
	rule.Config = configOrEmpty(rule.Config)

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	if existing, err := r.persistence.RuleRepository().GetByID(ctx, rule.ID); err == nil {
		rule.CreatedAt = existing.CreatedAt
	} else if !persistence.IsRuleNotFound(err) {
		return err
	}

	if err := validateRequest("PutRule", rule); err != nil {
		return err
	}

	if err := r.checkBinding(ctx, "PutRule", rule.CommunityID, rule.Event, rule.ActionInstanceID, rule.Config); err != nil {
		return err
	}

	return r.persistence.RuleRepository().Save(ctx, rule)
}
