package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/dukex/stageflow/pkg/registry"
	"github.com/dukex/stageflow/pkg/schema"
	"github.com/google/uuid"
)

type CreateActionInstanceRequest struct {
	CommunityID string         `json:"community_id" validate:"required"`
	Kind        string         `json:"kind"         validate:"required"`
	Name        string         `json:"name"         validate:"max=255"`
	Config      map[string]any `json:"config"`
}

type UpdateActionInstanceRequest struct {
	Name   string         `json:"name"   validate:"max=255"`
	Config map[string]any `json:"config"`
}

// ActionInstance handles action instance business operations. Configs are stored
// as authored; defaults are merged again at run time.
type ActionInstance struct {
	persistence persistence.Persistence
	validator   *schema.Validator
}

func NewActionInstance(persistence persistence.Persistence, validator *schema.Validator) *ActionInstance {
	return &ActionInstance{persistence: persistence, validator: validator}
}

// ValidateConfig merges defaults and validates config for kind.
func (a *ActionInstance) ValidateConfig(kind string, config map[string]any) (map[string]any, []models.FieldError, error) {
	merged, fieldErrors, err := a.validator.MergeAndValidate(kind, config)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownActionKind) {
			return nil, nil, NewValidationError("ValidateConfig", "unknown_action_kind", err.Error(), err)
		}

		return nil, nil, err
	}

	return merged, fieldErrors, nil
}

func (a *ActionInstance) checkConfig(op, kind string, config map[string]any) error {
	_, fieldErrors, err := a.ValidateConfig(kind, config)
	if err != nil {
		return err
	}

	if len(fieldErrors) > 0 {
		return newConfigError(op, fieldErrors)
	}

	return nil
}

func (a *ActionInstance) Create(ctx context.Context, req *CreateActionInstanceRequest) (*models.ActionInstance, error) {
	if err := validateRequest("CreateActionInstance", req); err != nil {
		return nil, err
	}

	if err := a.checkConfig("CreateActionInstance", req.Kind, req.Config); err != nil {
		return nil, err
	}

	config := req.Config
	if config == nil {
		config = map[string]any{}
	}

	now := time.Now().UTC()
	instance := &models.ActionInstance{
		ID:          uuid.New().String(),
		CommunityID: req.CommunityID,
		Kind:        req.Kind,
		Name:        req.Name,
		Config:      config,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := a.persistence.ActionInstanceRepository().Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save action instance: %w", err)
	}

	return instance, nil
}

func (a *ActionInstance) Update(ctx context.Context, id string, req *UpdateActionInstanceRequest) (*models.ActionInstance, error) {
	if err := validateRequest("UpdateActionInstance", req); err != nil {
		return nil, err
	}

	instance, err := a.persistence.ActionInstanceRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := a.checkConfig("UpdateActionInstance", instance.Kind, req.Config); err != nil {
		return nil, err
	}

	instance.Name = req.Name
	instance.Config = req.Config
	instance.UpdatedAt = time.Now().UTC()

	if instance.Config == nil {
		instance.Config = map[string]any{}
	}

	if err := a.persistence.ActionInstanceRepository().Save(ctx, instance); err != nil {
		return nil, fmt.Errorf("failed to save action instance: %w", err)
	}

	return instance, nil
}

func (a *ActionInstance) Get(ctx context.Context, id string) (*models.ActionInstance, error) {
	return a.persistence.ActionInstanceRepository().GetByID(ctx, id)
}

func (a *ActionInstance) List(ctx context.Context, communityID string) ([]*models.ActionInstance, error) {
	return a.persistence.ActionInstanceRepository().ListByCommunity(ctx, communityID)
}

// Delete removes an instance no rule is bound to.
func (a *ActionInstance) Delete(ctx context.Context, id string) error {
	instance, err := a.persistence.ActionInstanceRepository().GetByID(ctx, id)
	if err != nil {
		return err
	}

	rules, err := a.persistence.RuleRepository().ListByCommunity(ctx, instance.CommunityID)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}

	for _, rule := range rules {
		if rule.ActionInstanceID == id {
			return &ServiceError{
				Op:      "DeleteActionInstance",
				Code:    "instance_in_use",
				Message: fmt.Sprintf("action instance %s is bound by rule %s", id, rule.ID),
				Err:     ErrInstanceInUse,
			}
		}
	}

	return a.persistence.ActionInstanceRepository().Delete(ctx, id)
}

// Put creates or replaces an action instance under its own id.
func (a *ActionInstance) Put(ctx context.Context, instance *models.ActionInstance) error {
	now := time.Now().UTC()
	instance.CreatedAt, instance.UpdatedAt = now, now

	if existing, err := a.persistence.ActionInstanceRepository().GetByID(ctx, instance.ID); err == nil {
		if existing.CommunityID != instance.CommunityID {
			return NewValidationError("PutActionInstance", "community_mismatch",
				fmt.Sprintf("action instance %s belongs to community %s", instance.ID, existing.CommunityID), ErrCommunityMismatch)
		}

		instance.CreatedAt = existing.CreatedAt
	} else if !persistence.IsActionInstanceNotFound(err) {
		return err
	}

	if err := validateRequest("PutActionInstance", instance); err != nil {
		return err
	}

	if err := a.checkConfig("PutActionInstance", instance.Kind, instance.Config); err != nil {
		return err
	}

	if instance.Config == nil {
		instance.Config = map[string]any{}
	}

	return a.persistence.ActionInstanceRepository().Save(ctx, instance)
}
