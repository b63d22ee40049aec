package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/google/uuid"
)

type CreateStageRequest struct {
	CommunityID string `json:"community_id" validate:"required"`
	Name        string `json:"name"         validate:"required,min=1,max=255"`
	Order       int    `json:"order"        validate:"gte=0"`
}

type UpdateStageRequest struct {
	Name  string `json:"name"  validate:"required,min=1,max=255"`
	Order int    `json:"order" validate:"gte=0"`
}

// Stage handles stage-related business operations.
type Stage struct {
	persistence persistence.Persistence
}

func NewStage(persistence persistence.Persistence) *Stage {
	return &Stage{persistence: persistence}
}

func (s *Stage) Create(ctx context.Context, req *CreateStageRequest) (*models.Stage, error) {
	if err := validateRequest("CreateStage", req); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	stage := &models.Stage{
		ID:          uuid.New().String(),
		CommunityID: req.CommunityID,
		Name:        req.Name,
		Order:       req.Order,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.persistence.StageRepository().Save(ctx, stage); err != nil {
		return nil, fmt.Errorf("failed to save stage: %w", err)
	}

	return stage, nil
}

func (s *Stage) Update(ctx context.Context, id string, req *UpdateStageRequest) (*models.Stage, error) {
	if err := validateRequest("UpdateStage", req); err != nil {
		return nil, err
	}

	stage, err := s.persistence.StageRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	stage.Name = req.Name
	stage.Order = req.Order
	stage.UpdatedAt = time.Now().UTC()

	if err := s.persistence.StageRepository().Save(ctx, stage); err != nil {
		return nil, fmt.Errorf("failed to save stage: %w", err)
	}

	return stage, nil
}

func (s *Stage) Get(ctx context.Context, id string) (*models.Stage, error) {
	return s.persistence.StageRepository().GetByID(ctx, id)
}

func (s *Stage) List(ctx context.Context, communityID string) ([]*models.Stage, error) {
	return s.persistence.StageRepository().ListByCommunity(ctx, communityID)
}

// Delete removes a stage and its rules. Pubs still in the stage are first moved
// to migrateTo, which must be another stage of the same community; without a
// target a non-empty stage cannot be deleted.
func (s *Stage) Delete(ctx context.Context, id, migrateTo string) (int, error) {
	stages := s.persistence.StageRepository()

	stage, err := stages.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}

	pubs, err := s.persistence.PubRepository().ListByStage(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("failed to list pubs: %w", err)
	}

	if len(pubs) > 0 {
		if err := s.checkMigrationTarget(ctx, stage, migrateTo); err != nil {
			return 0, err
		}

		for _, pub := range pubs {
			if err := s.persistence.PubRepository().MoveToStage(ctx, pub.ID, migrateTo); err != nil {
				return 0, fmt.Errorf("failed to migrate pub %s: %w", pub.ID, err)
			}
		}
	}

	rules, err := s.persistence.RuleRepository().ListByCommunity(ctx, stage.CommunityID)
	if err != nil {
		return 0, fmt.Errorf("failed to list rules: %w", err)
	}

	for _, rule := range rules {
		if rule.StageID != id {
			continue
		}

		if err := s.persistence.RuleRepository().Delete(ctx, rule.ID); err != nil && !persistence.IsRuleNotFound(err) {
			return 0, fmt.Errorf("failed to delete rule %s: %w", rule.ID, err)
		}
	}

	if err := stages.Delete(ctx, id); err != nil {
		return 0, err
	}

	return len(pubs), nil
}

func (s *Stage) checkMigrationTarget(ctx context.Context, stage *models.Stage, migrateTo string) error {
	if migrateTo == "" {
		return &ServiceError{
			Op:      "DeleteStage",
			Code:    "stage_not_empty",
			Message: fmt.Sprintf("stage %s still holds pubs; a migration target is required", stage.ID),
			Err:     ErrStageNotEmpty,
		}
	}

	if migrateTo == stage.ID {
		return NewValidationError("DeleteStage", "invalid_migration", "cannot migrate pubs to the stage being deleted", ErrInvalidMigration)
	}

	target, err := s.persistence.StageRepository().GetByID(ctx, migrateTo)
	if err != nil {
		return err
	}

	if target.CommunityID != stage.CommunityID {
		return NewValidationError("DeleteStage", "community_mismatch",
			fmt.Sprintf("stage %s is not in community %s", target.ID, stage.CommunityID), ErrCommunityMismatch)
	}

	return nil
}

// Put creates or replaces a stage under its own id.
func (s *Stage) Put(ctx context.Context, stage *models.Stage) error {
	now := time.Now().UTC()
	stage.CreatedAt, stage.UpdatedAt = now, now

	if existing, err := s.persistence.StageRepository().GetByID(ctx, stage.ID); err == nil {
		if existing.CommunityID != stage.CommunityID {
			return NewValidationError("PutStage", "community_mismatch",
				fmt.Sprintf("stage %s belongs to community %s", stage.ID, existing.CommunityID), ErrCommunityMismatch)
		}

		stage.CreatedAt = existing.CreatedAt
	} else if !persistence.IsStageNotFound(err) {
		return err
	}

	if err := validateRequest("PutStage", stage); err != nil {
		return err
	}

	return s.persistence.StageRepository().Save(ctx, stage)
}
