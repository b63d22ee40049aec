// Package persistence provides the data storage abstraction for stages, rules,
// action instances, pubs and runs.
package persistence

import (
	"context"

	"github.com/dukex/stageflow/pkg/ledger"
	"github.com/dukex/stageflow/pkg/models"
)

// Persistence groups the repositories a backend provides.
type Persistence interface {
	StageRepository() StageRepository
	RuleRepository() RuleRepository
	ActionInstanceRepository() ActionInstanceRepository
	PubRepository() PubRepository
	RunRepository() RunRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// StageRepository defines operations on stages.
type StageRepository interface {
	GetByID(ctx context.Context, id string) (*models.Stage, error)
	ListByCommunity(ctx context.Context, communityID string) ([]*models.Stage, error)
	Save(ctx context.Context, stage *models.Stage) error
	// Delete removes a stage that no longer holds pubs.
	Delete(ctx context.Context, id string) error
}

// RuleRepository defines operations on rules.
type RuleRepository interface {
	GetByID(ctx context.Context, id string) (*models.Rule, error)
	ListByCommunity(ctx context.Context, communityID string) ([]*models.Rule, error)
	ListByEvent(ctx context.Context, kind models.EventKind) ([]*models.Rule, error)
	Save(ctx context.Context, rule *models.Rule) error
	Delete(ctx context.Context, id string) error
}

// ActionInstanceRepository defines operations on action instances.
type ActionInstanceRepository interface {
	GetByID(ctx context.Context, id string) (*models.ActionInstance, error)
	ListByCommunity(ctx context.Context, communityID string) ([]*models.ActionInstance, error)
	Save(ctx context.Context, instance *models.ActionInstance) error
	Delete(ctx context.Context, id string) error
}

// PubRepository exposes pub placement. MoveToStage is the only write the engine performs.
type PubRepository interface {
	GetByID(ctx context.Context, id string) (*models.Pub, error)
	ListByStage(ctx context.Context, stageID string) ([]*models.Pub, error)
	Save(ctx context.Context, pub *models.Pub) error
	MoveToStage(ctx context.Context, pubID, stageID string) error
}

// RunRepository is the backend's run ledger.
type RunRepository interface {
	ledger.Ledger
}
