package services

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/google/uuid"
)

type PlacePubRequest struct {
	ID      string `json:"id"`
	StageID string `json:"stage_id" validate:"required"`
}

// Pub places pubs into stages for the host application.
type Pub struct {
	persistence persistence.Persistence
}

func NewPub(persistence persistence.Persistence) *Pub {
	return &Pub{persistence: persistence}
}

// Place stores a pub in a stage and returns the pub-entered-stage event the
// caller should submit.
func (p *Pub) Place(ctx context.Context, req *PlacePubRequest) (*models.Pub, models.Event, error) {
	if err := validateRequest("PlacePub", req); err != nil {
		return nil, models.Event{}, err
	}

	stage, err := p.persistence.StageRepository().GetByID(ctx, req.StageID)
	if err != nil {
		return nil, models.Event{}, err
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	pub := &models.Pub{
		ID:          id,
		CommunityID: stage.CommunityID,
		StageID:     stage.ID,
		UpdatedAt:   time.Now().UTC(),
	}

	if err := p.persistence.PubRepository().Save(ctx, pub); err != nil {
		return nil, models.Event{}, fmt.Errorf("failed to save pub: %w", err)
	}

	return pub, models.Event{
		Kind:        models.EventKindPubEnteredStage,
		CommunityID: pub.CommunityID,
		PubID:       pub.ID,
		StageID:     pub.StageID,
		Payload:     map[string]any{"to_stage_id": pub.StageID},
	}, nil
}

func (p *Pub) Get(ctx context.Context, id string) (*models.Pub, error) {
	return p.persistence.PubRepository().GetByID(ctx, id)
}
