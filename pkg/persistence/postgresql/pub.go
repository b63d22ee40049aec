package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
)

// PubRepository handles pub placement in the database.
type PubRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *PubRepository) GetByID(ctx context.Context, id string) (*models.Pub, error) {
	var pub models.Pub

	err := r.db.QueryRowContext(ctx,
		`SELECT id, community_id, stage_id, updated_at FROM pubs WHERE id = $1`, id,
	).Scan(&pub.ID, &pub.CommunityID, &pub.StageID, &pub.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "pub", id, persistence.ErrPubNotFound)
		}

		return nil, fmt.Errorf("failed to get pub: %w", err)
	}

	return &pub, nil
}

func (r *PubRepository) ListByStage(ctx context.Context, stageID string) ([]*models.Pub, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, community_id, stage_id, updated_at FROM pubs WHERE stage_id = $1 ORDER BY id`, stageID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pubs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	pubs := make([]*models.Pub, 0)

	for rows.Next() {
		var pub models.Pub

		err := rows.Scan(&pub.ID, &pub.CommunityID, &pub.StageID, &pub.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pub: %w", err)
		}

		pubs = append(pubs, &pub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pubs: %w", err)
	}

	return pubs, nil
}

func (r *PubRepository) Save(ctx context.Context, pub *models.Pub) error {
	pub.UpdatedAt = time.Now().UTC()

	query := `
		INSERT INTO pubs (id, community_id, stage_id, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			community_id = EXCLUDED.community_id,
			stage_id = EXCLUDED.stage_id,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query, pub.ID, pub.CommunityID, pub.StageID, pub.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save pub: %w", err)
	}

	return nil
}

func (r *PubRepository) MoveToStage(ctx context.Context, pubID, stageID string) error {
	var exists bool

	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM stages WHERE id = $1)`, stageID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check stage: %w", err)
	}

	if !exists {
		return persistence.NewEntityError("MoveToStage", "stage", stageID, persistence.ErrStageNotFound)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE pubs SET stage_id = $2, updated_at = $3 WHERE id = $1`, pubID, stageID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to move pub: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError("MoveToStage", "pub", pubID, persistence.ErrPubNotFound)
	}

	return nil
}
