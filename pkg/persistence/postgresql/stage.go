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

// StageRepository handles stage-related database operations.
type StageRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *StageRepository) GetByID(ctx context.Context, id string) (*models.Stage, error) {
	query := `SELECT id, community_id, name, position, created_at, updated_at FROM stages WHERE id = $1`

	var stage models.Stage

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&stage.ID, &stage.CommunityID, &stage.Name, &stage.Order, &stage.CreatedAt, &stage.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "stage", id, persistence.ErrStageNotFound)
		}

		return nil, fmt.Errorf("failed to get stage: %w", err)
	}

	return &stage, nil
}

func (r *StageRepository) ListByCommunity(ctx context.Context, communityID string) ([]*models.Stage, error) {
	query := `
		SELECT id, community_id, name, position, created_at, updated_at
		FROM stages
		WHERE community_id = $1
		ORDER BY position, id
	`

	rows, err := r.db.QueryContext(ctx, query, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stages: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	stages := make([]*models.Stage, 0)

	for rows.Next() {
		var stage models.Stage

		err := rows.Scan(&stage.ID, &stage.CommunityID, &stage.Name, &stage.Order, &stage.CreatedAt, &stage.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}

		stages = append(stages, &stage)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stages: %w", err)
	}

	return stages, nil
}

func (r *StageRepository) Save(ctx context.Context, stage *models.Stage) error {
	now := time.Now().UTC()
	if stage.CreatedAt.IsZero() {
		stage.CreatedAt = now
	}

	stage.UpdatedAt = now

	query := `
		INSERT INTO stages (id, community_id, name, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			community_id = EXCLUDED.community_id,
			name = EXCLUDED.name,
			position = EXCLUDED.position,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		stage.ID, stage.CommunityID, stage.Name, stage.Order, stage.CreatedAt, stage.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save stage: %w", err)
	}

	return nil
}

func (r *StageRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var pubs int

	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM pubs WHERE stage_id = $1`, id).Scan(&pubs)
	if err != nil {
		return fmt.Errorf("failed to count pubs in stage: %w", err)
	}

	if pubs > 0 {
		err = persistence.NewEntityError("Delete", "stage", id, persistence.ErrStageNotEmpty)

		return err
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM stages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete stage: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		err = persistence.NewEntityError("Delete", "stage", id, persistence.ErrStageNotFound)

		return err
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM rules WHERE stage_id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete stage rules: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
