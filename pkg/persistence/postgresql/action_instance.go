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

// ActionInstanceRepository handles action instance database operations.
type ActionInstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const selectActionInstances = `
	SELECT id, community_id, kind, name, config, created_at, updated_at
	FROM action_instances
`

func scanActionInstance(row scanner) (*models.ActionInstance, error) {
	var (
		instance models.ActionInstance
		config   []byte
	)

	err := row.Scan(&instance.ID, &instance.CommunityID, &instance.Kind, &instance.Name, &config, &instance.CreatedAt, &instance.UpdatedAt)
	if err != nil {
		return nil, err
	}

	instance.Config, err = unmarshalJSON(config)
	if err != nil {
		return nil, err
	}

	return &instance, nil
}

func (r *ActionInstanceRepository) GetByID(ctx context.Context, id string) (*models.ActionInstance, error) {
	instance, err := scanActionInstance(r.db.QueryRowContext(ctx, selectActionInstances+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "action_instance", id, persistence.ErrActionInstanceNotFound)
		}

		return nil, fmt.Errorf("failed to get action instance: %w", err)
	}

	return instance, nil
}

func (r *ActionInstanceRepository) ListByCommunity(ctx context.Context, communityID string) ([]*models.ActionInstance, error) {
	rows, err := r.db.QueryContext(ctx, selectActionInstances+` WHERE community_id = $1 ORDER BY id`, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to query action instances: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	instances := make([]*models.ActionInstance, 0)

	for rows.Next() {
		instance, err := scanActionInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan action instance: %w", err)
		}

		instances = append(instances, instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate action instances: %w", err)
	}

	return instances, nil
}

func (r *ActionInstanceRepository) Save(ctx context.Context, instance *models.ActionInstance) error {
	now := time.Now().UTC()
	if instance.CreatedAt.IsZero() {
		instance.CreatedAt = now
	}

	instance.UpdatedAt = now

	config, err := marshalJSON(instance.Config)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO action_instances (id, community_id, kind, name, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			community_id = EXCLUDED.community_id,
			kind = EXCLUDED.kind,
			name = EXCLUDED.name,
			config = EXCLUDED.config,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		instance.ID, instance.CommunityID, instance.Kind, instance.Name, config, instance.CreatedAt, instance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save action instance: %w", err)
	}

	return nil
}

func (r *ActionInstanceRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM action_instances WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete action instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError("Delete", "action_instance", id, persistence.ErrActionInstanceNotFound)
	}

	return nil
}
