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

// RuleRepository handles rule-related database operations.
type RuleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const selectRules = `
	SELECT id, community_id, stage_id, event, action_instance_id, config, created_at
	FROM rules
`

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*models.Rule, error) {
	row := r.db.QueryRowContext(ctx, selectRules+` WHERE id = $1`, id)

	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewEntityError("GetByID", "rule", id, persistence.ErrRuleNotFound)
		}

		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

func (r *RuleRepository) ListByCommunity(ctx context.Context, communityID string) ([]*models.Rule, error) {
	return r.query(ctx, selectRules+` WHERE community_id = $1 ORDER BY created_at, id`, communityID)
}

func (r *RuleRepository) ListByEvent(ctx context.Context, kind models.EventKind) ([]*models.Rule, error) {
	return r.query(ctx, selectRules+` WHERE event = $1 ORDER BY created_at, id`, string(kind))
}

func (r *RuleRepository) query(ctx context.Context, query string, args ...any) ([]*models.Rule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	rules := make([]*models.Rule, 0)

	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}

		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}

	return rules, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*models.Rule, error) {
	var (
		rule   models.Rule
		event  string
		config []byte
	)

	err := row.Scan(&rule.ID, &rule.CommunityID, &rule.StageID, &event, &rule.ActionInstanceID, &config, &rule.CreatedAt)
	if err != nil {
		return nil, err
	}

	rule.Event = models.EventKind(event)

	rule.Config, err = unmarshalJSON(config)
	if err != nil {
		return nil, err
	}

	return &rule, nil
}

func (r *RuleRepository) Save(ctx context.Context, rule *models.Rule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	config, err := marshalJSON(rule.Config)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rules (id, community_id, stage_id, event, action_instance_id, config, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			community_id = EXCLUDED.community_id,
			stage_id = EXCLUDED.stage_id,
			event = EXCLUDED.event,
			action_instance_id = EXCLUDED.action_instance_id,
			config = EXCLUDED.config
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.CommunityID, rule.StageID, string(rule.Event), rule.ActionInstanceID, config, rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}

	return nil
}

func (r *RuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		return persistence.NewEntityError("Delete", "rule", id, persistence.ErrRuleNotFound)
	}

	return nil
}
