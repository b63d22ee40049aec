package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// RunRepository is the append-only run ledger backed by the action_runs table.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func (r *RunRepository) Append(ctx context.Context, run *models.Run) (string, error) {
	input, err := marshalJSON(run.Input)
	if err != nil {
		return "", err
	}

	config, err := marshalNullableJSON(run.Config)
	if err != nil {
		return "", err
	}

	result, err := marshalNullableJSON(run.Result)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO action_runs (
			id, attempt_group_id, attempt, final, rule_id, action_instance_id, action_kind,
			community_id, input, config, status, reason, result, error_message, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.AttemptGroupID, run.Attempt, run.Final, run.RuleID, run.ActionInstanceID, run.ActionKind,
		run.CommunityID, input, config, string(run.Status), run.Reason, result, run.Error, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return "", persistence.NewEntityError("Append", "run", run.ID, persistence.ErrRunAlreadyExists)
		}

		return "", fmt.Errorf("failed to append run: %w", err)
	}

	return run.ID, nil
}

const selectRuns = `
	SELECT id, attempt_group_id, attempt, final, rule_id, action_instance_id, action_kind,
		   community_id, input, config, status, reason, result, error_message, started_at, finished_at
	FROM action_runs
`

func (r *RunRepository) ListForRule(ctx context.Context, ruleID string) ([]*models.Run, error) {
	return r.query(ctx, selectRuns+` WHERE rule_id = $1 ORDER BY started_at, attempt, id`, ruleID)
}

func (r *RunRepository) ListForInstance(ctx context.Context, instanceID string) ([]*models.Run, error) {
	return r.query(ctx, selectRuns+` WHERE action_instance_id = $1 ORDER BY started_at, attempt, id`, instanceID)
}

func (r *RunRepository) query(ctx context.Context, query string, args ...any) ([]*models.Run, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	runs := make([]*models.Run, 0)

	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

func scanRun(row scanner) (*models.Run, error) {
	var (
		run                   models.Run
		status                string
		input, config, result []byte
	)

	err := row.Scan(
		&run.ID, &run.AttemptGroupID, &run.Attempt, &run.Final, &run.RuleID, &run.ActionInstanceID, &run.ActionKind,
		&run.CommunityID, &input, &config, &status, &run.Reason, &result, &run.Error, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = models.RunStatus(status)

	if run.Input, err = unmarshalJSON(input); err != nil {
		return nil, err
	}

	if run.Config, err = unmarshalJSON(config); err != nil {
		return nil, err
	}

	if run.Result, err = unmarshalJSON(result); err != nil {
		return nil, err
	}

	return &run, nil
}
