// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/dukex/stageflow/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	stageRepo    *StageRepository
	ruleRepo     *RuleRepository
	instanceRepo *ActionInstanceRepository
	pubRepo      *PubRepository
	runRepo      *RunRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and migrates the schema.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		stageRepo:    &StageRepository{db: database, logger: logger},
		ruleRepo:     &RuleRepository{db: database, logger: logger},
		instanceRepo: &ActionInstanceRepository{db: database, logger: logger},
		pubRepo:      &PubRepository{db: database, logger: logger},
		runRepo:      &RunRepository{db: database, logger: logger},
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) StageRepository() persistence.StageRepository {
	return p.stageRepo
}

func (p *Persistence) RuleRepository() persistence.RuleRepository {
	return p.ruleRepo
}

func (p *Persistence) ActionInstanceRepository() persistence.ActionInstanceRepository {
	return p.instanceRepo
}

func (p *Persistence) PubRepository() persistence.PubRepository {
	return p.pubRepo
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runRepo
}

// closeRows logs close failures; the caller has already consumed the rows.
func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func marshalJSON(value map[string]any) ([]byte, error) {
	if value == nil {
		return []byte("{}"), nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json column: %w", err)
	}

	return data, nil
}

// marshalNullableJSON keeps nil maps as SQL NULL.
func marshalNullableJSON(value map[string]any) (any, error) {
	if value == nil {
		return nil, nil
	}

	return marshalJSON(value)
}

func unmarshalJSON(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var value map[string]any

	err := json.Unmarshal(data, &value)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal json column: %w", err)
	}

	return value, nil
}
