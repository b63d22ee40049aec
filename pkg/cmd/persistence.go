package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/stageflow/pkg/ledger"
	ledgerredis "github.com/dukex/stageflow/pkg/ledger/redis"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/dukex/stageflow/pkg/persistence/file"
	"github.com/dukex/stageflow/pkg/persistence/memory"
	"github.com/dukex/stageflow/pkg/persistence/postgresql"
)

var ErrUnsupportedProvider = errors.New("unsupported provider")

// NewPersistence opens the store described by databaseURL: file://<dir>,
// postgres://..., or memory.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "file":
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "memory":
		return memory.NewPersistence(), nil
	default:
		return nil, fmt.Errorf("%w: database url %q", ErrUnsupportedProvider, databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return databaseURL
	}

	return provider
}

type closableLedger interface {
	ledger.Ledger
	Close() error
}

// ledgerOverride keeps entities in one store and runs in another ledger.
type ledgerOverride struct {
	persistence.Persistence

	runs closableLedger
}

func (p *ledgerOverride) RunRepository() persistence.RunRepository {
	return p.runs
}

func (p *ledgerOverride) Close(ctx context.Context) error {
	return errors.Join(p.runs.Close(), p.Persistence.Close(ctx))
}

// WithLedger routes runs to the ledger at ledgerURL. An empty url keeps the
// store's own run repository.
func WithLedger(ctx context.Context, logger *slog.Logger, store persistence.Persistence, ledgerURL string) (persistence.Persistence, error) {
	if ledgerURL == "" {
		return store, nil
	}

	switch parsePersistenceProvider(ledgerURL) {
	case "redis", "rediss":
		runs, err := ledgerredis.NewLedger(ctx, logger, ledgerURL)
		if err != nil {
			return nil, err
		}

		return &ledgerOverride{Persistence: store, runs: runs}, nil
	default:
		return nil, fmt.Errorf("%w: ledger url %q", ErrUnsupportedProvider, ledgerURL)
	}
}
