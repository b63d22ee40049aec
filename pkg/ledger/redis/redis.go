// Package redis provides a run ledger stored in Redis.
//
// Every run is a JSON document under stageflow:run:<id>; per-rule and
// per-instance sorted sets index run ids by start time.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/stageflow/pkg/ledger"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "stageflow"

// Ledger implements ledger.Ledger on top of a Redis client.
type Ledger struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewLedger connects to the Redis server described by url (redis://host:port/db).
func NewLedger(ctx context.Context, logger *slog.Logger, url string) (*Ledger, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis ledger", "addr", options.Addr, "db", options.DB)

	return NewLedgerWithClient(client, logger), nil
}

// NewLedgerWithClient wraps an existing client.
func NewLedgerWithClient(client redis.UniversalClient, logger *slog.Logger) *Ledger {
	return &Ledger{
		client: client,
		logger: logger.With("module", "redis_ledger"),
	}
}

func runKey(id string) string {
	return keyPrefix + ":run:" + id
}

func ruleIndexKey(ruleID string) string {
	return keyPrefix + ":rule:" + ruleID + ":runs"
}

func instanceIndexKey(instanceID string) string {
	return keyPrefix + ":instance:" + instanceID + ":runs"
}

// appendScript indexes the run and then stores it, in one server-side step.
// KEYS[1] is the run key, the rest are index keys. A failed index write undoes
// the ones before it and leaves the run key unset, so the append can be retried.
var appendScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end

for i = 2, #KEYS do
	local res = redis.pcall("ZADD", KEYS[i], ARGV[2], ARGV[3])
	if type(res) == "table" and res.err then
		for j = 2, i - 1 do
			redis.call("ZREM", KEYS[j], ARGV[3])
		end

		return redis.error_reply(res.err)
	end
end

redis.call("SET", KEYS[1], ARGV[1])

return 1
`)

// Append stores the run once; a second append with the same id fails. The run
// and its index entries are written together or not at all.
func (l *Ledger) Append(ctx context.Context, run *models.Run) (string, error) {
	data, err := json.Marshal(run)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run %s: %w", run.ID, err)
	}

	keys := []string{runKey(run.ID), instanceIndexKey(run.ActionInstanceID)}
	if run.RuleID != "" {
		keys = append(keys, ruleIndexKey(run.RuleID))
	}

	created, err := appendScript.Run(ctx, l.client, keys, data, run.StartedAt.UnixNano(), run.ID).Int()
	if err != nil {
		return "", fmt.Errorf("failed to append run %s: %w", run.ID, err)
	}

	if created == 0 {
		return "", persistence.NewEntityError("Append", "run", run.ID, persistence.ErrRunAlreadyExists)
	}

	return run.ID, nil
}

func (l *Ledger) ListForRule(ctx context.Context, ruleID string) ([]*models.Run, error) {
	return l.list(ctx, ruleIndexKey(ruleID))
}

func (l *Ledger) ListForInstance(ctx context.Context, instanceID string) ([]*models.Run, error) {
	return l.list(ctx, instanceIndexKey(instanceID))
}

func (l *Ledger) list(ctx context.Context, indexKey string) ([]*models.Run, error) {
	ids, err := l.client.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read run index %s: %w", indexKey, err)
	}

	runs := make([]*models.Run, 0, len(ids))
	if len(ids) == 0 {
		return runs, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = runKey(id)
	}

	values, err := l.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			l.logger.WarnContext(ctx, "Run indexed but missing", "run_id", ids[i])

			continue
		}

		var run models.Run

		err := json.Unmarshal([]byte(raw), &run)
		if err != nil {
			l.logger.ErrorContext(ctx, "Failed to decode run", "run_id", ids[i], "error", err)

			continue
		}

		runs = append(runs, &run)
	}

	ledger.SortRuns(runs)

	return runs, nil
}

// HealthCheck pings the server.
func (l *Ledger) HealthCheck(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the client.
func (l *Ledger) Close() error {
	err := l.client.Close()
	if err != nil && !errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}
