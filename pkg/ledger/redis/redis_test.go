package redis_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/stageflow/pkg/ledger"
	ledgerredis "github.com/dukex/stageflow/pkg/ledger/redis"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupLedger(t *testing.T) (*ledgerredis.Ledger, context.Context, *redis.Client) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	url := fmt.Sprintf("redis://%s:%s/0", host, port.Port())

	l, err := ledgerredis.NewLedger(ctx, logger, url)
	require.NoError(t, err)

	options, err := redis.ParseURL(url)
	require.NoError(t, err)

	client := redis.NewClient(options)

	t.Cleanup(func() {
		assert.NoError(t, client.Close())
		assert.NoError(t, l.Close())
		assert.NoError(t, testcontainers.TerminateContainer(container))
		cancel()
	})

	return l, ctx, client
}

func TestNewLedger_InvalidURL(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	_, err := ledgerredis.NewLedger(t.Context(), logger, "not-a-url")
	assert.Error(t, err)
}

func TestLedger_AppendAndList(t *testing.T) {
	l, ctx, _ := setupLedger(t)
	require.NoError(t, l.HealthCheck(ctx))

	group := uuid.NewString()
	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	first := &models.Run{
		ID: uuid.NewString(), AttemptGroupID: group, Attempt: 1, RuleID: "r1", ActionInstanceID: "a1",
		ActionKind: "http", CommunityID: "c1", Status: models.RunStatusTimedOut, Reason: models.ReasonTimedOut,
		StartedAt: start, FinishedAt: start.Add(time.Second),
	}
	second := &models.Run{
		ID: uuid.NewString(), AttemptGroupID: group, Attempt: 2, Final: true, RuleID: "r1", ActionInstanceID: "a1",
		ActionKind: "http", CommunityID: "c1", Status: models.RunStatusSucceeded,
		StartedAt: start.Add(2 * time.Second), FinishedAt: start.Add(3 * time.Second),
	}
	manual := &models.Run{
		ID: uuid.NewString(), AttemptGroupID: uuid.NewString(), Attempt: 1, Final: true, ActionInstanceID: "a1",
		ActionKind: "http", CommunityID: "c1", Status: models.RunStatusFailed, Reason: models.ReasonPermanentFailure,
		StartedAt: start.Add(4 * time.Second), FinishedAt: start.Add(5 * time.Second),
	}

	for _, run := range []*models.Run{second, first, manual} {
		id, err := l.Append(ctx, run)
		require.NoError(t, err)
		assert.Equal(t, run.ID, id)
	}

	_, err := l.Append(ctx, first)
	require.ErrorIs(t, err, persistence.ErrRunAlreadyExists)

	forRule, err := l.ListForRule(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, forRule, 2)
	assert.Equal(t, first.ID, forRule[0].ID)
	assert.Equal(t, second.ID, forRule[1].ID)

	summary := ledger.Summarize(forRule)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 2, summary.Attempts)

	forInstance, err := l.ListForInstance(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, forInstance, 3)

	empty, err := l.ListForRule(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLedger_AppendIsAllOrNothing(t *testing.T) {
	l, ctx, client := setupLedger(t)

	start := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	run := &models.Run{
		ID: uuid.NewString(), AttemptGroupID: uuid.NewString(), Attempt: 1, Final: true, RuleID: "r-broken",
		ActionInstanceID: "a-broken", ActionKind: "log", CommunityID: "c1", Status: models.RunStatusSucceeded,
		StartedAt: start, FinishedAt: start.Add(time.Second),
	}

	// A plain string where the rule index belongs makes ZADD fail with WRONGTYPE.
	ruleIndex := "stageflow:rule:r-broken:runs"
	require.NoError(t, client.Set(ctx, ruleIndex, "not-a-sorted-set", 0).Err())

	_, err := l.Append(ctx, run)
	require.Error(t, err)
	assert.NotErrorIs(t, err, persistence.ErrRunAlreadyExists)

	exists, err := client.Exists(ctx, "stageflow:run:"+run.ID).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	forInstance, err := l.ListForInstance(ctx, "a-broken")
	require.NoError(t, err)
	assert.Empty(t, forInstance)

	require.NoError(t, client.Del(ctx, ruleIndex).Err())

	id, err := l.Append(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, run.ID, id)

	forRule, err := l.ListForRule(ctx, "r-broken")
	require.NoError(t, err)
	require.Len(t, forRule, 1)
	assert.Equal(t, run.ID, forRule[0].ID)
}
