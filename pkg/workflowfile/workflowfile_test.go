package workflowfile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukex/stageflow/pkg/actions"
	"github.com/dukex/stageflow/pkg/log"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence/memory"
	"github.com/dukex/stageflow/pkg/registry"
	"github.com/dukex/stageflow/pkg/schema"
	"github.com/dukex/stageflow/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const document = `
community: community-1
stages:
  - id: submitted
    name: Submitted
  - id: review
    name: Review
    order: 1
action_instances:
  - id: announce
    kind: log
    config:
      message: "{{ .pub_id }} arrived"
  - id: to-review
    kind: move
    config:
      stage_id: review
rules:
  - id: announce-on-submit
    stage: submitted
    event: pub-entered-stage
    action_instance: announce
  - id: advance
    stage: submitted
    event: pub-entered-stage
    action_instance: to-review
`

func newImporter(t *testing.T) (*Importer, *memory.Persistence) {
	t.Helper()

	reg := registry.NewRegistry(log.Discard())
	for _, factory := range actions.Native(actions.Dependencies{}) {
		require.NoError(t, reg.RegisterAction(factory))
	}

	store := memory.NewPersistence()

	return NewImporter(
		services.NewStage(store),
		services.NewActionInstance(store, schema.NewValidator(reg)),
		services.NewRule(store),
	), store
}

func TestParse(t *testing.T) {
	file, err := Parse(strings.NewReader(document))
	require.NoError(t, err)

	assert.Equal(t, "community-1", file.Community)
	assert.Len(t, file.Stages, 2)
	assert.Len(t, file.ActionInstances, 2)
	require.Len(t, file.Rules, 2)
	assert.Equal(t, models.EventKindPubEnteredStage, file.Rules[0].Event)
	assert.Equal(t, "review", file.ActionInstances[1].Config["stage_id"])
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		document string
		contains string
	}{
		{name: "empty", document: "", contains: "empty"},
		{name: "unknown key", document: "community: c\nworkflows: []\n", contains: "workflows"},
		{name: "missing community", document: "stages: []\n", contains: "Community"},
		{
			name:     "duplicate stage",
			document: "community: c\nstages:\n  - {id: a, name: A}\n  - {id: a, name: B}\n",
			contains: "duplicate stage",
		},
		{
			name: "dangling stage reference",
			document: "community: c\naction_instances:\n  - {id: i, kind: log}\n" +
				"rules:\n  - {id: r, stage: nowhere, event: manual, action_instance: i}\n",
			contains: "unknown stage",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.document))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestImporter_ImportIsIdempotent(t *testing.T) {
	importer, store := newImporter(t)
	ctx := context.Background()

	file, err := Parse(strings.NewReader(document))
	require.NoError(t, err)

	result, err := importer.Import(ctx, file)
	require.NoError(t, err)
	assert.Equal(t, Result{Stages: 2, ActionInstances: 2, Rules: 2}, result)

	first, err := store.RuleRepository().ListByCommunity(ctx, "community-1")
	require.NoError(t, err)

	_, err = importer.Import(ctx, file)
	require.NoError(t, err)

	rules, err := store.RuleRepository().ListByCommunity(ctx, "community-1")
	require.NoError(t, err)
	require.Len(t, rules, 2)

	models.SortRules(rules)
	assert.Equal(t, "announce-on-submit", rules[0].ID)
	assert.Equal(t, "advance", rules[1].ID)

	models.SortRules(first)
	assert.True(t, first[0].CreatedAt.Equal(rules[0].CreatedAt))
}

func TestImporter_StopsAtInvalidConfig(t *testing.T) {
	importer, store := newImporter(t)
	ctx := context.Background()

	file, err := Parse(strings.NewReader(`
community: community-1
stages:
  - {id: submitted, name: Submitted}
action_instances:
  - id: hook
    kind: webhook
    config: {method: FETCH}
`))
	require.NoError(t, err)

	result, err := importer.Import(ctx, file)
	require.ErrorIs(t, err, services.ErrConfigInvalid)
	assert.Contains(t, err.Error(), `action instance "hook"`)
	assert.Equal(t, 1, result.Stages)
	assert.Zero(t, result.ActionInstances)

	instances, err := store.ActionInstanceRepository().ListByCommunity(ctx, "community-1")
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatch_CallsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(document), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var changes atomic.Int32

	done := make(chan error, 1)

	go func() {
		done <- Watch(ctx, path, log.Discard(), func(context.Context) { changes.Add(1) })
	}()

	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(document), 0o600)

		return changes.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
