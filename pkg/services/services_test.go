package services

import (
	"context"
	"testing"

	"github.com/dukex/stageflow/pkg/log"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/dukex/stageflow/pkg/persistence/memory"
	"github.com/dukex/stageflow/pkg/registry"
	"github.com/dukex/stageflow/pkg/schema"
	"github.com/dukex/stageflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const communityID = "community-1"

func noticeSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"level":   map[string]any{"type": "string", "enum": []any{"info", "warn"}, "default": "info"},
			"message": map[string]any{"type": "string"},
		},
		"required":             []any{"message"},
		"additionalProperties": false,
	}
}

type fixture struct {
	store     *memory.Persistence
	stages    *Stage
	rules     *Rule
	instances *ActionInstance
	pubs      *Pub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := registry.NewRegistry(log.Discard())
	factory := testutil.NewFakeActionFactory("notice", nil)
	factory.ConfigShape = noticeSchema()
	require.NoError(t, reg.RegisterAction(factory))
	reg.Seal()

	store := memory.NewPersistence()

	return &fixture{
		store:     store,
		stages:    NewStage(store),
		rules:     NewRule(store),
		instances: NewActionInstance(store, schema.NewValidator(reg)),
		pubs:      NewPub(store),
	}
}

func (f *fixture) stage(t *testing.T, community, name string) *models.Stage {
	t.Helper()

	stage, err := f.stages.Create(context.Background(), &CreateStageRequest{CommunityID: community, Name: name})
	require.NoError(t, err)

	return stage
}

func (f *fixture) instance(t *testing.T, community string) *models.ActionInstance {
	t.Helper()

	instance, err := f.instances.Create(context.Background(), &CreateActionInstanceRequest{
		CommunityID: community,
		Kind:        "notice",
		Config:      map[string]any{"message": "hello"},
	})
	require.NoError(t, err)

	return instance
}

func TestStage_CreateValidatesRequest(t *testing.T) {
	f := newFixture(t)

	_, err := f.stages.Create(context.Background(), &CreateStageRequest{CommunityID: communityID})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestStage_CreateAndList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.stage(t, communityID, "Submitted")
	f.stage(t, communityID, "Review")
	f.stage(t, "other", "Elsewhere")

	stages, err := f.stages.List(ctx, communityID)
	require.NoError(t, err)
	assert.Len(t, stages, 2)
}

func TestStage_UpdateRenames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stage := f.stage(t, communityID, "Draft")

	updated, err := f.stages.Update(ctx, stage.ID, &UpdateStageRequest{Name: "Published", Order: 2})
	require.NoError(t, err)
	assert.Equal(t, "Published", updated.Name)

	stored, err := f.stages.Get(ctx, stage.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Order)
}

func TestStage_DeleteNonEmptyRequiresTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stage := f.stage(t, communityID, "Review")
	require.NoError(t, f.store.PubRepository().Save(ctx, testutil.CreateTestPub(stage)))

	_, err := f.stages.Delete(ctx, stage.ID, "")
	require.ErrorIs(t, err, ErrStageNotEmpty)
	assert.True(t, IsConflictError(err))

	_, err = f.stages.Get(ctx, stage.ID)
	assert.NoError(t, err)
}

func TestStage_DeleteMigratesPubsAndRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	source := f.stage(t, communityID, "Review")
	target := f.stage(t, communityID, "Published")
	pub := testutil.CreateTestPub(source)
	require.NoError(t, f.store.PubRepository().Save(ctx, pub))

	instance := f.instance(t, communityID)
	rule, err := f.rules.Create(ctx, &CreateRuleRequest{
		StageID:          source.ID,
		Event:            models.EventKindPubEnteredStage,
		ActionInstanceID: instance.ID,
	})
	require.NoError(t, err)

	moved, err := f.stages.Delete(ctx, source.ID, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	stored, err := f.store.PubRepository().GetByID(ctx, pub.ID)
	require.NoError(t, err)
	assert.Equal(t, target.ID, stored.StageID)

	_, err = f.rules.Get(ctx, rule.ID)
	assert.True(t, persistence.IsRuleNotFound(err))

	_, err = f.stages.Get(ctx, source.ID)
	assert.True(t, persistence.IsStageNotFound(err))
}

func TestStage_DeleteRejectsInvalidTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	source := f.stage(t, communityID, "Review")
	foreign := f.stage(t, "other", "Elsewhere")
	require.NoError(t, f.store.PubRepository().Save(ctx, testutil.CreateTestPub(source)))

	_, err := f.stages.Delete(ctx, source.ID, source.ID)
	assert.ErrorIs(t, err, ErrInvalidMigration)

	_, err = f.stages.Delete(ctx, source.ID, foreign.ID)
	assert.ErrorIs(t, err, ErrCommunityMismatch)

	_, err = f.stages.Delete(ctx, source.ID, "missing")
	assert.True(t, persistence.IsStageNotFound(err))
}

func TestStage_DeleteEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stage := f.stage(t, communityID, "Empty")

	moved, err := f.stages.Delete(ctx, stage.ID, "")
	require.NoError(t, err)
	assert.Zero(t, moved)
}

func TestActionInstance_CreateStoresRawConfig(t *testing.T) {
	f := newFixture(t)

	instance := f.instance(t, communityID)

	assert.NotEmpty(t, instance.ID)
	assert.Equal(t, map[string]any{"message": "hello"}, instance.Config)
}

func TestActionInstance_CreateRejectsInvalidConfig(t *testing.T) {
	f := newFixture(t)

	_, err := f.instances.Create(context.Background(), &CreateActionInstanceRequest{
		CommunityID: communityID,
		Kind:        "notice",
		Config:      map[string]any{"level": "loud"},
	})
	require.ErrorIs(t, err, ErrConfigInvalid)
	assert.True(t, IsValidationError(err))

	paths := make([]string, 0)
	for _, fieldErr := range FieldErrors(err) {
		paths = append(paths, fieldErr.Path)
	}

	assert.Contains(t, paths, "message")
	assert.Contains(t, paths, "level")
}

func TestActionInstance_CreateRejectsUnknownKind(t *testing.T) {
	f := newFixture(t)

	_, err := f.instances.Create(context.Background(), &CreateActionInstanceRequest{
		CommunityID: communityID,
		Kind:        "teleport",
	})
	require.ErrorIs(t, err, registry.ErrUnknownActionKind)
	assert.True(t, IsValidationError(err))
}

func TestActionInstance_ValidateConfigMergesDefaults(t *testing.T) {
	f := newFixture(t)

	merged, fieldErrors, err := f.instances.ValidateConfig("notice", map[string]any{"message": "hi"})
	require.NoError(t, err)
	assert.Empty(t, fieldErrors)
	assert.Equal(t, map[string]any{"level": "info", "message": "hi"}, merged)
}

func TestActionInstance_Update(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	instance := f.instance(t, communityID)

	updated, err := f.instances.Update(ctx, instance.ID, &UpdateActionInstanceRequest{
		Name:   "Announce",
		Config: map[string]any{"message": "bye", "level": "warn"},
	})
	require.NoError(t, err)
	assert.Equal(t, "warn", updated.Config["level"])

	_, err = f.instances.Update(ctx, instance.ID, &UpdateActionInstanceRequest{Config: map[string]any{}})
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestActionInstance_DeleteRefusedWhileBound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stage := f.stage(t, communityID, "Review")
	instance := f.instance(t, communityID)
	rule, err := f.rules.Create(ctx, &CreateRuleRequest{
		StageID:          stage.ID,
		Event:            models.EventKindManual,
		ActionInstanceID: instance.ID,
	})
	require.NoError(t, err)

	err = f.instances.Delete(ctx, instance.ID)
	require.ErrorIs(t, err, ErrInstanceInUse)
	assert.True(t, IsConflictError(err))

	require.NoError(t, f.rules.Delete(ctx, rule.ID))
	require.NoError(t, f.instances.Delete(ctx, instance.ID))

	_, err = f.instances.Get(ctx, instance.ID)
	assert.True(t, persistence.IsActionInstanceNotFound(err))
}

func TestRule_CreateChecksBinding(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stage := f.stage(t, communityID, "Review")
	instance := f.instance(t, communityID)
	foreign := f.instance(t, "other")

	tests := []struct {
		name   string
		req    *CreateRuleRequest
		target error
	}{
		{
			name:   "move requests are not bindable",
			req:    &CreateRuleRequest{StageID: stage.ID, Event: models.EventKindPubMoveRequested, ActionInstanceID: instance.ID},
			target: ErrEventNotBindable,
		},
		{
			name:   "instance from another community",
			req:    &CreateRuleRequest{StageID: stage.ID, Event: models.EventKindManual, ActionInstanceID: foreign.ID},
			target: ErrCommunityMismatch,
		},
		{
			name:   "scheduled without cron",
			req:    &CreateRuleRequest{StageID: stage.ID, Event: models.EventKindScheduled, ActionInstanceID: instance.ID},
			target: ErrConfigInvalid,
		},
		{
			name:   "missing instance",
			req:    &CreateRuleRequest{StageID: stage.ID, Event: models.EventKindManual, ActionInstanceID: "missing"},
			target: persistence.ErrActionInstanceNotFound,
		},
		{
			name:   "missing stage",
			req:    &CreateRuleRequest{StageID: "missing", Event: models.EventKindManual, ActionInstanceID: instance.ID},
			target: persistence.ErrStageNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.rules.Create(ctx, tt.req)
			assert.ErrorIs(t, err, tt.target)
		})
	}
}

func TestRule_CreateScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stage := f.stage(t, communityID, "Review")
	instance := f.instance(t, communityID)

	rule, err := f.rules.Create(ctx, &CreateRuleRequest{
		StageID:          stage.ID,
		Event:            models.EventKindScheduled,
		ActionInstanceID: instance.ID,
		Config:           map[string]any{"cron": "*/5 * * * *"},
	})
	require.NoError(t, err)
	assert.Equal(t, communityID, rule.CommunityID)
	assert.False(t, rule.CreatedAt.IsZero())

	rules, err := f.rules.ListByStage(ctx, stage.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, rule.ID, rules[0].ID)
}

func TestRule_UpdateRebinds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stage := f.stage(t, communityID, "Review")
	first := f.instance(t, communityID)
	second := f.instance(t, communityID)

	rule, err := f.rules.Create(ctx, &CreateRuleRequest{
		StageID:          stage.ID,
		Event:            models.EventKindPubFieldChanged,
		ActionInstanceID: first.ID,
	})
	require.NoError(t, err)

	updated, err := f.rules.Update(ctx, rule.ID, &UpdateRuleRequest{
		ActionInstanceID: second.ID,
		Config:           map[string]any{"field": "title"},
	})
	require.NoError(t, err)
	assert.Equal(t, second.ID, updated.ActionInstanceID)
	assert.Equal(t, "title", updated.Config["field"])
}

func TestPub_PlaceReturnsEnteredEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stage := f.stage(t, communityID, "Submitted")

	pub, event, err := f.pubs.Place(ctx, &PlacePubRequest{ID: "pub-1", StageID: stage.ID})
	require.NoError(t, err)
	assert.Equal(t, "pub-1", pub.ID)
	assert.Equal(t, models.EventKindPubEnteredStage, event.Kind)
	assert.Equal(t, stage.ID, event.StageID)
	assert.Equal(t, communityID, event.CommunityID)
	assert.Zero(t, event.Depth)

	stored, err := f.pubs.Get(ctx, "pub-1")
	require.NoError(t, err)
	assert.Equal(t, stage.ID, stored.StageID)
}
