package memory

import (
	"testing"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistence_Stages(t *testing.T) {
	p := NewPersistence()
	ctx := t.Context()
	repo := p.StageRepository()

	require.NoError(t, repo.Save(ctx, &models.Stage{ID: "s2", CommunityID: "c1", Name: "Review", Order: 2}))
	require.NoError(t, repo.Save(ctx, &models.Stage{ID: "s1", CommunityID: "c1", Name: "Draft", Order: 1}))
	require.NoError(t, repo.Save(ctx, &models.Stage{ID: "s3", CommunityID: "c2", Name: "Other", Order: 1}))

	stages, err := repo.ListByCommunity(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, stages, 2)
	assert.Equal(t, "s1", stages[0].ID)
	assert.Equal(t, "s2", stages[1].ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, persistence.IsStageNotFound(err))
}

func TestPersistence_StageDeleteRequiresEmptyStage(t *testing.T) {
	p := NewPersistence()
	ctx := t.Context()

	require.NoError(t, p.StageRepository().Save(ctx, &models.Stage{ID: "s1", CommunityID: "c1", Name: "Draft"}))
	require.NoError(t, p.StageRepository().Save(ctx, &models.Stage{ID: "s2", CommunityID: "c1", Name: "Review"}))
	require.NoError(t, p.PubRepository().Save(ctx, &models.Pub{ID: "p1", CommunityID: "c1", StageID: "s1"}))

	err := p.StageRepository().Delete(ctx, "s1")
	require.ErrorIs(t, err, persistence.ErrStageNotEmpty)

	require.NoError(t, p.PubRepository().MoveToStage(ctx, "p1", "s2"))
	require.NoError(t, p.StageRepository().Delete(ctx, "s1"))

	err = p.StageRepository().Delete(ctx, "s1")
	assert.True(t, persistence.IsStageNotFound(err))
}

func TestPersistence_RulesOrderedByCreation(t *testing.T) {
	p := NewPersistence()
	ctx := t.Context()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	rules := []*models.Rule{
		{ID: "r-b", CommunityID: "c1", StageID: "s1", Event: models.EventKindPubEnteredStage, ActionInstanceID: "a1", CreatedAt: base},
		{ID: "r-a", CommunityID: "c1", StageID: "s1", Event: models.EventKindPubEnteredStage, ActionInstanceID: "a1", CreatedAt: base},
		{ID: "r-0", CommunityID: "c1", StageID: "s1", Event: models.EventKindManual, ActionInstanceID: "a1", CreatedAt: base.Add(-time.Hour)},
	}
	for _, rule := range rules {
		require.NoError(t, p.RuleRepository().Save(ctx, rule))
	}

	listed, err := p.RuleRepository().ListByCommunity(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, listed, 3)
	assert.Equal(t, []string{"r-0", "r-a", "r-b"}, []string{listed[0].ID, listed[1].ID, listed[2].ID})

	byEvent, err := p.RuleRepository().ListByEvent(ctx, models.EventKindManual)
	require.NoError(t, err)
	require.Len(t, byEvent, 1)
	assert.Equal(t, "r-0", byEvent[0].ID)

	require.NoError(t, p.RuleRepository().Delete(ctx, "r-0"))
	_, err = p.RuleRepository().GetByID(ctx, "r-0")
	assert.True(t, persistence.IsRuleNotFound(err))
}

func TestPersistence_ActionInstances(t *testing.T) {
	p := NewPersistence()
	ctx := t.Context()

	instance := &models.ActionInstance{ID: "a1", CommunityID: "c1", Kind: "log", Config: map[string]any{"level": "info"}}
	require.NoError(t, p.ActionInstanceRepository().Save(ctx, instance))

	got, err := p.ActionInstanceRepository().GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "log", got.Kind)

	listed, err := p.ActionInstanceRepository().ListByCommunity(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, p.ActionInstanceRepository().Delete(ctx, "a1"))
	_, err = p.ActionInstanceRepository().GetByID(ctx, "a1")
	assert.True(t, persistence.IsActionInstanceNotFound(err))
}

func TestPersistence_MoveToStage(t *testing.T) {
	p := NewPersistence()
	ctx := t.Context()

	require.NoError(t, p.StageRepository().Save(ctx, &models.Stage{ID: "s1", CommunityID: "c1", Name: "A"}))
	require.NoError(t, p.StageRepository().Save(ctx, &models.Stage{ID: "s2", CommunityID: "c1", Name: "B"}))
	require.NoError(t, p.PubRepository().Save(ctx, &models.Pub{ID: "p1", CommunityID: "c1", StageID: "s1"}))

	require.NoError(t, p.PubRepository().MoveToStage(ctx, "p1", "s2"))

	pub, err := p.PubRepository().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "s2", pub.StageID)

	err = p.PubRepository().MoveToStage(ctx, "p1", "missing")
	assert.True(t, persistence.IsStageNotFound(err))

	err = p.PubRepository().MoveToStage(ctx, "missing", "s2")
	assert.True(t, persistence.IsPubNotFound(err))

	inB, err := p.PubRepository().ListByStage(ctx, "s2")
	require.NoError(t, err)
	assert.Len(t, inB, 1)
}

func TestPersistence_RunsAreAppendOnly(t *testing.T) {
	p := NewPersistence()
	ctx := t.Context()
	runs := p.RunRepository()
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	second := &models.Run{ID: "run-2", RuleID: "r1", ActionInstanceID: "a1", StartedAt: start.Add(time.Second)}
	first := &models.Run{ID: "run-1", RuleID: "r1", ActionInstanceID: "a1", StartedAt: start}
	manual := &models.Run{ID: "run-3", ActionInstanceID: "a1", StartedAt: start.Add(2 * time.Second)}

	for _, run := range []*models.Run{second, first, manual} {
		id, err := runs.Append(ctx, run)
		require.NoError(t, err)
		assert.Equal(t, run.ID, id)
	}

	_, err := runs.Append(ctx, first)
	require.ErrorIs(t, err, persistence.ErrRunAlreadyExists)

	forRule, err := runs.ListForRule(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, forRule, 2)
	assert.Equal(t, "run-1", forRule[0].ID)
	assert.Equal(t, "run-2", forRule[1].ID)

	forInstance, err := runs.ListForInstance(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, forInstance, 3)
}

func TestPersistence_HealthCheckAndClose(t *testing.T) {
	p := NewPersistence()

	assert.NoError(t, p.HealthCheck(t.Context()))
	assert.NoError(t, p.Close(t.Context()))
}
