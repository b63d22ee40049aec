package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	fp := NewPersistence("/tmp/test")
	assert.Equal(t, "/tmp/test", fp.root)

	fp = NewPersistence("file:///tmp/test")
	assert.Equal(t, "/tmp/test", fp.root)
}

func TestPersistence_Close(t *testing.T) {
	fp := NewPersistence("./test-data")
	assert.NoError(t, fp.Close(t.Context()))
}

func TestPersistence_HealthCheck(t *testing.T) {
	assert.NoError(t, NewPersistence(t.TempDir()).HealthCheck(t.Context()))

	missing := filepath.Join(t.TempDir(), "missing")
	assert.Error(t, NewPersistence(missing).HealthCheck(t.Context()))
}

func TestPersistence_SaveStage(t *testing.T) {
	testDir := t.TempDir()
	fp := NewPersistence(testDir)

	stage := &models.Stage{ID: "draft", CommunityID: "c1", Name: "Draft", Order: 1}
	require.NoError(t, fp.StageRepository().Save(t.Context(), stage))

	assert.FileExists(t, filepath.Join(testDir, "stages", "draft.json"))
	assert.False(t, stage.CreatedAt.IsZero())
	assert.False(t, stage.UpdatedAt.IsZero())

	got, err := fp.StageRepository().GetByID(t.Context(), "draft")
	require.NoError(t, err)
	assert.Equal(t, "Draft", got.Name)
	assert.Equal(t, "c1", got.CommunityID)
}

func TestPersistence_GetStage_NotFound(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	_, err := fp.StageRepository().GetByID(t.Context(), "nope")
	require.Error(t, err)
	assert.True(t, persistence.IsStageNotFound(err))
}

func TestPersistence_RejectsPathTraversal(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	for _, id := range []string{"", "../escape", "a/b", "a\\b"} {
		_, err := fp.RuleRepository().GetByID(t.Context(), id)
		require.Error(t, err, id)
		assert.ErrorIs(t, err, persistence.ErrInvalidID, id)
	}

	err := fp.StageRepository().Save(t.Context(), &models.Stage{ID: "../escape", CommunityID: "c1", Name: "x"})
	assert.ErrorIs(t, err, persistence.ErrInvalidID)
}

func TestPersistence_ListSkipsCorruptFiles(t *testing.T) {
	testDir := t.TempDir()
	fp := NewPersistence(testDir)

	require.NoError(t, fp.ActionInstanceRepository().Save(t.Context(), &models.ActionInstance{ID: "a1", CommunityID: "c1", Kind: "log"}))
	require.NoError(t, os.WriteFile(filepath.Join(testDir, "action_instances", "broken.json"), []byte("{"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(testDir, "action_instances", "notes.txt"), []byte("x"), 0600))

	instances, err := fp.ActionInstanceRepository().ListByCommunity(t.Context(), "c1")
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "a1", instances[0].ID)
}

func TestPersistence_ListEmptyDirectory(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	rules, err := fp.RuleRepository().ListByCommunity(t.Context(), "c1")
	require.NoError(t, err)
	assert.Empty(t, rules)

	runs, err := fp.RunRepository().ListForRule(t.Context(), "r1")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestPersistence_RulesOrdered(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for _, rule := range []*models.Rule{
		{ID: "r3", CommunityID: "c1", StageID: "s1", Event: models.EventKindPubEnteredStage, ActionInstanceID: "a1", CreatedAt: base.Add(time.Minute)},
		{ID: "r2", CommunityID: "c1", StageID: "s1", Event: models.EventKindPubEnteredStage, ActionInstanceID: "a1", CreatedAt: base},
		{ID: "r1", CommunityID: "c1", StageID: "s1", Event: models.EventKindScheduled, ActionInstanceID: "a1", CreatedAt: base},
		{ID: "r4", CommunityID: "c2", StageID: "s9", Event: models.EventKindScheduled, ActionInstanceID: "a9", CreatedAt: base},
	} {
		require.NoError(t, fp.RuleRepository().Save(t.Context(), rule))
	}

	rules, err := fp.RuleRepository().ListByCommunity(t.Context(), "c1")
	require.NoError(t, err)
	require.Len(t, rules, 3)
	assert.Equal(t, "r1", rules[0].ID)
	assert.Equal(t, "r2", rules[1].ID)
	assert.Equal(t, "r3", rules[2].ID)

	scheduled, err := fp.RuleRepository().ListByEvent(t.Context(), models.EventKindScheduled)
	require.NoError(t, err)
	assert.Len(t, scheduled, 2)
}

func TestPersistence_PubMoveAndStageDelete(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	ctx := t.Context()

	require.NoError(t, fp.StageRepository().Save(ctx, &models.Stage{ID: "s1", CommunityID: "c1", Name: "A"}))
	require.NoError(t, fp.StageRepository().Save(ctx, &models.Stage{ID: "s2", CommunityID: "c1", Name: "B"}))
	require.NoError(t, fp.PubRepository().Save(ctx, &models.Pub{ID: "p1", CommunityID: "c1", StageID: "s1"}))

	require.ErrorIs(t, fp.StageRepository().Delete(ctx, "s1"), persistence.ErrStageNotEmpty)

	require.NoError(t, fp.PubRepository().MoveToStage(ctx, "p1", "s2"))

	pub, err := fp.PubRepository().GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "s2", pub.StageID)

	require.NoError(t, fp.StageRepository().Delete(ctx, "s1"))
	assert.True(t, persistence.IsPubNotFound(fp.PubRepository().MoveToStage(ctx, "p9", "s2")))
	assert.True(t, persistence.IsStageNotFound(fp.PubRepository().MoveToStage(ctx, "p1", "s1")))
}

func TestPersistence_RunAppend(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	ctx := t.Context()
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	run := &models.Run{
		ID:               "run-1",
		AttemptGroupID:   "g1",
		Attempt:          1,
		Final:            true,
		RuleID:           "r1",
		ActionInstanceID: "a1",
		ActionKind:       "log",
		CommunityID:      "c1",
		Input:            map[string]any{"kind": "manual"},
		Status:           models.RunStatusSucceeded,
		StartedAt:        start,
		FinishedAt:       start.Add(time.Second),
	}

	id, err := fp.RunRepository().Append(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	_, err = fp.RunRepository().Append(ctx, run)
	require.ErrorIs(t, err, persistence.ErrRunAlreadyExists)

	runs, err := fp.RunRepository().ListForInstance(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusSucceeded, runs[0].Status)
	assert.Equal(t, time.Second, runs[0].Duration())
}
