package ledger

import (
	"testing"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(id, group string, attempt int, status models.RunStatus, started time.Time) *models.Run {
	return &models.Run{
		ID:             id,
		AttemptGroupID: group,
		Attempt:        attempt,
		Status:         status,
		StartedAt:      started,
		FinishedAt:     started.Add(time.Second),
	}
}

func TestSummarize_CountsFinalAttemptOnly(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	runs := []*models.Run{
		run("a1", "g1", 1, models.RunStatusFailed, base),
		run("a2", "g1", 2, models.RunStatusTimedOut, base.Add(time.Second)),
		run("a3", "g1", 3, models.RunStatusSucceeded, base.Add(2*time.Second)),
		run("b1", "g2", 1, models.RunStatusFailed, base.Add(time.Minute)),
		run("c1", "g3", 1, models.RunStatusTimedOut, base.Add(2*time.Minute)),
	}

	summary := Summarize(runs)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 5, summary.Attempts)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.TimedOut)
	require.NotNil(t, summary.LastFailure)
	assert.Equal(t, "c1", summary.LastFailure.ID)
	assert.Equal(t, "c1", summary.LastRun.ID)
}

func TestSummarize_Empty(t *testing.T) {
	summary := Summarize(nil)

	assert.Zero(t, summary.Total)
	assert.Nil(t, summary.LastFailure)
	assert.Nil(t, summary.LastRun)
}

func TestAuthoritative_UngroupedRunsStandAlone(t *testing.T) {
	now := time.Now()

	out := Authoritative([]*models.Run{
		run("x", "", 1, models.RunStatusFailed, now.Add(time.Second)),
		run("y", "", 1, models.RunStatusSucceeded, now),
	})

	require.Len(t, out, 2)
	assert.Equal(t, "y", out[0].ID)
	assert.Equal(t, "x", out[1].ID)
}
