package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPubEventSubmitted(t *testing.T) {
	event := models.Event{Kind: models.EventKindPubEnteredStage, CommunityID: "c1", PubID: "p1", StageID: "s1"}

	msg := NewPubEventSubmitted(event)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, PubEventSubmittedType, msg.GetType())
	assert.Equal(t, PubEventSubmittedType, msg.Type)
	assert.Equal(t, "c1", msg.Key())
	assert.False(t, msg.Timestamp.IsZero())

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded PubEventSubmitted
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, event, decoded.Event)
	assert.Equal(t, msg.ID, decoded.ID)
}

func TestNewManualTriggerRequested(t *testing.T) {
	msg := NewManualTriggerRequested("c1", "a1", "p1", map[string]any{"note": "x"})

	assert.Equal(t, ManualTriggerRequestedType, msg.GetType())
	assert.Equal(t, "c1", msg.Key())
	assert.Equal(t, "a1", msg.ActionInstanceID)
	assert.Equal(t, "p1", msg.PubID)
}

func TestNewRunRecorded(t *testing.T) {
	run := &models.Run{ID: "r1", CommunityID: "c2", Status: models.RunStatusSucceeded}

	msg := NewRunRecorded(run, "worker-1")

	assert.Equal(t, RunRecordedType, msg.GetType())
	assert.Equal(t, "c2", msg.Key())
	assert.Equal(t, "worker-1", msg.WorkerID)
	assert.Equal(t, "r1", msg.Run.ID)
}
