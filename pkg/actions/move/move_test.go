package move_test

import (
	"testing"

	"github.com/dukex/stageflow/pkg/actions/move"
	"github.com/dukex/stageflow/pkg/log"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAction_ExecuteEmitsMoveRequest(t *testing.T) {
	t.Parallel()

	action, err := move.NewActionFactory().Create(map[string]any{"stage_id": "published"})
	require.NoError(t, err)

	result, err := action.Execute(t.Context(), models.Event{
		Kind:        models.EventKindPubEnteredStage,
		CommunityID: "c1",
		PubID:       "p1",
		StageID:     "review",
	}, log.Discard())
	require.NoError(t, err)

	require.Len(t, result.Emitted, 1)
	assert.Equal(t, models.EventKindPubMoveRequested, result.Emitted[0].Kind)
	assert.Equal(t, "published", result.Emitted[0].Payload[move.DestinationKey])
	assert.Equal(t, "published", result.Output["requested_stage_id"])
}

func TestAction_ExecuteRendersDestination(t *testing.T) {
	t.Parallel()

	action, err := move.NewActionFactory().Create(map[string]any{"stage_id": "{{ .payload.next }}"})
	require.NoError(t, err)

	result, err := action.Execute(t.Context(), models.Event{
		Kind:        models.EventKindManual,
		CommunityID: "c1",
		PubID:       "p1",
		Payload:     map[string]any{"next": "archive"},
	}, log.Discard())
	require.NoError(t, err)
	assert.Equal(t, "archive", result.Emitted[0].Payload[move.DestinationKey])
}

func TestAction_ExecuteWithoutPub(t *testing.T) {
	t.Parallel()

	action, err := move.NewActionFactory().Create(map[string]any{"stage_id": "published"})
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), models.Event{Kind: models.EventKindScheduled, CommunityID: "c1"}, log.Discard())
	require.ErrorIs(t, err, move.ErrNoPub)
	assert.False(t, protocol.IsRecoverable(err))
}
