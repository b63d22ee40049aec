package eventbus_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/stageflow/pkg/channels/gochannel"
	"github.com/dukex/stageflow/pkg/eventbus"
	"github.com/dukex/stageflow/pkg/events"
	"github.com/dukex/stageflow/pkg/log"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub, log.Discard())
	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

func TestWatermillEventBus_RoundTrip(t *testing.T) {
	bus := newBus(t)

	received := make(chan *events.PubEventSubmitted, 1)

	require.NoError(t, bus.Handle(events.PubEventSubmittedType, func(_ context.Context, event any) error {
		received <- event.(*events.PubEventSubmitted)

		return nil
	}))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	sent := events.NewPubEventSubmitted(models.Event{
		Kind:        models.EventKindPubEnteredStage,
		CommunityID: "c1",
		PubID:       "p1",
		StageID:     "s1",
	})
	require.NoError(t, bus.Publish(ctx, sent.Key(), sent))

	select {
	case got := <-received:
		assert.Equal(t, sent.ID, got.ID)
		assert.Equal(t, sent.Event, got.Event)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestWatermillEventBus_UnhandledTypesAreAcked(t *testing.T) {
	bus := newBus(t)

	var runs atomic.Int32

	require.NoError(t, bus.Handle(events.RunRecordedType, func(context.Context, any) error {
		runs.Add(1)

		return nil
	}))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	manual := events.NewManualTriggerRequested("c1", "a1", "", nil)
	require.NoError(t, bus.Publish(ctx, manual.Key(), manual))

	run := events.NewRunRecorded(&models.Run{ID: "r1", CommunityID: "c1"}, "w1")
	require.NoError(t, bus.Publish(ctx, run.Key(), run))

	assert.Eventually(t, func() bool { return runs.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatermillEventBus_FailedHandlerIsRedelivered(t *testing.T) {
	bus := newBus(t)

	var attempts atomic.Int32

	require.NoError(t, bus.Handle(events.ManualTriggerRequestedType, func(context.Context, any) error {
		if attempts.Add(1) == 1 {
			return errors.New("not yet")
		}

		return nil
	}))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	msg := events.NewManualTriggerRequested("c1", "a1", "p1", nil)
	require.NoError(t, bus.Publish(ctx, msg.Key(), msg))

	assert.Eventually(t, func() bool { return attempts.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatermillEventBus_GenerateID(t *testing.T) {
	bus := newBus(t)

	assert.NotEqual(t, bus.GenerateID(), bus.GenerateID())
}
