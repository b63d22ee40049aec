package metrics

import (
	"testing"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_ObserveRun(t *testing.T) {
	m := New(prometheus.NewRegistry())
	started := time.Now()

	m.ObserveRun(&models.Run{
		ActionKind: "log",
		Status:     models.RunStatusSucceeded,
		StartedAt:  started,
		FinishedAt: started.Add(20 * time.Millisecond),
	})
	m.ObserveRun(&models.Run{
		ActionKind: "log",
		Status:     models.RunStatusFailed,
		Reason:     models.ReasonConfigInvalid,
	})

	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsRecorded.WithLabelValues("log", "succeeded", "")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RunsRecorded.WithLabelValues("log", "failed", models.ReasonConfigInvalid)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.RunDuration))
}

func TestMetrics_ObserveEvents(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveEvent(models.Event{Kind: models.EventKindPubEnteredStage})
	m.ObserveEvent(models.Event{Kind: models.EventKindPubEnteredStage, Depth: 2})
	m.ObserveRecursionLimit(models.Event{Kind: models.EventKindPubLeftStage, Depth: 11})

	assert.InDelta(t, 2, testutil.ToFloat64(m.EventsDispatched.WithLabelValues("pub-entered-stage")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.RecursionAborts), 0)
}
