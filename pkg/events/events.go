// Package events defines the messages stageflow exchanges over the event bus.
package events

import (
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every stageflow message. Messages are keyed by community so a
// partitioned transport keeps one community's events in order.
const Topic = "stageflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// PubEventSubmittedType asks a worker to run the rules for a pub event.
	PubEventSubmittedType EventType = "pub.event.submitted"
	// ManualTriggerRequestedType asks a worker to run one action instance.
	ManualTriggerRequestedType EventType = "action.manual.requested"
	// RunRecordedType announces a run appended to the ledger.
	RunRecordedType EventType = "run.recorded"
)

type BaseEvent struct {
	ID          string    `json:"id"`
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	CommunityID string    `json:"community_id"`
	WorkerID    string    `json:"worker_id,omitempty"`
}

func NewBaseEvent(eventType EventType, communityID string) BaseEvent {
	return BaseEvent{
		ID:          uuid.New().String(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		CommunityID: communityID,
	}
}

// Key returns the partition key of the message.
func (b BaseEvent) Key() string {
	return b.CommunityID
}

type PubEventSubmitted struct {
	BaseEvent

	Event models.Event `json:"event"`
}

func NewPubEventSubmitted(event models.Event) *PubEventSubmitted {
	return &PubEventSubmitted{
		BaseEvent: NewBaseEvent(PubEventSubmittedType, event.CommunityID),
		Event:     event,
	}
}

func (PubEventSubmitted) GetType() EventType {
	return PubEventSubmittedType
}

type ManualTriggerRequested struct {
	BaseEvent

	ActionInstanceID string         `json:"action_instance_id"`
	PubID            string         `json:"pub_id,omitempty"`
	Payload          map[string]any `json:"payload,omitempty"`
}

func NewManualTriggerRequested(communityID, instanceID, pubID string, payload map[string]any) *ManualTriggerRequested {
	return &ManualTriggerRequested{
		BaseEvent:        NewBaseEvent(ManualTriggerRequestedType, communityID),
		ActionInstanceID: instanceID,
		PubID:            pubID,
		Payload:          payload,
	}
}

func (ManualTriggerRequested) GetType() EventType {
	return ManualTriggerRequestedType
}

type RunRecorded struct {
	BaseEvent

	Run models.Run `json:"run"`
}

func NewRunRecorded(run *models.Run, workerID string) *RunRecorded {
	base := NewBaseEvent(RunRecordedType, run.CommunityID)
	base.WorkerID = workerID

	return &RunRecorded{BaseEvent: base, Run: *run}
}

func (RunRecorded) GetType() EventType {
	return RunRecordedType
}
