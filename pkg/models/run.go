package models

import "time"

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusTimedOut  RunStatus = "timed-out"
)

// Failure reasons recorded on runs.
const (
	ReasonConfigInvalid          = "config-invalid"
	ReasonRecursionLimitExceeded = "recursion-limit-exceeded"
	ReasonRecoverableFailure     = "recoverable-failure"
	ReasonPermanentFailure       = "permanent-failure"
	ReasonTimedOut               = "timed-out"
	ReasonCancelled              = "cancelled"
	ReasonMoveRejected           = "move-rejected"
	ReasonInstanceNotFound       = "instance-not-found"
	ReasonCommunityMismatch      = "community-mismatch"
)

// Run is the immutable record of one action execution attempt.
type Run struct {
	ID               string         `json:"id"`
	AttemptGroupID   string         `json:"attempt_group_id"`
	Attempt          int            `json:"attempt"`
	Final            bool           `json:"final"`
	RuleID           string         `json:"rule_id,omitempty"`
	ActionInstanceID string         `json:"action_instance_id"`
	ActionKind       string         `json:"action_kind"`
	CommunityID      string         `json:"community_id"`
	Input            map[string]any `json:"input"`
	Config           map[string]any `json:"config,omitempty"`
	Status           RunStatus      `json:"status"`
	Reason           string         `json:"reason,omitempty"`
	Result           map[string]any `json:"result,omitempty"`
	Error            string         `json:"error,omitempty"`
	StartedAt        time.Time      `json:"started_at"`
	FinishedAt       time.Time      `json:"finished_at"`
}

// Succeeded reports whether the run completed successfully.
func (r *Run) Succeeded() bool {
	return r.Status == RunStatusSucceeded
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
