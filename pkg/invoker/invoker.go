// Package invoker runs one action instance against an event, applying the
// per-kind timeout and the retry policy, and records every attempt as a run.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/stageflow/pkg/ledger"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/otelhelper"
	"github.com/dukex/stageflow/pkg/protocol"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Catalog resolves action kinds. *registry.Registry satisfies it.
type Catalog interface {
	Lookup(kind string) (protocol.ActionFactory, error)
	Timeout(kind string, fallback time.Duration) time.Duration
}

// RunObserver is notified of every run after it is appended.
type RunObserver interface {
	ObserveRun(run *models.Run)
}

// Policy is the retry and timeout policy.
type Policy struct {
	MaxAttempts     int           `validate:"gte=1"`
	DefaultTimeout  time.Duration `validate:"gt=0"`
	InitialInterval time.Duration `validate:"gte=0"`
	MaxInterval     time.Duration `validate:"gte=0"`
}

// DefaultPolicy returns three attempts, a 30s timeout and a 500ms-30s backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		DefaultTimeout:  30 * time.Second,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

// Invocation is one request to run an action instance.
type Invocation struct {
	// RuleID is empty for manual triggers.
	RuleID string
	// Instance is required by Invoke. Record accepts a nil instance and falls
	// back to InstanceID.
	Instance   *models.ActionInstance
	InstanceID string
	// Config is the merged, validated action config.
	Config map[string]any
	Event  models.Event
}

func (inv Invocation) instanceID() string {
	if inv.Instance != nil {
		return inv.Instance.ID
	}

	return inv.InstanceID
}

func (inv Invocation) kind() string {
	if inv.Instance != nil {
		return inv.Instance.Kind
	}

	return ""
}

// Outcome is the result of an invocation.
type Outcome struct {
	// Runs holds every attempt in order.
	Runs []*models.Run
	// Final is the authoritative run.
	Final *models.Run
	// Emitted are the events returned by a successful final attempt.
	Emitted []models.Event
}

// Succeeded reports whether the authoritative run succeeded.
func (o *Outcome) Succeeded() bool {
	return o.Final != nil && o.Final.Succeeded()
}

// Invoker executes action instances.
type Invoker struct {
	catalog  Catalog
	ledger   ledger.Ledger
	logger   *slog.Logger
	tracer   trace.Tracer
	policy   Policy
	observer RunObserver
	now      func() time.Time
}

// Option customises an Invoker.
type Option func(*Invoker)

func WithPolicy(policy Policy) Option {
	return func(i *Invoker) {
		i.policy = policy
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(i *Invoker) {
		i.tracer = tracer
	}
}

func WithObserver(observer RunObserver) Option {
	return func(i *Invoker) {
		i.observer = observer
	}
}

// WithClock overrides the clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(i *Invoker) {
		i.now = now
	}
}

func New(catalog Catalog, runs ledger.Ledger, logger *slog.Logger, opts ...Option) *Invoker {
	invoker := &Invoker{
		catalog: catalog,
		ledger:  runs,
		logger:  logger.With("module", "invoker"),
		tracer:  otelhelper.NoopTracer(),
		policy:  DefaultPolicy(),
		now:     func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(invoker)
	}

	if invoker.policy.MaxAttempts < 1 {
		invoker.policy.MaxAttempts = 1
	}

	return invoker
}

// Invoke runs the instance, retrying recoverable failures. An unknown kind
// returns registry.ErrUnknownActionKind and records nothing. A ledger failure
// is returned together with the runs recorded so far.
func (i *Invoker) Invoke(ctx context.Context, inv Invocation) (*Outcome, error) {
	if inv.Instance == nil {
		return nil, errors.New("invocation has no action instance")
	}

	factory, err := i.catalog.Lookup(inv.Instance.Kind)
	if err != nil {
		return nil, err
	}

	ctx, span := otelhelper.StartSpan(ctx, i.tracer, "invoker.invoke",
		attribute.String(otelhelper.RuleIDKey, inv.RuleID),
		attribute.String(otelhelper.ActionInstanceIDKey, inv.Instance.ID),
		attribute.String(otelhelper.ActionKindKey, inv.Instance.Kind),
		attribute.String(otelhelper.CommunityIDKey, inv.Event.CommunityID),
	)
	defer span.End()

	logger := i.logger.With(
		"rule_id", inv.RuleID,
		"action_instance_id", inv.Instance.ID,
		"action_kind", inv.Instance.Kind,
		"community_id", inv.Event.CommunityID,
	)

	outcome := &Outcome{}

	action, err := factory.Create(inv.Config)
	if err != nil {
		logger.WarnContext(ctx, "Action rejected its config", "error", err)

		run, appendErr := i.Record(ctx, inv, models.ReasonConfigInvalid, err)
		if run != nil {
			outcome.Runs = append(outcome.Runs, run)
			outcome.Final = run
		}

		return outcome, appendErr
	}

	timeout := i.catalog.Timeout(inv.Instance.Kind, i.policy.DefaultTimeout)
	groupID := uuid.NewString()
	retry := i.newBackOff()

	for attempt := 1; ; attempt++ {
		run, result := i.attempt(ctx, action, inv, logger, timeout)
		run.AttemptGroupID = groupID
		run.Attempt = attempt

		run.Final = run.Succeeded() ||
			!isRetryable(run) ||
			attempt >= i.policy.MaxAttempts ||
			ctx.Err() != nil

		if err := i.append(ctx, run); err != nil {
			otelhelper.SetError(span, err)

			return outcome, err
		}

		outcome.Runs = append(outcome.Runs, run)

		if run.Final {
			outcome.Final = run

			if run.Succeeded() && result != nil {
				outcome.Emitted = result.Emitted
			}

			break
		}

		wait := retry.NextBackOff()
		logger.InfoContext(ctx, "Retrying action", "attempt", attempt, "reason", run.Reason, "wait", wait)

		if err := sleep(ctx, wait); err != nil {
			cancelled := i.newRun(inv)
			cancelled.AttemptGroupID = groupID
			cancelled.Attempt = attempt + 1
			cancelled.Final = true
			cancelled.Status = models.RunStatusFailed
			cancelled.Reason = models.ReasonCancelled
			cancelled.Error = err.Error()
			cancelled.FinishedAt = cancelled.StartedAt

			if err := i.append(ctx, cancelled); err != nil {
				return outcome, err
			}

			outcome.Runs = append(outcome.Runs, cancelled)
			outcome.Final = cancelled

			break
		}
	}

	span.SetAttributes(attribute.String(otelhelper.RunStatusKey, string(outcome.Final.Status)))

	if !outcome.Final.Succeeded() {
		otelhelper.SetError(span, errors.New(outcome.Final.Error), attribute.String("reason", outcome.Final.Reason))
	}

	return outcome, nil
}

// Record appends a failed run without executing the action.
func (i *Invoker) Record(ctx context.Context, inv Invocation, reason string, cause error) (*models.Run, error) {
	run := i.newRun(inv)
	run.AttemptGroupID = uuid.NewString()
	run.Attempt = 1
	run.Final = true
	run.Status = models.RunStatusFailed
	run.Reason = reason
	run.FinishedAt = run.StartedAt

	if cause != nil {
		run.Error = cause.Error()
	}

	i.logger.InfoContext(ctx, "Recording failed run",
		"reason", reason,
		"rule_id", run.RuleID,
		"action_instance_id", run.ActionInstanceID,
		"error", run.Error,
	)

	if err := i.append(ctx, run); err != nil {
		return nil, err
	}

	return run, nil
}

type attemptResult struct {
	result *protocol.Result
	err    error
}

// attempt executes once. The attempt context is cancelled at the timeout even if
// the action ignores it; a late result is discarded.
func (i *Invoker) attempt(
	ctx context.Context,
	action protocol.Action,
	inv Invocation,
	logger *slog.Logger,
	timeout time.Duration,
) (*models.Run, *protocol.Result) {
	run := i.newRun(inv)

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan attemptResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{err: protocol.Permanent(fmt.Errorf("action panicked: %v", r))}
			}
		}()

		result, err := action.Execute(attemptCtx, inv.Event, logger)
		done <- attemptResult{result: result, err: err}
	}()

	var outcome attemptResult

	select {
	case outcome = <-done:
	case <-attemptCtx.Done():
		outcome = attemptResult{err: attemptCtx.Err()}
	}

	run.FinishedAt = i.now()

	switch {
	case outcome.err == nil:
		run.Status = models.RunStatusSucceeded
		if outcome.result != nil {
			run.Result = outcome.result.Output
		}

		return run, outcome.result
	case ctx.Err() != nil:
		run.Status = models.RunStatusFailed
		run.Reason = models.ReasonCancelled
		run.Error = ctx.Err().Error()
	case errors.Is(attemptCtx.Err(), context.DeadlineExceeded):
		run.Status = models.RunStatusTimedOut
		run.Reason = models.ReasonTimedOut
		run.Error = fmt.Sprintf("action exceeded timeout of %s", timeout)
	case protocol.IsRecoverable(outcome.err):
		run.Status = models.RunStatusFailed
		run.Reason = models.ReasonRecoverableFailure
		run.Error = outcome.err.Error()
	default:
		run.Status = models.RunStatusFailed
		run.Reason = models.ReasonPermanentFailure
		run.Error = outcome.err.Error()
	}

	logger.WarnContext(ctx, "Action attempt failed", "run_id", run.ID, "reason", run.Reason, "error", run.Error)

	return run, nil
}

func isRetryable(run *models.Run) bool {
	return run.Reason == models.ReasonRecoverableFailure || run.Reason == models.ReasonTimedOut
}

func (i *Invoker) newRun(inv Invocation) *models.Run {
	return &models.Run{
		ID:               uuid.NewString(),
		RuleID:           inv.RuleID,
		ActionInstanceID: inv.instanceID(),
		ActionKind:       inv.kind(),
		CommunityID:      inv.Event.CommunityID,
		Input:            inv.Event.Snapshot(),
		Config:           inv.Config,
		StartedAt:        i.now(),
	}
}

// append writes the run even when ctx is already cancelled.
func (i *Invoker) append(ctx context.Context, run *models.Run) error {
	_, err := i.ledger.Append(context.WithoutCancel(ctx), run)
	if err != nil {
		i.logger.ErrorContext(ctx, "Failed to append run", "run_id", run.ID, "error", err)

		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}

	if i.observer != nil {
		i.observer.ObserveRun(run)
	}

	return nil
}

func (i *Invoker) newBackOff() *backoff.ExponentialBackOff {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = i.policy.InitialInterval
	retry.MaxInterval = i.policy.MaxInterval
	retry.MaxElapsedTime = 0
	retry.Reset()

	return retry
}

func sleep(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
