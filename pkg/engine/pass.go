package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dukex/stageflow/pkg/invoker"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/otelhelper"
	"github.com/dukex/stageflow/pkg/registry"
	"github.com/dukex/stageflow/pkg/rules"
	"github.com/dukex/stageflow/pkg/schema"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// pass is one Submit or TriggerManual call. The index and the action instances
// are loaded once and shared by every event of the propagation tree.
type pass struct {
	engine    *Engine
	logger    *slog.Logger
	index     *rules.Index
	instances map[string]*models.ActionInstance

	mu   sync.Mutex
	runs []*models.Run
	errs []error
}

// dispatchResult is what one rule (or manual trigger) produced.
type dispatchResult struct {
	runs    []*models.Run
	final   *models.Run
	emitted []models.Event
	err     error
}

func (e *Engine) newPass(ctx context.Context, communityID string) (*pass, error) {
	all, err := e.store.RuleRepository().ListByCommunity(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	instances, err := e.store.ActionInstanceRepository().ListByCommunity(ctx, communityID)
	if err != nil {
		return nil, fmt.Errorf("failed to load action instances: %w", err)
	}

	byID := make(map[string]*models.ActionInstance, len(instances))
	for _, instance := range instances {
		byID[instance.ID] = instance
	}

	return &pass{
		engine:    e,
		logger:    e.logger.With("community_id", communityID),
		index:     rules.NewIndex(communityID, all),
		instances: byID,
	}, nil
}

// propagate dispatches events breadth first. Every event's siblings finish
// before any event they emitted is dispatched.
func (p *pass) propagate(ctx context.Context, queue []models.Event) {
	for len(queue) > 0 {
		event := queue[0]
		queue = queue[1:]

		queue = append(queue, p.dispatch(ctx, event)...)
	}
}

func (p *pass) dispatch(ctx context.Context, event models.Event) []models.Event {
	ctx, span := otelhelper.StartSpan(ctx, p.engine.tracer, "engine.dispatch",
		attribute.String(otelhelper.EventKindKey, string(event.Kind)),
		attribute.String(otelhelper.StageIDKey, event.StageID),
		attribute.Int(otelhelper.EventDepthKey, event.Depth),
	)
	defer span.End()

	p.engine.observer.ObserveEvent(event)

	logger := p.logger.With("event", event.Kind, "stage_id", event.StageID, "pub_id", event.PubID, "depth", event.Depth)

	matched := p.resolve(event)

	if event.Depth > p.engine.config.MaxDepth {
		p.recursionLimit(ctx, logger, event, matched)

		return nil
	}

	if len(matched) == 0 {
		logger.DebugContext(ctx, "No rules matched event")

		return nil
	}

	logger.InfoContext(ctx, "Dispatching event", "rules", len(matched))

	results := make([]dispatchResult, len(matched))

	var group errgroup.Group

	group.SetLimit(p.engine.config.Concurrency)

	for i, rule := range matched {
		group.Go(func() error {
			results[i] = p.runRule(ctx, event, rule)

			return nil
		})
	}

	_ = group.Wait()

	for _, result := range results {
		p.collect(result)
	}

	return p.children(ctx, logger, event, results)
}

// resolve returns the rules bound to the event's stage and kind whose rule-level
// filters accept it.
func (p *pass) resolve(event models.Event) []*models.Rule {
	if event.StageID == "" || !event.Kind.IsBindable() {
		return nil
	}

	candidates := p.index.Resolve(event.StageID, event.Kind)
	matched := candidates[:0]

	for _, rule := range candidates {
		if schema.RuleMatches(rule, event) {
			matched = append(matched, rule)
		}
	}

	return matched
}

func (p *pass) runRule(ctx context.Context, event models.Event, rule *models.Rule) dispatchResult {
	instance, ok := p.instances[rule.ActionInstanceID]
	if !ok {
		return p.record(ctx, event, rule.ID, rule.ActionInstanceID, models.ReasonInstanceNotFound,
			fmt.Errorf("action instance %s not found in community %s", rule.ActionInstanceID, rule.CommunityID))
	}

	if instance.CommunityID != rule.CommunityID {
		return p.record(ctx, event, rule.ID, instance.ID, models.ReasonCommunityMismatch,
			fmt.Errorf("%w: rule %s and action instance %s", ErrCommunityMismatch, rule.ID, instance.ID))
	}

	if fieldErrors := schema.ValidateRuleConfig(rule.Event, rule.Config); len(fieldErrors) > 0 {
		return p.record(ctx, event, rule.ID, instance.ID, models.ReasonConfigInvalid,
			fmt.Errorf("invalid rule config: %s", schema.FormatErrors(fieldErrors)))
	}

	return p.runInstance(ctx, event, rule.ID, instance)
}

// runInstance validates the instance config and invokes it.
func (p *pass) runInstance(ctx context.Context, event models.Event, ruleID string, instance *models.ActionInstance) dispatchResult {
	merged, fieldErrors, err := p.engine.validator.MergeAndValidate(instance.Kind, instance.Config)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownActionKind) {
			p.logger.ErrorContext(ctx, "Action instance has unknown kind",
				"rule_id", ruleID,
				"action_instance_id", instance.ID,
				"action_kind", instance.Kind,
			)

			return dispatchResult{err: fmt.Errorf("action instance %s: %w", instance.ID, err)}
		}

		return p.recordInstance(ctx, event, ruleID, instance, merged, models.ReasonConfigInvalid, err)
	}

	if len(fieldErrors) > 0 {
		return p.recordInstance(ctx, event, ruleID, instance, merged, models.ReasonConfigInvalid,
			errors.New(schema.FormatErrors(fieldErrors)))
	}

	outcome, err := p.engine.invoker.Invoke(ctx, invoker.Invocation{
		RuleID:   ruleID,
		Instance: instance,
		Config:   merged,
		Event:    event,
	})

	result := dispatchResult{err: err}
	if outcome != nil {
		result.runs = outcome.Runs
		result.final = outcome.Final
		result.emitted = outcome.Emitted
	}

	return result
}

// record writes a failed run for a rule without executing anything.
func (p *pass) record(ctx context.Context, event models.Event, ruleID, instanceID, reason string, cause error) dispatchResult {
	return p.recordInstance(ctx, event, ruleID, p.instanceOrStub(instanceID), nil, reason, cause)
}

func (p *pass) recordInstance(
	ctx context.Context,
	event models.Event,
	ruleID string,
	instance *models.ActionInstance,
	config map[string]any,
	reason string,
	cause error,
) dispatchResult {
	run, err := p.engine.invoker.Record(ctx, invoker.Invocation{
		RuleID:     ruleID,
		Instance:   instance,
		InstanceID: instance.ID,
		Config:     config,
		Event:      event,
	}, reason, cause)
	if err != nil {
		return dispatchResult{err: err}
	}

	return dispatchResult{runs: []*models.Run{run}, final: run}
}

// instanceOrStub returns the loaded instance, or a bare one carrying only the id.
func (p *pass) instanceOrStub(instanceID string) *models.ActionInstance {
	if instance, ok := p.instances[instanceID]; ok {
		return instance
	}

	return &models.ActionInstance{ID: instanceID}
}

// recursionLimit records one run per rule that would have matched, or one run
// attributed to the event's origin when none would.
func (p *pass) recursionLimit(ctx context.Context, logger *slog.Logger, event models.Event, matched []*models.Rule) {
	p.engine.observer.ObserveRecursionLimit(event)

	cause := fmt.Errorf("event depth %d exceeds limit %d", event.Depth, p.engine.config.MaxDepth)
	logger.WarnContext(ctx, "Recursion limit exceeded", "rules", len(matched))

	if len(matched) > 0 {
		for _, rule := range matched {
			p.collect(p.record(ctx, event, rule.ID, rule.ActionInstanceID, models.ReasonRecursionLimitExceeded, cause))
		}

		return
	}

	if event.Origin == nil {
		return
	}

	p.collect(p.record(ctx, event, event.Origin.RuleID, event.Origin.ActionInstanceID, models.ReasonRecursionLimitExceeded, cause))
}

// children turns emitted events into child events one level deeper, attributed
// to the run that emitted them, in rule order. Move requests are not children:
// they are applied here, and the left and entered events they produce are.
func (p *pass) children(ctx context.Context, logger *slog.Logger, parent models.Event, results []dispatchResult) []models.Event {
	var next []models.Event

	for _, result := range results {
		if result.final == nil {
			continue
		}

		origin := &models.Origin{
			RuleID:           result.final.RuleID,
			ActionInstanceID: result.final.ActionInstanceID,
			RunID:            result.final.ID,
			AttemptGroupID:   result.final.AttemptGroupID,
		}

		for _, emitted := range result.emitted {
			stageID := emitted.StageID
			if stageID == "" {
				stageID = parent.StageID
			}

			child := parent.Child(emitted.Kind, stageID, emitted.Payload, origin)
			if emitted.PubID != "" {
				child.PubID = emitted.PubID
			}

			if child.Kind == models.EventKindPubMoveRequested {
				child.Depth = parent.Depth
				next = append(next, p.move(ctx, logger, child)...)

				continue
			}

			next = append(next, child)
		}
	}

	return next
}

func (p *pass) collect(result dispatchResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs = append(p.runs, result.runs...)

	if result.err != nil {
		p.errs = append(p.errs, result.err)
	}
}

func (p *pass) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.errs = append(p.errs, err)
}

func (p *pass) result() ([]*models.Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	runs := make([]*models.Run, len(p.runs))
	copy(runs, p.runs)

	return runs, errors.Join(p.errs...)
}
