// Package engine is the trigger engine: it resolves rules for an event, runs
// the bound action instances and propagates the events they emit until the
// propagation tree settles or the depth limit is reached.
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
	"github.com/dukex/stageflow/pkg/persistence"
	"github.com/dukex/stageflow/pkg/registry"
	"github.com/dukex/stageflow/pkg/schema"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrInvalidEvent indicates a submitted event is missing required fields.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrCommunityMismatch indicates entities from different communities were combined.
	ErrCommunityMismatch = errors.New("community mismatch")
)

// Observer receives engine activity, typically for metrics.
type Observer interface {
	invoker.RunObserver
	ObserveEvent(event models.Event)
	ObserveRecursionLimit(event models.Event)
}

type noopObserver struct{}

func (noopObserver) ObserveRun(*models.Run)             {}
func (noopObserver) ObserveEvent(models.Event)          {}
func (noopObserver) ObserveRecursionLimit(models.Event) {}

// Engine orchestrates rule resolution, dispatch and propagation.
type Engine struct {
	store     persistence.Persistence
	registry  *registry.Registry
	validator *schema.Validator
	invoker   *invoker.Invoker
	events    *validator.Validate
	logger    *slog.Logger
	tracer    trace.Tracer
	observer  Observer
	config    Config

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option customises an Engine.
type Option func(*Engine)

func WithConfig(config Config) Option {
	return func(e *Engine) {
		e.config = config
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// New builds an engine and seals reg; no action kinds can be registered afterwards.
func New(store persistence.Persistence, reg *registry.Registry, logger *slog.Logger, opts ...Option) (*Engine, error) {
	engine := &Engine{
		store:     store,
		registry:  reg,
		validator: schema.NewValidator(reg),
		events:    validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger.With("module", "engine"),
		tracer:    otelhelper.NoopTracer(),
		observer:  noopObserver{},
		config:    DefaultConfig(),
		locks:     make(map[string]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(engine)
	}

	if err := engine.config.Validate(); err != nil {
		return nil, err
	}

	reg.Seal()

	engine.invoker = invoker.New(reg, store.RunRepository(), logger,
		invoker.WithPolicy(engine.config.Policy),
		invoker.WithTracer(engine.tracer),
		invoker.WithObserver(engine.observer),
	)

	return engine, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Registry returns the sealed action registry.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

func (e *Engine) communityLock(communityID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	lock, ok := e.locks[communityID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[communityID] = lock
	}

	return lock
}

// Submit processes an external event and everything it causes. It returns when
// the whole propagation tree has settled. Unknown action kinds and store
// failures are joined into the error; the runs recorded so far are returned
// either way.
func (e *Engine) Submit(ctx context.Context, event models.Event) ([]*models.Run, error) {
	if err := e.events.Struct(event); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	if !event.Kind.IsBindable() {
		return nil, fmt.Errorf("%w: %s events cannot be submitted", ErrInvalidEvent, event.Kind)
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.submit",
		attribute.String(otelhelper.CommunityIDKey, event.CommunityID),
		attribute.String(otelhelper.EventKindKey, string(event.Kind)),
		attribute.String(otelhelper.PubIDKey, event.PubID),
	)
	defer span.End()

	lock := e.communityLock(event.CommunityID)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.newPass(ctx, event.CommunityID)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	p.propagate(ctx, []models.Event{event})

	runs, err := p.result()
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return runs, err
}

// TriggerManual runs one action instance without a rule and propagates the
// events it emits. pubID may be empty for instances that do not act on a pub.
func (e *Engine) TriggerManual(
	ctx context.Context,
	communityID, instanceID, pubID string,
	payload map[string]any,
) ([]*models.Run, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.trigger_manual",
		attribute.String(otelhelper.CommunityIDKey, communityID),
		attribute.String(otelhelper.ActionInstanceIDKey, instanceID),
		attribute.String(otelhelper.PubIDKey, pubID),
	)
	defer span.End()

	runs, err := e.triggerManual(ctx, communityID, instanceID, pubID, payload)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	return runs, err
}

func (e *Engine) triggerManual(
	ctx context.Context,
	communityID, instanceID, pubID string,
	payload map[string]any,
) ([]*models.Run, error) {
	lock := e.communityLock(communityID)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.newPass(ctx, communityID)
	if err != nil {
		return nil, err
	}

	instance, ok := p.instances[instanceID]
	if !ok {
		if _, err := e.store.ActionInstanceRepository().GetByID(ctx, instanceID); err != nil {
			return nil, err
		}

		return nil, fmt.Errorf("%w: action instance %s is not in community %s", ErrCommunityMismatch, instanceID, communityID)
	}

	event := models.Event{
		Kind:        models.EventKindManual,
		CommunityID: communityID,
		PubID:       pubID,
		Payload:     payload,
	}

	if pubID != "" {
		pub, err := e.store.PubRepository().GetByID(ctx, pubID)
		if err != nil {
			return nil, err
		}

		if pub.CommunityID != communityID {
			return nil, fmt.Errorf("%w: pub %s is not in community %s", ErrCommunityMismatch, pubID, communityID)
		}

		event.StageID = pub.StageID
	}

	e.observer.ObserveEvent(event)

	result := p.runInstance(ctx, event, "", instance)
	p.collect(result)
	p.propagate(ctx, p.children(ctx, p.logger, event, []dispatchResult{result}))

	return p.result()
}
