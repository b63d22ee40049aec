package testutil

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/protocol"
)

// ExecuteFunc is the behavior of a FakeActionFactory's actions.
type ExecuteFunc func(ctx context.Context, config map[string]any, event models.Event) (*protocol.Result, error)

// FakeActionFactory is a configurable action kind that records every execution.
type FakeActionFactory struct {
	Kind        string
	ConfigShape map[string]any
	// TimeoutValue, when positive, is reported through protocol.TimeoutProvider.
	TimeoutValue time.Duration
	Execute      ExecuteFunc
	// CreateErr is returned from Create when set.
	CreateErr error

	mu    sync.Mutex
	calls []FakeCall
}

// FakeCall is one recorded execution.
type FakeCall struct {
	Config map[string]any
	Event  models.Event
	At     time.Time
}

// NewFakeActionFactory creates a kind with an open object schema.
func NewFakeActionFactory(kind string, execute ExecuteFunc) *FakeActionFactory {
	return &FakeActionFactory{
		Kind:        kind,
		ConfigShape: map[string]any{"type": "object"},
		Execute:     execute,
	}
}

// Succeed returns an ExecuteFunc that succeeds with output and emits events.
func Succeed(output map[string]any, emitted ...models.Event) ExecuteFunc {
	return func(context.Context, map[string]any, models.Event) (*protocol.Result, error) {
		return &protocol.Result{Output: output, Emitted: emitted}, nil
	}
}

// Fail returns an ExecuteFunc that always fails with err.
func Fail(err error) ExecuteFunc {
	return func(context.Context, map[string]any, models.Event) (*protocol.Result, error) {
		return nil, err
	}
}

func (f *FakeActionFactory) ID() string          { return f.Kind }
func (f *FakeActionFactory) Name() string        { return "Fake " + f.Kind }
func (f *FakeActionFactory) Description() string { return "Test action " + f.Kind }

func (f *FakeActionFactory) Schema() map[string]any {
	return f.ConfigShape
}

func (f *FakeActionFactory) Timeout() time.Duration {
	return f.TimeoutValue
}

func (f *FakeActionFactory) Create(config map[string]any) (protocol.Action, error) {
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}

	return &fakeAction{factory: f, config: config}, nil
}

// Calls returns a copy of the recorded executions.
func (f *FakeActionFactory) Calls() []FakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	calls := make([]FakeCall, len(f.calls))
	copy(calls, f.calls)

	return calls
}

// CallCount returns how many times actions of this kind executed.
func (f *FakeActionFactory) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.calls)
}

type fakeAction struct {
	factory *FakeActionFactory
	config  map[string]any
}

func (a *fakeAction) Execute(ctx context.Context, event models.Event, _ *slog.Logger) (*protocol.Result, error) {
	a.factory.mu.Lock()
	a.factory.calls = append(a.factory.calls, FakeCall{Config: a.config, Event: event, At: time.Now()})
	a.factory.mu.Unlock()

	if a.factory.Execute == nil {
		return &protocol.Result{}, nil
	}

	return a.factory.Execute(ctx, a.config, event)
}
