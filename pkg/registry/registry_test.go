package registry

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAction struct{}

func (stubAction) Execute(context.Context, models.Event, *slog.Logger) (*protocol.Result, error) {
	return &protocol.Result{}, nil
}

type stubFactory struct {
	id      string
	timeout time.Duration
}

func (f stubFactory) Create(map[string]any) (protocol.Action, error) { return stubAction{}, nil }
func (f stubFactory) ID() string                                     { return f.id }
func (f stubFactory) Name() string                                   { return "Stub " + f.id }
func (f stubFactory) Description() string                            { return "stub action" }
func (f stubFactory) Schema() map[string]any                         { return map[string]any{"type": "object"} }
func (f stubFactory) Timeout() time.Duration                         { return f.timeout }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := NewRegistry(slog.Default())

	require.NoError(t, reg.RegisterAction(stubFactory{id: "stub"}))

	factory, err := reg.Lookup("stub")
	require.NoError(t, err)
	assert.Equal(t, "stub", factory.ID())

	schema, err := reg.Schema("stub")
	require.NoError(t, err)
	assert.Equal(t, "object", schema["type"])
}

func TestRegistry_LookupUnknown(t *testing.T) {
	reg := NewRegistry(slog.Default())

	_, err := reg.Lookup("missing")
	require.ErrorIs(t, err, ErrUnknownActionKind)
	assert.Contains(t, err.Error(), "missing")
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	reg := NewRegistry(slog.Default())

	require.NoError(t, reg.RegisterAction(stubFactory{id: "stub"}))
	assert.ErrorIs(t, reg.RegisterAction(stubFactory{id: "stub"}), ErrDuplicateActionKind)
}

func TestRegistry_Seal(t *testing.T) {
	reg := NewRegistry(slog.Default())
	require.NoError(t, reg.RegisterAction(stubFactory{id: "a"}))

	reg.Seal()
	reg.Seal()

	assert.True(t, reg.Sealed())
	assert.ErrorIs(t, reg.RegisterAction(stubFactory{id: "b"}), ErrRegistrySealed)

	_, err := reg.Lookup("a")
	assert.NoError(t, err)
}

func TestRegistry_Timeout(t *testing.T) {
	reg := NewRegistry(slog.Default())
	require.NoError(t, reg.RegisterAction(stubFactory{id: "fast", timeout: time.Second}))
	require.NoError(t, reg.RegisterAction(stubFactory{id: "default"}))

	assert.Equal(t, time.Second, reg.Timeout("fast", 30*time.Second))
	assert.Equal(t, 30*time.Second, reg.Timeout("default", 30*time.Second))
	assert.Equal(t, 30*time.Second, reg.Timeout("missing", 30*time.Second))
}

func TestRegistry_ActionKindsSorted(t *testing.T) {
	reg := NewRegistry(slog.Default())
	require.NoError(t, reg.RegisterAction(stubFactory{id: "b"}))
	require.NoError(t, reg.RegisterAction(stubFactory{id: "a"}))

	kinds := reg.ActionKinds()
	require.Len(t, kinds, 2)
	assert.Equal(t, "a", kinds[0].Kind)
	assert.Equal(t, "Stub b", kinds[1].Name)
}

func TestRegistry_LoadActionPlugins_MissingDirectory(t *testing.T) {
	reg := NewRegistry(slog.Default())

	plugins, err := reg.LoadActionPlugins(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, plugins)
}
