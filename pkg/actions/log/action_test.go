package log_action

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/dukex/stageflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogActionFactory(t *testing.T) {
	factory := NewLogActionFactory()
	assert.NotNil(t, factory)
	assert.Equal(t, "log", factory.ID())
	assert.NotEmpty(t, factory.Name())
	assert.NotEmpty(t, factory.Description())
	assert.Equal(t, "object", factory.Schema()["type"])
}

func TestLogActionFactory_Create(t *testing.T) {
	factory := NewLogActionFactory()

	tests := []struct {
		name    string
		config  map[string]any
		wantErr bool
	}{
		{name: "nil config", config: nil},
		{name: "empty config", config: map[string]any{}},
		{name: "config with values", config: map[string]any{"message": "test message", "level": "warn"}},
		{name: "broken template", config: map[string]any{"message": "{{ .pub_id "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := factory.Create(tt.config)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.IsType(t, &LogAction{}, action)
		})
	}
}

func TestNewLogAction(t *testing.T) {
	tests := []struct {
		name          string
		config        map[string]any
		expectedMsg   string
		expectedLevel string
	}{
		{name: "nil config", config: nil, expectedMsg: "", expectedLevel: "info"},
		{name: "message only", config: map[string]any{"message": "test message"}, expectedMsg: "test message", expectedLevel: "info"},
		{name: "message and level", config: map[string]any{"message": "debug message", "level": "debug"}, expectedMsg: "debug message", expectedLevel: "debug"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := NewLogAction(tt.config)
			assert.Equal(t, tt.expectedMsg, action.Message)
			assert.Equal(t, tt.expectedLevel, action.Level)
		})
	}
}

func TestLogAction_Execute(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	action := NewLogAction(map[string]any{"message": "Pub {{ .pub_id }} entered {{ .stage_id }}", "level": "warn"})

	result, err := action.Execute(t.Context(), models.Event{
		Kind:        models.EventKindPubEnteredStage,
		CommunityID: "c1",
		PubID:       "p1",
		StageID:     "s1",
	}, logger)
	require.NoError(t, err)

	assert.Equal(t, "Pub p1 entered s1", result.Output["message"])
	assert.Equal(t, "warn", result.Output["level"])
	assert.Empty(t, result.Emitted)
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "Pub p1 entered s1")
}

func TestLogAction_ExecuteDefaultMessage(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil))

	result, err := NewLogAction(map[string]any{"level": "info"}).Execute(t.Context(), models.Event{Kind: models.EventKindManual}, logger)
	require.NoError(t, err)
	assert.Equal(t, "Event received", result.Output["message"])
	assert.Contains(t, buf.String(), "event=manual")
}
