package actions_test

import (
	"testing"

	"github.com/dukex/stageflow/pkg/actions"
	"github.com/dukex/stageflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sampleConfigs = map[string]map[string]any{
	"log":     {},
	"webhook": {"url": "https://example.com/hook"},
	"email":   {"to": "a@example.com", "subject": "s", "body": "b"},
	"move":    {"stage_id": "published"},
}

func TestNative_KindsAreUnique(t *testing.T) {
	seen := map[string]bool{}

	for _, factory := range actions.Native(actions.Dependencies{}) {
		assert.False(t, seen[factory.ID()], "duplicate kind %s", factory.ID())
		seen[factory.ID()] = true

		assert.NotEmpty(t, factory.Name())
		assert.NotEmpty(t, factory.Description())
		assert.Equal(t, "object", factory.Schema()["type"])
	}

	assert.Len(t, seen, len(sampleConfigs))
}

func TestNative_MergedConfigIsStable(t *testing.T) {
	for _, factory := range actions.Native(actions.Dependencies{}) {
		t.Run(factory.ID(), func(t *testing.T) {
			raw, ok := sampleConfigs[factory.ID()]
			require.True(t, ok)

			merged, fieldErrors := schema.MergeAndValidate(factory.Schema(), raw)
			require.Empty(t, fieldErrors)

			again, fieldErrors := schema.MergeAndValidate(factory.Schema(), merged)
			require.Empty(t, fieldErrors)
			assert.Equal(t, merged, again)

			_, err := factory.Create(merged)
			require.NoError(t, err)
		})
	}
}

func TestNative_LogDefaults(t *testing.T) {
	for _, factory := range actions.Native(actions.Dependencies{}) {
		if factory.ID() != "log" {
			continue
		}

		merged, fieldErrors := schema.MergeAndValidate(factory.Schema(), map[string]any{})
		require.Empty(t, fieldErrors)
		assert.Equal(t, map[string]any{"level": "info"}, merged)
	}
}

func TestNative_RequiredFieldsAreReported(t *testing.T) {
	for _, factory := range actions.Native(actions.Dependencies{}) {
		if factory.ID() == "log" {
			continue
		}

		_, fieldErrors := schema.MergeAndValidate(factory.Schema(), map[string]any{})
		assert.NotEmpty(t, fieldErrors, factory.ID())
	}
}
