package webhook_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukex/stageflow/pkg/actions/webhook"
	"github.com/dukex/stageflow/pkg/log"
	"github.com/dukex/stageflow/pkg/models"
	"github.com/dukex/stageflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event() models.Event {
	return models.Event{
		Kind:        models.EventKindPubEnteredStage,
		CommunityID: "c1",
		PubID:       "p1",
		StageID:     "s1",
	}
}

func TestNewAction(t *testing.T) {
	t.Parallel()

	action, err := webhook.NewAction(http.DefaultClient, map[string]any{
		"url":     "https://example.com/hook",
		"method":  "put",
		"headers": map[string]any{"X-Token": "abc", "X-Ignored": 1},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://example.com/hook", action.URL)
	assert.Equal(t, http.MethodPut, action.Method)
	assert.Equal(t, map[string]string{"X-Token": "abc"}, action.Headers)

	action, err = webhook.NewAction(http.DefaultClient, map[string]any{"url": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, action.Method)

	_, err = webhook.NewAction(http.DefaultClient, map[string]any{})
	require.ErrorIs(t, err, webhook.ErrURLInvalid)
}

func TestActionFactory(t *testing.T) {
	t.Parallel()

	factory := webhook.NewActionFactory(nil)

	assert.Equal(t, "webhook", factory.ID())
	assert.Equal(t, 15*time.Second, factory.Timeout())
	assert.Equal(t, []any{"url"}, factory.Schema()["required"])

	_, err := factory.Create(map[string]any{"url": "https://example.com/{{ .pub_id"})
	require.Error(t, err)

	action, err := factory.Create(map[string]any{"url": "https://example.com/{{ .pub_id }}"})
	require.NoError(t, err)
	assert.IsType(t, &webhook.Action{}, action)
}

func TestAction_ExecuteRendersEvent(t *testing.T) {
	t.Parallel()

	var (
		gotPath   string
		gotBody   map[string]any
		gotHeader string
		gotType   string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Stage")
		gotType = r.Header.Get("Content-Type")

		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	action, err := webhook.NewActionFactory(server.Client()).Create(map[string]any{
		"url":     server.URL + "/pubs/{{ .pub_id }}",
		"method":  "POST",
		"headers": map[string]any{"X-Stage": "{{ .stage_id }}"},
		"body":    `{"pub": "{{ .pub_id }}", "event": "{{ .kind }}"}`,
	})
	require.NoError(t, err)

	result, err := action.Execute(t.Context(), event(), log.Discard())
	require.NoError(t, err)

	assert.Equal(t, "/pubs/p1", gotPath)
	assert.Equal(t, "s1", gotHeader)
	assert.Equal(t, "application/json", gotType)
	assert.Equal(t, map[string]any{"pub": "p1", "event": "pub-entered-stage"}, gotBody)
	assert.Equal(t, http.StatusOK, result.Output["status_code"])
	assert.Equal(t, map[string]any{"ok": true}, result.Output["body"])
}

func TestAction_ExecuteClassifiesStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		status      int
		wantErr     error
		recoverable bool
	}{
		{name: "server error", status: http.StatusBadGateway, wantErr: webhook.ErrServerError, recoverable: true},
		{name: "rate limited", status: http.StatusTooManyRequests, wantErr: webhook.ErrServerError, recoverable: true},
		{name: "client error", status: http.StatusUnprocessableEntity, wantErr: webhook.ErrClientError, recoverable: false},
		{name: "accepted", status: http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("plain"))
			}))
			defer server.Close()

			action, err := webhook.NewAction(server.Client(), map[string]any{"url": server.URL})
			require.NoError(t, err)

			result, err := action.Execute(t.Context(), event(), log.Discard())
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, "plain", result.Output["body"])

				return
			}

			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.recoverable, protocol.IsRecoverable(err))
		})
	}
}

func TestAction_ExecuteNetworkErrorIsRecoverable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	action, err := webhook.NewAction(http.DefaultClient, map[string]any{"url": url})
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), event(), log.Discard())
	require.Error(t, err)
	assert.True(t, protocol.IsRecoverable(err))
}

func TestAction_ExecuteBadURLIsPermanent(t *testing.T) {
	t.Parallel()

	action, err := webhook.NewAction(http.DefaultClient, map[string]any{"url": "://bad"})
	require.NoError(t, err)

	_, err = action.Execute(t.Context(), event(), log.Discard())
	require.Error(t, err)
	assert.False(t, protocol.IsRecoverable(err))
}
