package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/cadence/internal/events"
	"github.com/watzon/cadence/internal/task"
)

var fired = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func fixtures() (*task.ScheduledTask, *task.Execution) {
	t := &task.ScheduledTask{
		ID:         "task-1",
		Name:       "Morning digest",
		Prompt:     "summarize my inbox",
		AIProvider: "anthropic",
		Model:      "claude",
		MCPServers: []string{"mail"},
	}
	e := &task.Execution{ID: "exec-1", TaskID: t.ID, StartTime: fired, Status: task.StatusRunning}
	return t, e
}

func TestNewRequest(t *testing.T) {
	tk, e := fixtures()
	tk.MCPServers = nil

	req := NewRequest(tk, e, fired)
	data, err := json.Marshal(req)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"taskId": "task-1",
		"taskName": "Morning digest",
		"executionId": "exec-1",
		"prompt": "summarize my inbox",
		"settings": {"provider": "anthropic", "modelId": "claude", "mcpServers": []},
		"executionTime": "2025-06-01T09:00:00Z"
	}`, string(data))
}

func TestBroadcastHook_Publishes(t *testing.T) {
	bus := events.NewBus(nil)
	defer bus.Close()

	got := make(chan *events.Event, 1)
	_, err := bus.Subscribe(string(events.TopicTaskDispatch), func(_ context.Context, e *events.Event) error {
		got <- e
		return nil
	})
	require.NoError(t, err)

	hook := NewBroadcastHook(bus, true)
	hook.now = func() time.Time { return fired }

	tk, e := fixtures()
	require.NoError(t, hook.Dispatch(context.Background(), tk, e))

	select {
	case ev := <-got:
		req, ok := ev.Payload.(Request)
		require.True(t, ok)
		assert.Equal(t, "exec-1", req.ExecutionID)
		assert.Equal(t, []string{"mail"}, req.Settings.MCPServers)
		assert.Equal(t, fired, req.ExecutionTime)
	case <-time.After(time.Second):
		t.Fatal("dispatch event not delivered")
	}
}

func TestBroadcastHook_NoReceivers(t *testing.T) {
	bus := events.NewBus(nil)
	defer bus.Close()
	tk, e := fixtures()

	err := NewBroadcastHook(bus, true).Dispatch(context.Background(), tk, e)
	assert.ErrorIs(t, err, ErrNoReceivers)
	assert.ErrorIs(t, err, task.ErrDispatch)

	assert.NoError(t, NewBroadcastHook(bus, false).Dispatch(context.Background(), tk, e))
}

func newTestWebhook(t *testing.T, url string, retries int) *WebhookHook {
	t.Helper()
	hook, err := NewWebhookHook(WebhookConfig{
		URL:       url,
		Timeout:   2 * time.Second,
		Retries:   retries,
		RetryWait: time.Millisecond,
		Headers:   map[string]string{"X-Api-Key": "secret"},
	})
	require.NoError(t, err)
	hook.now = func() time.Time { return fired }
	return hook
}

func TestWebhookHook_Success(t *testing.T) {
	var body Request
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("X-Api-Key")
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tk, e := fixtures()
	require.NoError(t, newTestWebhook(t, srv.URL, 0).Dispatch(context.Background(), tk, e))

	assert.Equal(t, "secret", apiKey)
	assert.Equal(t, "task-1", body.TaskID)
	assert.Equal(t, "claude", body.Settings.ModelID)
}

func TestWebhookHook_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tk, e := fixtures()
	require.NoError(t, newTestWebhook(t, srv.URL, 3).Dispatch(context.Background(), tk, e))
	assert.Equal(t, int32(3), hits.Load())
}

func TestWebhookHook_GivesUpAfterRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	tk, e := fixtures()
	err := newTestWebhook(t, srv.URL, 1).Dispatch(context.Background(), tk, e)
	require.ErrorIs(t, err, task.ErrDispatch)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, int32(2), hits.Load())
}

func TestWebhookHook_ClientErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	tk, e := fixtures()
	err := newTestWebhook(t, srv.URL, 3).Dispatch(context.Background(), tk, e)
	require.ErrorIs(t, err, task.ErrDispatch)
	assert.Equal(t, int32(1), hits.Load())
}

func TestNewWebhookHook_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com", "not a url", "http://"} {
		_, err := NewWebhookHook(WebhookConfig{URL: u})
		assert.Error(t, err, u)
	}
}
