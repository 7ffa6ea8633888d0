package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/cadence/internal/task"
)

func TestFail(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("task x: %w", task.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"validation", fmt.Errorf("%w: name required", task.ErrValidation), http.StatusBadRequest, "BAD_REQUEST"},
		{"schedule", fmt.Errorf("%w: interval required", task.ErrInvalidSchedule), http.StatusBadRequest, "BAD_REQUEST"},
		{"uninitialized", task.ErrUninitialized, http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"storage", fmt.Errorf("%w: disk full", task.ErrStorage), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			Fail(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestFail_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil), errors.New("open /secret/path: permission denied"))
	assert.NotContains(t, rec.Body.String(), "/secret/path")
}

func TestParseTopics(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"", []string{"task-*"}},
		{" , ", []string{"task-*"}},
		{"task-created", []string{"task-created"}},
		{"task-created, task-deleted", []string{"task-created", "task-deleted"}},
		{"task-{completed,failed},task-dispatch", []string{"task-{completed,failed}", "task-dispatch"}},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, parseTopics(tt.raw))
		})
	}
}

func TestDecodeJSON_RejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Body = http.NoBody
	var v map[string]any
	assert.Error(t, decodeJSON(req, &v))

	req = httptest.NewRequest(http.MethodPost, "/", jsonBody(`{"a":1} {"b":2}`))
	assert.Error(t, decodeJSON(req, &v))

	req = httptest.NewRequest(http.MethodPost, "/", jsonBody(`{"a":1}`))
	require.NoError(t, decodeJSON(req, &v))
	assert.Equal(t, float64(1), v["a"])
}

func jsonBody(s string) *strings.Reader {
	return strings.NewReader(s)
}
