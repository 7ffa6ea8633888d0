package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"GET /api/tasks/{id}", "/api/tasks/:id"},
		{"POST /api/executions/{id}/outcome", "/api/executions/:id/outcome"},
		{"/health", "/health"},
		{"/files/{path...}", "/files/:path"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizePath(tt.in), tt.in)
	}
}

func TestHandlerExposesCollectors(t *testing.T) {
	RecordHTTPRequest(http.MethodGet, "/api/tasks", http.StatusOK, 5*time.Millisecond)
	ExecutionStarted()
	ExecutionFinished("completed", 20*time.Millisecond)
	UpdateSchedulerStats(3, 2, 2)
	RecordCleanup(4)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, name := range []string{
		"cadence_http_requests_total",
		"cadence_executions_total",
		"cadence_execution_duration_seconds",
		"cadence_armed_timers 2",
		`cadence_tasks{state="disabled"} 1`,
		"cadence_cleanup_deleted_executions_total",
	} {
		assert.True(t, strings.Contains(body, name), "missing %s", name)
	}
}
