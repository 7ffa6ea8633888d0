package handlers

import (
	"encoding/json"
	"io"
	"net/http"
)

// ExecutionHandlers handles execution history endpoints.
type ExecutionHandlers struct {
	svc TaskService
}

// NewExecutionHandlers creates new execution handlers.
func NewExecutionHandlers(svc TaskService) *ExecutionHandlers {
	return &ExecutionHandlers{svc: svc}
}

// List handles GET /api/executions. The optional task_id query parameter
// restricts the result to one task.
func (h *ExecutionHandlers) List(w http.ResponseWriter, r *http.Request) {
	executions, err := h.svc.Executions(r.Context(), r.URL.Query().Get("task_id"))
	if err != nil {
		Fail(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"executions": executions,
		"total":      len(executions),
	})
}

// ReportOutcome handles POST /api/executions/{id}/outcome. The request body
// is stored verbatim as the execution's outcome.
func (h *ExecutionHandlers) ReportOutcome(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		BadRequest(w, "Failed to read request body")
		return
	}
	if !json.Valid(body) {
		BadRequest(w, "Outcome must be valid JSON")
		return
	}

	exec, err := h.svc.ReportOutcome(r.Context(), r.PathValue("id"), json.RawMessage(body))
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, exec)
}
