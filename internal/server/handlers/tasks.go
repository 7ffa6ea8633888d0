package handlers

import (
	"net/http"

	"github.com/watzon/cadence/internal/task"
)

// TaskView is a task as returned by the API. Armed is false for enabled
// tasks whose schedule could not be armed.
type TaskView struct {
	*task.ScheduledTask
	Armed bool `json:"armed"`
}

type TaskHandlers struct {
	svc TaskService
}

func NewTaskHandlers(svc TaskService) *TaskHandlers {
	return &TaskHandlers{svc: svc}
}

func (h *TaskHandlers) view(t *task.ScheduledTask) TaskView {
	return TaskView{ScheduledTask: t, Armed: h.svc.Armed(t.ID)}
}

// List handles GET /api/tasks.
func (h *TaskHandlers) List(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.svc.Tasks()
	if err != nil {
		Fail(w, r, err)
		return
	}

	views := make([]TaskView, 0, len(tasks))
	for _, t := range tasks {
		views = append(views, h.view(t))
	}

	JSON(w, http.StatusOK, map[string]any{
		"tasks": views,
		"total": len(views),
	})
}

// Get handles GET /api/tasks/{id}.
func (h *TaskHandlers) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Task(r.PathValue("id"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, h.view(t))
}

// Create handles POST /api/tasks.
func (h *TaskHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var draft task.Draft
	if err := decodeJSON(r, &draft); err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}

	t, err := h.svc.CreateTask(r.Context(), draft)
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, h.view(t))
}

// Update handles PATCH /api/tasks/{id}.
func (h *TaskHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var u task.Update
	if err := decodeJSON(r, &u); err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}

	t, err := h.svc.UpdateTask(r.Context(), r.PathValue("id"), u)
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, h.view(t))
}

// Toggle handles POST /api/tasks/{id}/toggle.
func (h *TaskHandlers) Toggle(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.ToggleTask(r.Context(), r.PathValue("id"))
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, h.view(t))
}

// Delete handles DELETE /api/tasks/{id}.
func (h *TaskHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteTask(r.Context(), r.PathValue("id")); err != nil {
		Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /api/stats.
func (h *TaskHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		Fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}
