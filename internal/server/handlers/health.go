package handlers

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

type HealthHandlers struct {
	svc     TaskService
	version string
	started time.Time
}

func NewHealthHandlers(svc TaskService, version string) *HealthHandlers {
	return &HealthHandlers{
		svc:     svc,
		version: version,
		started: time.Now(),
	}
}

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

type ComponentHealth struct {
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Timestamp  string                     `json:"timestamp"`
	Goroutines int                        `json:"goroutines"`
	Components map[string]ComponentHealth `json:"components"`
}

// Health handles GET /health. It reports unhealthy, with status 503, while
// the scheduler is not running.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	components := map[string]ComponentHealth{
		"scheduler": h.checkScheduler(),
	}

	overall := HealthStatusHealthy
	for _, c := range components {
		if c.Status != HealthStatusHealthy {
			overall = HealthStatusUnhealthy
		}
	}

	resp := HealthResponse{
		Status:     overall,
		Version:    h.version,
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Goroutines: runtime.NumGoroutine(),
		Components: components,
	}

	status := http.StatusOK
	if overall == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}

	JSON(w, status, resp)
}

func (h *HealthHandlers) checkScheduler() ComponentHealth {
	tasks, err := h.svc.Tasks()
	if err != nil {
		return ComponentHealth{
			Status:  HealthStatusUnhealthy,
			Message: err.Error(),
		}
	}

	armed := 0
	for _, t := range tasks {
		if h.svc.Armed(t.ID) {
			armed++
		}
	}

	return ComponentHealth{
		Status:  HealthStatusHealthy,
		Message: fmt.Sprintf("%d tasks, %d armed", len(tasks), armed),
	}
}
