package server

import (
	"net/http"

	"github.com/watzon/cadence/internal/auth"
	"github.com/watzon/cadence/internal/metrics"
	"github.com/watzon/cadence/internal/server/handlers"
)

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(MetricsMiddleware)

	if r.server.cfg.MaxBodySize > 0 {
		r.Use(MaxBodySizeMiddleware(r.server.cfg.MaxBodySize))
	}
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	svc := r.server.svc

	health := handlers.NewHealthHandlers(svc, r.server.version)
	r.mux.HandleFunc("GET /health", health.Health)
	r.mux.Handle("GET /metrics", metrics.Handler())

	tasks := handlers.NewTaskHandlers(svc)
	r.mux.HandleFunc("GET /api/tasks", r.api(tasks.List))
	r.mux.HandleFunc("POST /api/tasks", r.api(tasks.Create))
	r.mux.HandleFunc("GET /api/tasks/{id}", r.api(tasks.Get))
	r.mux.HandleFunc("PATCH /api/tasks/{id}", r.api(tasks.Update))
	r.mux.HandleFunc("DELETE /api/tasks/{id}", r.api(tasks.Delete))
	r.mux.HandleFunc("POST /api/tasks/{id}/toggle", r.api(tasks.Toggle))
	r.mux.HandleFunc("GET /api/stats", r.api(tasks.Stats))

	execs := handlers.NewExecutionHandlers(svc)
	r.mux.HandleFunc("GET /api/executions", r.api(execs.List))
	r.mux.HandleFunc("POST /api/executions/{id}/outcome", r.api(execs.ReportOutcome))

	if r.server.events != nil {
		stream := handlers.NewEventHandlers(r.server.events)
		r.mux.HandleFunc("GET /api/events", r.api(stream.Stream))
	}

	r.mux.HandleFunc("/api/", func(w http.ResponseWriter, req *http.Request) {
		handlers.NotFound(w, "no such endpoint")
	})
}

// api guards fn with bearer auth when a token service is configured.
func (r *Router) api(fn http.HandlerFunc) http.HandlerFunc {
	if r.server.tokens == nil {
		return fn
	}
	return auth.RequireToken(r.server.tokens)(fn).ServeHTTP
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(r.mux)

	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}

	handler.ServeHTTP(w, req)
}
