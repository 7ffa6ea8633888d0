// Package server exposes the scheduler over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/watzon/cadence/internal/auth"
	"github.com/watzon/cadence/internal/config"
	"github.com/watzon/cadence/internal/server/handlers"
)

type Server struct {
	cfg        *config.ServerConfig
	svc        handlers.TaskService
	events     handlers.EventSource
	tokens     *auth.TokenService
	version    string
	httpServer *http.Server
	router     *Router
}

type Option func(*Server)

// WithTokens requires a valid bearer token on every /api route.
func WithTokens(tokens *auth.TokenService) Option {
	return func(s *Server) {
		s.tokens = tokens
	}
}

// WithEvents enables the WebSocket event stream.
func WithEvents(source handlers.EventSource) Option {
	return func(s *Server) {
		s.events = source
	}
}

func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

func New(cfg *config.ServerConfig, svc handlers.TaskService, opts ...Option) *Server {
	srv := &Server{
		cfg:     cfg,
		svc:     svc,
		version: "dev",
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.router = NewRouter(srv)
	srv.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      srv.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return srv
}

// Start serves until Shutdown is called. It returns nil after a clean
// shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }

	log.Info().
		Str("addr", ln.Addr().String()).
		Bool("auth", s.tokens != nil).
		Msg("Starting server")

	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.router
}
