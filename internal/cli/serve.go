package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/watzon/cadence/internal/auth"
	"github.com/watzon/cadence/internal/config"
	"github.com/watzon/cadence/internal/events"
	"github.com/watzon/cadence/internal/executor"
	"github.com/watzon/cadence/internal/schedule"
	"github.com/watzon/cadence/internal/scheduler"
	"github.com/watzon/cadence/internal/server"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and its HTTP API",
	Long: `Run the scheduler and its HTTP API.

On startup every stored task is loaded and its timer armed. Tasks whose
schedule cannot be armed stay registered and are reported with armed=false.
On SIGINT or SIGTERM timers are disarmed, in-flight executions are marked
cancelled and the server drains for scheduler.shutdown_timeout.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides server.host)")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fs, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	bus := events.NewBus(&events.Config{BufferSize: cfg.Scheduler.EventBuffer})
	defer bus.Close()

	hook, err := newHook(&cfg.Hook, bus)
	if err != nil {
		return err
	}

	strategy, err := schedule.NewStrategy(cfg.Scheduler.DefaultTimezone)
	if err != nil {
		return err
	}

	exec := executor.New(executor.Options{
		Store:  fs,
		Hook:   hook,
		Events: bus,
	})

	sched, err := scheduler.New(scheduler.Options{
		Store:    fs,
		Executor: exec,
		Events:   bus,
		Strategy: strategy,
		Retention: scheduler.RetentionConfig{
			Enabled:  cfg.Retention.Enabled,
			MaxAge:   cfg.Retention.MaxAge,
			Interval: cfg.Retention.Interval,
		},
	})
	if err != nil {
		return err
	}

	if err := sched.Initialize(ctx); err != nil {
		return fmt.Errorf("initializing scheduler: %w", err)
	}

	opts := []server.Option{
		server.WithEvents(bus),
		server.WithVersion(version),
	}
	if cfg.Server.Auth.Enabled() {
		tokens, err := auth.NewTokenService(cfg.Server.Auth)
		if err != nil {
			return err
		}
		opts = append(opts, server.WithTokens(tokens))
	} else {
		log.Warn().Msg("API authentication is disabled; set server.auth.secret to enable it")
	}
	srv := server.New(&cfg.Server, sched, opts...)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("hook", cfg.Hook.Driver).
		Str("timezone", cfg.Scheduler.DefaultTimezone).
		Bool("retention", cfg.Retention.Enabled).
		Msg("Scheduler running")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutdown signal received")

		timeout := cfg.Scheduler.ShutdownTimeout
		if timeout <= 0 {
			timeout = config.DefaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), timeout)
		defer cancel()

		return errors.Join(
			srv.Shutdown(shutdownCtx),
			sched.Shutdown(shutdownCtx),
		)
	})

	return g.Wait()
}
