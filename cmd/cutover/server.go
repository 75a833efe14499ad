package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/artpar/cutover/internal/shell/api"
)

// =============================================================================
// serve
// =============================================================================

type serveOpts struct {
	*rootOpts
}

func newServeCmd(parent *rootOpts) *serveOpts {
	return &serveOpts{rootOpts: parent}
}

func (opts *serveOpts) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the deployment API over HTTP",
		Args:  cobra.NoArgs,
		RunE:  opts.RunE,
	}
}

func (opts *serveOpts) RunE(cmd *cobra.Command, _ []string) error {
	opts.logger.Info("starting cutover", "version", Version, "config", opts.configPath)

	app, err := NewApp(cmd.Context(), opts.config, opts.logger, nil)
	if err != nil {
		return err
	}

	server := NewServer(opts.config, app, opts.logger)
	return server.Start(cmd.Context())
}

// =============================================================================
// Server
// =============================================================================

// Server is the long-running HTTP front of the deployment pipeline.
type Server struct {
	config     *Config
	httpServer *http.Server
	app        *App
	logger     *slog.Logger
}

// NewServer creates a server over a wired application.
func NewServer(cfg *Config, app *App, logger *slog.Logger) *Server {
	metrics := promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{Registry: app.registry})
	handler := api.NewHandler(app.controller, app.store, app.supervisor, cfg.Service.Name, metrics, logger)

	return &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:         cfg.Server.Address(),
			Handler:      handler.Routes(),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		app:    app,
		logger: logger,
	}
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "address", s.config.Server.Address())
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		s.app.Close()
		return &ExitError{
			Op:       "Start",
			Err:      err,
			ExitCode: ExitHTTPServerError,
		}
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown(context.Background())
}

// Shutdown gracefully shuts down the server. A deployment that is still
// running keeps the lease until it expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.app.Close()
	s.logger.Info("shutdown complete")
	return nil
}
