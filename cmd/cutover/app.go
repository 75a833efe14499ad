package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/artpar/cutover/internal/core/deployment"
	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/shell/builder"
	"github.com/artpar/cutover/internal/shell/bundle"
	"github.com/artpar/cutover/internal/shell/cleanup"
	"github.com/artpar/cutover/internal/shell/cutover"
	"github.com/artpar/cutover/internal/shell/docker"
	"github.com/artpar/cutover/internal/shell/lock"
	"github.com/artpar/cutover/internal/shell/pipeline"
	"github.com/artpar/cutover/internal/shell/snapshot"
	"github.com/artpar/cutover/internal/shell/store"
)

// =============================================================================
// Exit Codes
// =============================================================================

const (
	ExitSuccess         = 0
	ExitPipelineFailed  = 1
	ExitConfigError     = 2
	ExitStoreError      = 3
	ExitLockContention  = 4
	ExitDockerError     = 5
	ExitHTTPServerError = 6
)

// ExitError carries the process exit code of a failed command.
type ExitError struct {
	Op       string
	Err      error
	ExitCode int
}

func (e *ExitError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Application
// =============================================================================

// App holds the wired components of one process.
type App struct {
	config     *Config
	logger     *slog.Logger
	clock      clockwork.Clock
	store      store.Store
	docker     docker.Client
	supervisor *docker.Supervisor
	registry   *prometheus.Registry
	metrics    *pipeline.Metrics
	pruner     *cleanup.Manager
	controller *pipeline.Controller
}

// openStore opens the job database, creating its directory when needed.
func openStore(cfg *Config) (store.Store, error) {
	if path := databasePath(cfg.Database.DSN); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, &ExitError{Op: "openStore", Err: err, ExitCode: ExitStoreError}
		}
	}
	s, err := store.NewSQLiteStore(cfg.Database.DSN)
	if err != nil {
		return nil, &ExitError{Op: "openStore", Err: err, ExitCode: ExitStoreError}
	}
	return s, nil
}

func databasePath(dsn string) string {
	if dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return ""
	}
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		dsn = dsn[:i]
	}
	return dsn
}

// NewApp connects to the database and the Docker daemon and wires every
// pipeline stage. buildOutput receives live build output and may be nil.
func NewApp(ctx context.Context, cfg *Config, logger *slog.Logger, buildOutput io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &ExitError{Op: "NewApp", Err: err, ExitCode: ExitConfigError}
	}

	s, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	d, err := docker.NewDockerClient(cfg.Docker.Host)
	if err != nil {
		s.Close()
		return nil, &ExitError{Op: "NewApp", Err: err, ExitCode: ExitDockerError}
	}
	if err := d.Ping(ctx); err != nil {
		s.Close()
		d.Close()
		return nil, &ExitError{Op: "NewApp", Err: err, ExitCode: ExitDockerError}
	}

	app := &App{
		config:   cfg,
		logger:   logger,
		clock:    clockwork.NewRealClock(),
		store:    s,
		docker:   d,
		registry: prometheus.NewRegistry(),
	}
	app.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.metrics = pipeline.NewMetrics(app.registry)
	app.supervisor = docker.NewSupervisor(d, cfg.Cutover.StopTimeout, logger)

	if err := app.wire(buildOutput); err != nil {
		app.Close()
		return nil, &ExitError{Op: "NewApp", Err: err, ExitCode: ExitConfigError}
	}
	return app, nil
}

func (a *App) wire(buildOutput io.Writer) error {
	cfg := a.config
	slot := cfg.Service.Slot()
	repository := deployment.Repository(cfg.Service.Name, cfg.Service.Repository)

	validator := &bundle.Validator{
		Dir:         cfg.Environment.BundleDir,
		FilePattern: cfg.Environment.FilePattern,
		Required:    cfg.Environment.RequiredKeys,
		Logger:      a.logger,
	}

	snapshots, err := snapshot.New(cfg.Build.WorkspaceDir, cfg.Build.Exclude)
	if err != nil {
		return fmt.Errorf("build workspace: %w", err)
	}

	var toolchain builder.Toolchain
	switch cfg.Build.Toolchain {
	case "exec":
		toolchain = &builder.ExecToolchain{Command: cfg.Build.Command, Output: buildOutput, TailLines: cfg.Build.TailLines, Images: a.supervisor}
	default:
		toolchain = &builder.DockerToolchain{Images: a.supervisor, Output: buildOutput, TailLines: cfg.Build.TailLines}
	}

	imageBuilder := builder.New(builder.Config{
		Service:     cfg.Service.Name,
		Environment: cfg.Environment.Default,
		SourceDir:   cfg.Build.SourceDir,
		Descriptor:  cfg.Build.Descriptor,
		Repository:  repository,
		Args:        cfg.Build.BuildArgs(),
	}, snapshots, toolchain, a.store, a.clock, a.logger)

	reclaimer := cutover.NewPortReclaimer(a.supervisor, cutover.ReclaimConfig{
		Command:  cfg.Cutover.ReclaimCommand,
		Attempts: cfg.Cutover.ReclaimAttempts,
		Interval: cfg.Cutover.ReclaimInterval,
	}, a.clock, a.logger)

	options := cutover.DefaultOptions()
	options.RestartPolicy = cfg.Cutover.RestartPolicy
	options.ReclaimGrace = cfg.Cutover.ReclaimGrace
	options.PresenceSettle = cfg.Cutover.PresenceSettle
	options.PresenceAttempts = cfg.Cutover.PresenceAttempts
	options.PresenceInterval = cfg.Cutover.PresenceInterval
	options.ProbeSettle = cfg.Cutover.ProbeSettle
	options.LogTail = cfg.Cutover.LogTail
	options.StrictHealth = cfg.Cutover.StrictHealth

	deployer := cutover.NewManager(a.supervisor, reclaimer, cutover.NewHTTPProber(cfg.Cutover.ProbeTimeout), options, a.clock, a.logger)

	a.pruner = cleanup.NewManager(a.supervisor, a.store, cleanup.Config{
		Repository:     repository,
		RemoveAttempts: cfg.Retention.RemoveAttempts,
		RemoveInterval: cfg.Retention.RemoveInterval,
	}, a.clock, a.logger)

	reporters := []pipeline.Reporter{&pipeline.LogReporter{Logger: a.logger}}
	if cfg.Pipeline.ReportFile != "" {
		reporters = append(reporters, &pipeline.FileReporter{Path: cfg.Pipeline.ReportFile, Format: cfg.Pipeline.ReportFormat})
	}

	a.controller = pipeline.NewController(
		pipeline.Config{
			Slot:    slot,
			Keep:    cfg.Retention.Keep,
			Timeout: cfg.Pipeline.Timeout,
			LogTail: cfg.Cutover.LogTail,
		},
		a.newLock(),
		a.store,
		pipeline.Stages{Validator: validator, Builder: imageBuilder, Deployer: deployer, Pruner: a.pruner},
		reporters,
		a.metrics,
		a.clock,
		a.logger,
	)
	return nil
}

// newLock returns the single-flight lock. A lease outlives the longest job by
// the configured grace.
func (a *App) newLock() lock.Lock {
	if a.config.Pipeline.Lock == "memory" {
		return lock.NewMemoryLock()
	}
	ttl := a.config.Pipeline.Timeout + a.config.Pipeline.LeaseGrace
	return lock.NewLeaseLock(a.store, lock.DefaultLeaseName, ttl, a.clock, a.logger)
}

// Prune applies the retention policy under the single-flight lock.
func (a *App) Prune(ctx context.Context, keep int) (domain.PruneReport, error) {
	release, err := a.newLock().TryAcquire(ctx, 0)
	if err != nil {
		return domain.PruneReport{}, err
	}
	defer release()

	return a.pruner.Prune(ctx, a.config.Service.Name, keep)
}

// Close releases the database and the Docker client.
func (a *App) Close() {
	if a.docker != nil {
		if err := a.docker.Close(); err != nil {
			a.logger.Error("Docker client close error", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Error("database close error", "error", err)
		}
	}
}
