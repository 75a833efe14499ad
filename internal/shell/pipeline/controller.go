// Package pipeline sequences the deployment stages under the single-flight
// lock and the overall timeout, and reports the outcome of every job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/shell/lock"
)

// =============================================================================
// Stage Interfaces
// =============================================================================

// Validator checks the environment's configuration bundle.
type Validator interface {
	Validate(ctx context.Context, environment string) (domain.ConfigBundle, error)
}

// Builder produces the artifact for a build number.
type Builder interface {
	Build(ctx context.Context, buildNumber int64) (domain.Artifact, error)
}

// Deployer cuts the slot over to an artifact.
type Deployer interface {
	Deploy(ctx context.Context, slot domain.ServiceSlot, artifact domain.Artifact, bundle domain.ConfigBundle) (*domain.CutoverResult, error)
	Logs(ctx context.Context, slot domain.ServiceSlot) []string
}

// Pruner applies the retention policy.
type Pruner interface {
	Prune(ctx context.Context, service string, keep int) (domain.PruneReport, error)
}

// JobStore persists jobs.
type JobStore interface {
	NextBuildNumber(ctx context.Context) (int64, error)
	CreateJob(ctx context.Context, job *domain.DeploymentJob) error
	UpdateJob(ctx context.Context, job *domain.DeploymentJob) error
}

// Stages groups the stage collaborators.
type Stages struct {
	Validator Validator
	Builder   Builder
	Deployer  Deployer
	Pruner    Pruner
}

// =============================================================================
// Controller
// =============================================================================

// Config bounds and targets every job.
type Config struct {
	Slot    domain.ServiceSlot
	Keep    int
	Timeout time.Duration
	LogTail int
}

// Request starts a job. A zero BuildNumber allocates the next one.
type Request struct {
	Environment string
	BuildNumber int64
}

// Controller runs deployment jobs one at a time.
type Controller struct {
	config    Config
	lock      lock.Lock
	jobs      JobStore
	stages    Stages
	reporters []Reporter
	metrics   *Metrics
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewController creates a Controller. metrics may be nil.
func NewController(config Config, l lock.Lock, jobs JobStore, stages Stages, reporters []Reporter, metrics *Metrics, clock clockwork.Clock, logger *slog.Logger) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		config:    config,
		lock:      l,
		jobs:      jobs,
		stages:    stages,
		reporters: reporters,
		metrics:   metrics,
		clock:     clock,
		logger:    logger.With("component", "pipeline"),
	}
}

// Execution is a running job.
type Execution struct {
	jobID   int64
	done    chan struct{}
	outcome domain.Outcome
}

// JobID returns the build number of the job.
func (e *Execution) JobID() int64 {
	return e.jobID
}

// Done is closed once the job is terminal and the lock is released.
func (e *Execution) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the job is terminal and returns its outcome.
func (e *Execution) Wait() domain.Outcome {
	<-e.done
	return e.outcome
}

// Start acquires the lock, records a pending job and runs the stages in the
// background. When another job holds the lock it fails fast with
// domain.ErrLockContention and has no side effects. An explicit build number
// must be at least the next one; a lower number fails with
// *domain.StaleBuildNumberError.
//
// Cancelling ctx stops the job at the next stage boundary. A running stage is
// only interrupted by the timeout.
func (c *Controller) Start(ctx context.Context, req Request) (*Execution, error) {
	if req.Environment == "" {
		return nil, domain.ErrEnvironmentMissing
	}
	if req.BuildNumber < 0 {
		return nil, domain.ErrInvalidBuildNumber
	}

	release, err := c.lock.TryAcquire(ctx, req.BuildNumber)
	if err != nil {
		if errors.Is(err, domain.ErrLockContention) {
			c.metrics.observeContention()
			c.logger.Warn("deployment rejected, another job is running", "environment", req.Environment)
		}
		return nil, err
	}

	job, err := c.createJob(ctx, req)
	if err != nil {
		release()
		return nil, err
	}

	exec := &Execution{jobID: job.ID, done: make(chan struct{})}
	go c.run(ctx, job, exec, release)
	return exec, nil
}

// Run starts a job and waits for its outcome.
func (c *Controller) Run(ctx context.Context, req Request) (domain.Outcome, error) {
	exec, err := c.Start(ctx, req)
	if err != nil {
		return domain.Outcome{}, err
	}
	return exec.Wait(), nil
}

func (c *Controller) createJob(ctx context.Context, req Request) (*domain.DeploymentJob, error) {
	next, err := c.jobs.NextBuildNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate build number: %w", err)
	}
	buildNumber := next
	if req.BuildNumber != 0 {
		if req.BuildNumber < next {
			return nil, &domain.StaleBuildNumberError{Requested: req.BuildNumber, Next: next}
		}
		buildNumber = req.BuildNumber
	}

	job, err := domain.NewDeploymentJob(buildNumber, req.Environment, c.config.Slot.Service, c.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := c.jobs.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// =============================================================================
// Stage Sequencing
// =============================================================================

func (c *Controller) run(ctx context.Context, job *domain.DeploymentJob, exec *Execution, release lock.Release) {
	logger := c.logger.With("job_id", job.ID, "environment", job.Environment)
	logger.Info("deployment started")

	// Stages ignore the caller's cancellation and stop only on timeout.
	stageCtx, cancel := context.WithCancelCause(context.WithoutCancel(ctx))
	defer cancel(nil)

	timer := c.clock.NewTimer(c.config.Timeout)
	defer timer.Stop()
	go func() {
		select {
		case <-timer.Chan():
			cancel(domain.ErrTimeoutExceeded)
		case <-stageCtx.Done():
		}
	}()

	s := &sequence{c: c, ctx: ctx, stageCtx: stageCtx, job: job, logger: logger}
	err := s.execute()

	exec.outcome = c.finish(job, err, s.deployStarted, logger)
	release()
	close(exec.done)
}

// sequence carries one job through the stages.
type sequence struct {
	c        *Controller
	ctx      context.Context // caller context, checked between stages
	stageCtx context.Context
	job      *domain.DeploymentJob
	logger   *slog.Logger

	deployStarted bool
}

func (s *sequence) execute() error {
	var bundle domain.ConfigBundle
	var artifact domain.Artifact
	var result *domain.CutoverResult
	var report domain.PruneReport

	// Stage closures only assign locals; they are read once the stage has
	// returned in time.
	err := s.stage(domain.JobValidating, func(ctx context.Context) error {
		var err error
		bundle, err = s.c.stages.Validator.Validate(ctx, s.job.Environment)
		return err
	})
	if err != nil {
		return err
	}

	err = s.stage(domain.JobBuilding, func(ctx context.Context) error {
		var err error
		artifact, err = s.c.stages.Builder.Build(ctx, s.job.ID)
		return err
	})
	if err != nil {
		return err
	}
	s.job.ArtifactTag = artifact.Tag

	err = s.stage(domain.JobDeploying, func(ctx context.Context) error {
		var err error
		result, err = s.c.stages.Deployer.Deploy(ctx, s.c.config.Slot, artifact, bundle)
		return err
	})
	if err != nil {
		return err
	}
	if result != nil {
		s.advise(result.Advisories)
	}

	err = s.stage(domain.JobCleaningUp, func(ctx context.Context) error {
		var err error
		report, err = s.c.stages.Pruner.Prune(ctx, s.c.config.Slot.Service, s.c.config.Keep)
		return err
	})
	if err != nil {
		return err
	}
	s.advise(report.Advisories)

	return s.c.transition(s.job, domain.JobSucceeded)
}

// stage enters status and runs fn. The result is abandoned if the timeout
// fires first, so a stage that never returns cannot hold the job open.
func (s *sequence) stage(status domain.JobStatus, fn func(ctx context.Context) error) error {
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("%w before %s: %v", domain.ErrCancelled, status, err)
	}
	if err := s.stageCtx.Err(); err != nil {
		return context.Cause(s.stageCtx)
	}
	if err := s.c.transition(s.job, status); err != nil {
		return err
	}
	if status == domain.JobDeploying {
		s.deployStarted = true
	}

	s.logger.Info("stage started", "stage", status)
	started := s.c.clock.Now()

	done := make(chan error, 1)
	go func() { done <- fn(s.stageCtx) }()

	var err error
	select {
	case err = <-done:
	case <-s.stageCtx.Done():
		err = context.Cause(s.stageCtx)
	}
	// A stage that failed because the timeout cancelled it is a timeout.
	if cause := context.Cause(s.stageCtx); err != nil && cause != nil && !errors.Is(err, cause) {
		err = fmt.Errorf("%w: %v", cause, err)
	}

	elapsed := s.c.clock.Since(started)
	s.c.metrics.observeStage(string(status), elapsed)
	if err != nil {
		s.logger.Error("stage failed", "stage", status, "duration", elapsed, "error", err)
		return err
	}
	s.logger.Info("stage finished", "stage", status, "duration", elapsed)
	return nil
}

func (s *sequence) advise(advisories []domain.Advisory) {
	for _, a := range advisories {
		s.job.Warn(a.String())
		s.c.metrics.observeAdvisory(a.Step)
	}
}

// =============================================================================
// Persistence and Finalization
// =============================================================================

func (c *Controller) transition(job *domain.DeploymentJob, status domain.JobStatus) error {
	if err := job.Transition(status, c.clock.Now()); err != nil {
		return err
	}
	c.persist(job)
	return nil
}

func (c *Controller) persist(job *domain.DeploymentJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.jobs.UpdateJob(ctx, job); err != nil {
		c.logger.Error("failed to persist job", "job_id", job.ID, "status", job.Status, "error", err)
	}
}

// finish makes the job terminal and reports it. It runs for every job,
// whatever the way it ended.
func (c *Controller) finish(job *domain.DeploymentJob, err error, deployStarted bool, logger *slog.Logger) domain.Outcome {
	if err != nil {
		logs := domain.LogsOf(err)
		if logs == nil && deployStarted && c.stages.Deployer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			logs = c.stages.Deployer.Logs(ctx, c.config.Slot)
			cancel()
		}
		if c.config.LogTail > 0 && len(logs) > c.config.LogTail {
			logs = logs[len(logs)-c.config.LogTail:]
		}
		if failErr := job.Fail(domain.FailureKindOf(err), err.Error(), logs, c.clock.Now()); failErr != nil {
			logger.Error("failed to mark job failed", "error", failErr)
		}
		c.persist(job)
	}

	outcome := domain.NewOutcome(job, c.config.Slot)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range c.reporters {
		if err := r.Report(ctx, outcome); err != nil {
			logger.Warn("failed to report outcome", "error", err)
		}
	}

	c.metrics.observeRun(string(job.Status))
	return outcome
}
