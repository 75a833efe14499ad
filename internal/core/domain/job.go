package domain

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Job Errors
// =============================================================================

var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrJobTerminal        = errors.New("job is in a terminal state")
	ErrInvalidBuildNumber = errors.New("build number must be positive")
	ErrEnvironmentMissing = errors.New("environment name is required")
	ErrStaleBuildNumber   = errors.New("build number is not above the last build")
)

// StaleBuildNumberError rejects an explicit build number at or below one
// already used. Build numbers only grow.
type StaleBuildNumberError struct {
	Requested int64
	Next      int64
}

func (e *StaleBuildNumberError) Error() string {
	return fmt.Sprintf("build number %d is not above the last build, next is %d", e.Requested, e.Next)
}

func (e *StaleBuildNumberError) Unwrap() error {
	return ErrStaleBuildNumber
}

// =============================================================================
// Job Status
// =============================================================================

// JobStatus is the lifecycle state of a DeploymentJob.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobValidating JobStatus = "validating"
	JobBuilding   JobStatus = "building"
	JobDeploying  JobStatus = "deploying"
	JobCleaningUp JobStatus = "cleaning_up"
	JobSucceeded  JobStatus = "succeeded"
	JobFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// String implements fmt.Stringer.
func (s JobStatus) String() string {
	return string(s)
}

// =============================================================================
// Failure
// =============================================================================

// Failure is the collected context of a failed job.
type Failure struct {
	Kind    FailureKind `json:"kind" yaml:"kind"`
	Stage   JobStatus   `json:"stage" yaml:"stage"`
	Message string      `json:"message" yaml:"message"`
	Logs    []string    `json:"logs,omitempty" yaml:"logs,omitempty"`
}

// =============================================================================
// Deployment Job
// =============================================================================

// DeploymentJob is one invocation of the pipeline. The ID is the build number.
type DeploymentJob struct {
	ID          int64      `json:"id" db:"id"`
	Environment string     `json:"environment" db:"environment"`
	Service     string     `json:"service" db:"service"`
	Status      JobStatus  `json:"status" db:"status"`
	ArtifactTag string     `json:"artifact_tag,omitempty" db:"artifact_tag"`
	Failure     *Failure   `json:"failure,omitempty"`
	Warnings    []string   `json:"warnings,omitempty"`
	StartedAt   time.Time  `json:"started_at" db:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	FinishedAt  *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// NewDeploymentJob creates a pending job for the given build number.
func NewDeploymentJob(buildNumber int64, environment, service string, now time.Time) (*DeploymentJob, error) {
	if buildNumber <= 0 {
		return nil, ErrInvalidBuildNumber
	}
	if environment == "" {
		return nil, ErrEnvironmentMissing
	}

	now = now.UTC()
	return &DeploymentJob{
		ID:          buildNumber,
		Environment: environment,
		Service:     service,
		Status:      JobPending,
		StartedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Transition moves the job to the next status.
func (j *DeploymentJob) Transition(to JobStatus, now time.Time) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrJobTerminal, j.Status)
	}
	if err := ValidateTransition(j.Status, to); err != nil {
		return err
	}

	j.Status = to
	j.UpdatedAt = now.UTC()
	if to.IsTerminal() {
		finished := now.UTC()
		j.FinishedAt = &finished
	}
	return nil
}

// Fail moves the job to JobFailed, recording the stage it was in.
func (j *DeploymentJob) Fail(kind FailureKind, message string, logs []string, now time.Time) error {
	stage := j.Status
	if err := j.Transition(JobFailed, now); err != nil {
		return err
	}
	j.Failure = &Failure{
		Kind:    kind,
		Stage:   stage,
		Message: message,
		Logs:    logs,
	}
	return nil
}

// Warn appends an advisory message. Terminal jobs are left untouched.
func (j *DeploymentJob) Warn(message string) {
	if j.Status.IsTerminal() {
		return
	}
	j.Warnings = append(j.Warnings, message)
}

// Duration returns the elapsed time of a finished job, or zero.
func (j *DeploymentJob) Duration() time.Duration {
	if j.FinishedAt == nil {
		return 0
	}
	return j.FinishedAt.Sub(j.StartedAt)
}

// =============================================================================
// State Machine
// =============================================================================

// validTransitions defines the allowed state transitions. Stages run strictly
// in order and any non-terminal state may fail.
var validTransitions = map[JobStatus][]JobStatus{
	JobPending:    {JobValidating, JobFailed},
	JobValidating: {JobBuilding, JobFailed},
	JobBuilding:   {JobDeploying, JobFailed},
	JobDeploying:  {JobCleaningUp, JobFailed},
	JobCleaningUp: {JobSucceeded, JobFailed},
	JobSucceeded:  {}, // Terminal state
	JobFailed:     {}, // Terminal state
}

// ValidateTransition checks if a status transition is valid.
func ValidateTransition(from, to JobStatus) error {
	allowed, exists := validTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}

	for _, s := range allowed {
		if s == to {
			return nil
		}
	}

	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

// StageOrder lists the working states in execution order.
func StageOrder() []JobStatus {
	return []JobStatus{JobValidating, JobBuilding, JobDeploying, JobCleaningUp}
}
