package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Pipeline Errors
// =============================================================================

var (
	ErrMissingConfig    = errors.New("missing configuration")
	ErrBuildFailed      = errors.New("build toolchain failed")
	ErrTimeoutExceeded  = errors.New("pipeline timeout exceeded")
	ErrLockContention   = errors.New("another deployment job is running")
	ErrCancelled        = errors.New("pipeline cancelled")
	ErrInstanceNotFound = errors.New("instance not found")
)

// FailureKind classifies why a job failed.
type FailureKind string

const (
	FailureMissingConfig  FailureKind = "missing_config"
	FailureBuildTool      FailureKind = "build_tool"
	FailureCutover        FailureKind = "cutover"
	FailureTimeout        FailureKind = "timeout"
	FailureCancelled      FailureKind = "cancelled"
	FailureLockContention FailureKind = "lock_contention"
	FailureInternal       FailureKind = "internal"
)

// MissingConfigError names the first required item absent from an environment.
type MissingConfigError struct {
	Environment string
	Item        string
	File        bool // Item is the bundle path rather than a key
}

func (e *MissingConfigError) Error() string {
	if e.File {
		return fmt.Sprintf("missing config bundle %s for environment %q", e.Item, e.Environment)
	}
	return fmt.Sprintf("missing required config key %s for environment %q", e.Item, e.Environment)
}

func (e *MissingConfigError) Unwrap() error {
	return ErrMissingConfig
}

// BuildToolError carries the toolchain's exit status and error output.
type BuildToolError struct {
	ExitCode int
	Stderr   string
}

func (e *BuildToolError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr == "" {
		return fmt.Sprintf("build toolchain exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("build toolchain exited with status %d: %s", e.ExitCode, lastLine(stderr))
}

func (e *BuildToolError) Unwrap() error {
	return ErrBuildFailed
}

// CutoverStage names the cut-over step that produced a CutoverError.
type CutoverStage string

const (
	CutoverStartFailed       CutoverStage = "start_failed"
	CutoverPortReclaimFailed CutoverStage = "port_reclaim_failed"
	CutoverHealthCheckFailed CutoverStage = "health_check_failed"
)

// CutoverError is a cut-over failure. StartFailed is fatal to the job;
// PortReclaimFailed is only ever reported as an advisory. HealthCheckFailed
// is fatal only when strict health checking is switched on.
type CutoverError struct {
	Stage     CutoverStage
	Container string
	Logs      []string
	Err       error
}

func (e *CutoverError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cutover %s for %s: %v", e.Stage, e.Container, e.Err)
	}
	return fmt.Sprintf("cutover %s for %s", e.Stage, e.Container)
}

func (e *CutoverError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Advisory Results
// =============================================================================

// Advisory records a best-effort step that failed without failing the job.
// Callers log and report it; it is never returned as an error.
type Advisory struct {
	Step string
	Err  error
	Logs []string
}

// String renders the advisory as a one-line warning.
func (a Advisory) String() string {
	if a.Err == nil {
		return a.Step
	}
	return fmt.Sprintf("%s: %v", a.Step, a.Err)
}

// =============================================================================
// Classification
// =============================================================================

// FailureKindOf maps an error to the failure kind recorded on a job.
func FailureKindOf(err error) FailureKind {
	var missing *MissingConfigError
	var build *BuildToolError
	var cutover *CutoverError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &missing), errors.Is(err, ErrMissingConfig):
		return FailureMissingConfig
	case errors.As(err, &build), errors.Is(err, ErrBuildFailed):
		return FailureBuildTool
	case errors.As(err, &cutover):
		return FailureCutover
	case errors.Is(err, ErrTimeoutExceeded), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return FailureCancelled
	case errors.Is(err, ErrLockContention):
		return FailureLockContention
	default:
		return FailureInternal
	}
}

// LogsOf returns the log lines carried by err, if any.
func LogsOf(err error) []string {
	var cutover *CutoverError
	if errors.As(err, &cutover) {
		return cutover.Logs
	}
	return nil
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
