package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func createPendingJob(t *testing.T) *DeploymentJob {
	t.Helper()
	job, err := NewDeploymentJob(42, "production", "web", testNow)
	require.NoError(t, err)
	return job
}

// =============================================================================
// Job Creation Tests
// =============================================================================

func TestNewDeploymentJob_ValidInput(t *testing.T) {
	job, err := NewDeploymentJob(42, "production", "web", testNow)
	require.NoError(t, err)

	assert.Equal(t, int64(42), job.ID)
	assert.Equal(t, "production", job.Environment)
	assert.Equal(t, "web", job.Service)
	assert.Equal(t, JobPending, job.Status)
	assert.Equal(t, testNow, job.StartedAt)
	assert.Nil(t, job.FinishedAt)
	assert.Nil(t, job.Failure)
}

func TestNewDeploymentJob_InvalidBuildNumber(t *testing.T) {
	_, err := NewDeploymentJob(0, "production", "web", testNow)
	assert.ErrorIs(t, err, ErrInvalidBuildNumber)

	_, err = NewDeploymentJob(-1, "production", "web", testNow)
	assert.ErrorIs(t, err, ErrInvalidBuildNumber)
}

func TestNewDeploymentJob_MissingEnvironment(t *testing.T) {
	_, err := NewDeploymentJob(1, "", "web", testNow)
	assert.ErrorIs(t, err, ErrEnvironmentMissing)
}

// =============================================================================
// Status Transition Tests
// =============================================================================

func TestDeploymentJob_Transition_HappyPath(t *testing.T) {
	job := createPendingJob(t)

	for i, status := range []JobStatus{JobValidating, JobBuilding, JobDeploying, JobCleaningUp, JobSucceeded} {
		now := testNow.Add(time.Duration(i+1) * time.Minute)
		require.NoError(t, job.Transition(status, now), "transition to %s", status)
		assert.Equal(t, status, job.Status)
	}

	require.NotNil(t, job.FinishedAt)
	assert.Equal(t, 5*time.Minute, job.Duration())
}

func TestDeploymentJob_Transition_SkipStage(t *testing.T) {
	job := createPendingJob(t)
	require.NoError(t, job.Transition(JobValidating, testNow))

	err := job.Transition(JobDeploying, testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, JobValidating, job.Status)
}

func TestDeploymentJob_Transition_NoReentry(t *testing.T) {
	job := createPendingJob(t)
	require.NoError(t, job.Transition(JobValidating, testNow))
	require.NoError(t, job.Transition(JobBuilding, testNow))

	err := job.Transition(JobValidating, testNow)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeploymentJob_Transition_TerminalIsImmutable(t *testing.T) {
	job := createPendingJob(t)
	require.NoError(t, job.Fail(FailureInternal, "boom", nil, testNow))

	err := job.Transition(JobValidating, testNow)
	assert.ErrorIs(t, err, ErrJobTerminal)

	err = job.Fail(FailureTimeout, "again", nil, testNow)
	assert.ErrorIs(t, err, ErrJobTerminal)
	assert.Equal(t, FailureInternal, job.Failure.Kind)
}

func TestDeploymentJob_Fail_RecordsStage(t *testing.T) {
	job := createPendingJob(t)
	require.NoError(t, job.Transition(JobValidating, testNow))
	require.NoError(t, job.Transition(JobBuilding, testNow))

	err := job.Fail(FailureBuildTool, "exit 2", []string{"line"}, testNow.Add(time.Second))
	require.NoError(t, err)

	assert.Equal(t, JobFailed, job.Status)
	require.NotNil(t, job.Failure)
	assert.Equal(t, JobBuilding, job.Failure.Stage)
	assert.Equal(t, FailureBuildTool, job.Failure.Kind)
	assert.Equal(t, "exit 2", job.Failure.Message)
	assert.Equal(t, []string{"line"}, job.Failure.Logs)
	assert.NotNil(t, job.FinishedAt)
}

func TestDeploymentJob_Warn(t *testing.T) {
	job := createPendingJob(t)
	job.Warn("probe returned 503")
	assert.Equal(t, []string{"probe returned 503"}, job.Warnings)

	require.NoError(t, job.Fail(FailureInternal, "x", nil, testNow))
	job.Warn("late")
	assert.Len(t, job.Warnings, 1)
}

// =============================================================================
// State Machine Tests
// =============================================================================

func TestValidateTransition(t *testing.T) {
	tests := []struct {
		from  JobStatus
		to    JobStatus
		valid bool
	}{
		{JobPending, JobValidating, true},
		{JobPending, JobFailed, true},
		{JobValidating, JobBuilding, true},
		{JobBuilding, JobDeploying, true},
		{JobDeploying, JobCleaningUp, true},
		{JobCleaningUp, JobSucceeded, true},
		{JobCleaningUp, JobFailed, true},
		{JobPending, JobSucceeded, false},
		{JobBuilding, JobCleaningUp, false},
		{JobSucceeded, JobFailed, false},
		{JobFailed, JobPending, false},
		{JobStatus("bogus"), JobValidating, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := ValidateTransition(tt.from, tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			}
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.True(t, JobSucceeded.IsTerminal())
	assert.True(t, JobFailed.IsTerminal())
	for _, s := range StageOrder() {
		assert.False(t, s.IsTerminal(), s)
	}
	assert.False(t, JobPending.IsTerminal())
}
