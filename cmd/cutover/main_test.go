package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// seedDatabase points the CLI at a fresh database and returns it open.
func seedDatabase(t *testing.T) store.Store {
	t.Helper()
	clearEnv(t)
	dsn := filepath.Join(t.TempDir(), "db", "cutover.db")
	t.Setenv("CUTOVER_DATABASE_DSN", dsn)
	require.NoError(t, os.MkdirAll(filepath.Dir(dsn), 0o755))

	s, err := store.NewSQLiteStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// =============================================================================
// Command Tests
// =============================================================================

func TestRun_Version(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")

	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "cutover dev (built unknown)\n", stdout)
}

func TestRun_InvalidConfigFile(t *testing.T) {
	clearEnv(t)
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("invalid: yaml: content: [[["), 0644))

	code, _, stderr := runCLI(t, "--config", bad, "history")

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "failed to parse config file")
}

func TestRun_RequiresEnvironment(t *testing.T) {
	clearEnv(t)

	code, _, stderr := runCLI(t, "run")

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "no environment")
}

func TestRun_InvalidConfigStopsBeforeDocker(t *testing.T) {
	clearEnv(t)
	t.Setenv("CUTOVER_RETENTION_KEEP", "0")

	code, _, stderr := runCLI(t, "run", "--env", "prod")

	assert.Equal(t, ExitConfigError, code)
	assert.Contains(t, stderr, "retention.keep")
}

func TestRun_UnknownCommand(t *testing.T) {
	clearEnv(t)

	code, _, _ := runCLI(t, "deploy-everything")
	assert.Equal(t, ExitPipelineFailed, code)
}

func TestHistory_ListsJobsNewestFirst(t *testing.T) {
	s := seedDatabase(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	ok, err := domain.NewDeploymentJob(1, "staging", "web", now)
	require.NoError(t, err)
	require.NoError(t, s.CreateJob(ctx, ok))
	for _, status := range []domain.JobStatus{domain.JobValidating, domain.JobBuilding, domain.JobDeploying, domain.JobCleaningUp, domain.JobSucceeded} {
		require.NoError(t, ok.Transition(status, now.Add(time.Minute)))
	}
	ok.ArtifactTag = "1"
	require.NoError(t, s.UpdateJob(ctx, ok))

	failed, err := domain.NewDeploymentJob(2, "staging", "web", now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, s.CreateJob(ctx, failed))
	require.NoError(t, failed.Transition(domain.JobValidating, now.Add(time.Hour)))
	require.NoError(t, failed.Fail(domain.FailureMissingConfig, "missing required config key API_URL", nil, now.Add(time.Hour)))
	require.NoError(t, s.UpdateJob(ctx, failed))

	code, stdout, stderr := runCLI(t, "history")
	require.Equal(t, ExitSuccess, code, stderr)

	lines := bytes.Split(bytes.TrimSpace([]byte(stdout)), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "BUILD")
	assert.Contains(t, string(lines[1]), "missing_config: missing required config key API_URL")
	assert.Contains(t, string(lines[2]), "succeeded")
	assert.Contains(t, string(lines[2]), "1m0s")
}

func TestArtifacts_MarksLatest(t *testing.T) {
	s := seedDatabase(t)
	ctx := context.Background()

	for _, n := range []int64{1, 2, 3} {
		tag := domain.BuildTag(n)
		require.NoError(t, s.RecordArtifact(ctx, &domain.Artifact{
			Service: "web", Tag: tag, BuildNumber: n, Image: "web:" + tag, CreatedAt: time.Now(),
		}))
	}

	code, stdout, stderr := runCLI(t, "artifacts")
	require.Equal(t, ExitSuccess, code, stderr)

	lines := bytes.Split(bytes.TrimSpace([]byte(stdout)), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Contains(t, string(lines[1]), "web:3")
	assert.True(t, bytes.HasSuffix(bytes.TrimSpace(lines[1]), []byte("*")))
	assert.False(t, bytes.HasSuffix(bytes.TrimSpace(lines[2]), []byte("*")))
}

// =============================================================================
// Exit Code Tests
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil", nil, ExitSuccess},
		{"explicit", &ExitError{Op: "x", Err: errors.New("boom"), ExitCode: ExitDockerError}, ExitDockerError},
		{"wrapped explicit", fmt.Errorf("outer: %w", &ExitError{Op: "x", Err: errors.New("boom"), ExitCode: ExitStoreError}), ExitStoreError},
		{"lock contention", fmt.Errorf("%w: lease held", domain.ErrLockContention), ExitLockContention},
		{"stale build number", &domain.StaleBuildNumberError{Requested: 5, Next: 11}, ExitConfigError},
		{"anything else", errors.New("boom"), ExitPipelineFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, exitCode(tt.err))
		})
	}
}

func TestDatabasePath(t *testing.T) {
	assert.Equal(t, "", databasePath(":memory:"))
	assert.Equal(t, "", databasePath("file:test.db?cache=shared"))
	assert.Equal(t, "data/cutover.db", databasePath("data/cutover.db?_journal=WAL"))
}
