package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/artpar/cutover/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat is fixed width so stored timestamps compare as strings.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	db, err := sqlx.Open("sqlite3", dsn+sep+"_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}
	// SQLite allows a single writer; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Job Operations
// =============================================================================

// jobRow represents a job row in the database.
type jobRow struct {
	ID             int64   `db:"id"`
	Environment    string  `db:"environment"`
	Service        string  `db:"service"`
	Status         string  `db:"status"`
	ArtifactTag    string  `db:"artifact_tag"`
	FailureKind    string  `db:"failure_kind"`
	FailureStage   string  `db:"failure_stage"`
	FailureMessage string  `db:"failure_message"`
	FailureLogs    *string `db:"failure_logs"`
	Warnings       *string `db:"warnings"`
	StartedAt      string  `db:"started_at"`
	UpdatedAt      string  `db:"updated_at"`
	FinishedAt     *string `db:"finished_at"`
}

func (s *SQLiteStore) NextBuildNumber(ctx context.Context) (int64, error) {
	return nextBuildNumber(ctx, s.db)
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *domain.DeploymentJob) error {
	return createJob(ctx, s.db, job)
}

func (s *SQLiteStore) GetJob(ctx context.Context, id int64) (*domain.DeploymentJob, error) {
	return getJob(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *domain.DeploymentJob) error {
	return updateJob(ctx, s.db, job)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, opts ListOptions) ([]domain.DeploymentJob, error) {
	return listJobs(ctx, s.db, opts)
}

// =============================================================================
// Artifact Operations
// =============================================================================

// artifactRow represents an artifact row in the database.
type artifactRow struct {
	Service     string `db:"service"`
	Tag         string `db:"tag"`
	BuildNumber int64  `db:"build_number"`
	Image       string `db:"image"`
	ImageID     string `db:"image_id"`
	CreatedAt   string `db:"created_at"`
}

// RecordArtifact inserts the artifact and moves the latest alias to it in
// one transaction.
func (s *SQLiteStore) RecordArtifact(ctx context.Context, artifact *domain.Artifact) error {
	return s.WithTx(ctx, func(tx Store) error {
		return tx.RecordArtifact(ctx, artifact)
	})
}

func (s *SQLiteStore) GetArtifact(ctx context.Context, service, tag string) (*domain.Artifact, error) {
	return getArtifact(ctx, s.db, service, tag)
}

func (s *SQLiteStore) LatestArtifact(ctx context.Context, service string) (*domain.Artifact, error) {
	return latestArtifact(ctx, s.db, service)
}

func (s *SQLiteStore) ListArtifacts(ctx context.Context, service string, opts ListOptions) ([]domain.Artifact, error) {
	return listArtifacts(ctx, s.db, service, opts)
}

// DeleteArtifact forgets an artifact. If it carried the latest alias, the
// alias moves to the newest remaining artifact.
func (s *SQLiteStore) DeleteArtifact(ctx context.Context, service, tag string) error {
	return s.WithTx(ctx, func(tx Store) error {
		return tx.DeleteArtifact(ctx, service, tag)
	})
}

// =============================================================================
// Lease Operations
// =============================================================================

// leaseRow represents a lease row in the database.
type leaseRow struct {
	Name       string `db:"name"`
	Owner      string `db:"owner"`
	JobID      int64  `db:"job_id"`
	AcquiredAt string `db:"acquired_at"`
	ExpiresAt  string `db:"expires_at"`
}

// AcquireLease claims the named lease. An expired lease is taken over; an
// unexpired one fails with ErrLeaseHeld.
func (s *SQLiteStore) AcquireLease(ctx context.Context, lease Lease) error {
	return s.WithTx(ctx, func(tx Store) error {
		return tx.AcquireLease(ctx, lease)
	})
}

func (s *SQLiteStore) ReleaseLease(ctx context.Context, name, owner string) error {
	return releaseLease(ctx, s.db, name, owner)
}

func (s *SQLiteStore) GetLease(ctx context.Context, name string) (*Lease, error) {
	return getLease(ctx, s.db, name)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) NextBuildNumber(ctx context.Context) (int64, error) {
	return nextBuildNumber(ctx, s.tx)
}

func (s *txSQLiteStore) CreateJob(ctx context.Context, job *domain.DeploymentJob) error {
	return createJob(ctx, s.tx, job)
}

func (s *txSQLiteStore) GetJob(ctx context.Context, id int64) (*domain.DeploymentJob, error) {
	return getJob(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateJob(ctx context.Context, job *domain.DeploymentJob) error {
	return updateJob(ctx, s.tx, job)
}

func (s *txSQLiteStore) ListJobs(ctx context.Context, opts ListOptions) ([]domain.DeploymentJob, error) {
	return listJobs(ctx, s.tx, opts)
}

func (s *txSQLiteStore) RecordArtifact(ctx context.Context, artifact *domain.Artifact) error {
	return recordArtifact(ctx, s.tx, artifact)
}

func (s *txSQLiteStore) GetArtifact(ctx context.Context, service, tag string) (*domain.Artifact, error) {
	return getArtifact(ctx, s.tx, service, tag)
}

func (s *txSQLiteStore) LatestArtifact(ctx context.Context, service string) (*domain.Artifact, error) {
	return latestArtifact(ctx, s.tx, service)
}

func (s *txSQLiteStore) ListArtifacts(ctx context.Context, service string, opts ListOptions) ([]domain.Artifact, error) {
	return listArtifacts(ctx, s.tx, service, opts)
}

func (s *txSQLiteStore) DeleteArtifact(ctx context.Context, service, tag string) error {
	return deleteArtifact(ctx, s.tx, service, tag)
}

func (s *txSQLiteStore) AcquireLease(ctx context.Context, lease Lease) error {
	return acquireLease(ctx, s.tx, lease)
}

func (s *txSQLiteStore) ReleaseLease(ctx context.Context, name, owner string) error {
	return releaseLease(ctx, s.tx, name, owner)
}

func (s *txSQLiteStore) GetLease(ctx context.Context, name string) (*Lease, error) {
	return getLease(ctx, s.tx, name)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Shared Implementation Functions - Jobs
// =============================================================================

func nextBuildNumber(ctx context.Context, exec executor) (int64, error) {
	var next int64
	if err := exec.GetContext(ctx, &next, `SELECT COALESCE(MAX(id), 0) + 1 FROM jobs`); err != nil {
		return 0, NewStoreError("NextBuildNumber", "job", "", err.Error(), err)
	}
	return next, nil
}

func createJob(ctx context.Context, exec executor, job *domain.DeploymentJob) error {
	row, err := jobToRow(job)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (
			id, environment, service, status, artifact_tag,
			failure_kind, failure_stage, failure_message, failure_logs, warnings,
			started_at, updated_at, finished_at
		) VALUES (
			:id, :environment, :service, :status, :artifact_tag,
			:failure_kind, :failure_stage, :failure_message, :failure_logs, :warnings,
			:started_at, :updated_at, :finished_at
		)`

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		id := strconv.FormatInt(job.ID, 10)
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("CreateJob", "job", id, "job with this build number already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateJob", "job", id, err.Error(), err)
	}

	return nil
}

func getJob(ctx context.Context, exec executor, id int64) (*domain.DeploymentJob, error) {
	var row jobRow
	if err := exec.GetContext(ctx, &row, `SELECT * FROM jobs WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetJob", "job", strconv.FormatInt(id, 10), "job not found", ErrNotFound)
		}
		return nil, NewStoreError("GetJob", "job", strconv.FormatInt(id, 10), err.Error(), err)
	}

	return rowToJob(&row)
}

func updateJob(ctx context.Context, exec executor, job *domain.DeploymentJob) error {
	row, err := jobToRow(job)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs SET
			status = :status,
			artifact_tag = :artifact_tag,
			failure_kind = :failure_kind,
			failure_stage = :failure_stage,
			failure_message = :failure_message,
			failure_logs = :failure_logs,
			warnings = :warnings,
			updated_at = :updated_at,
			finished_at = :finished_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, row)
	id := strconv.FormatInt(job.ID, 10)
	if err != nil {
		return NewStoreError("UpdateJob", "job", id, err.Error(), err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return NewStoreError("UpdateJob", "job", id, "job not found", ErrNotFound)
	}

	return nil
}

func listJobs(ctx context.Context, exec executor, opts ListOptions) ([]domain.DeploymentJob, error) {
	opts = opts.Normalize()

	var rows []jobRow
	query := `SELECT * FROM jobs ORDER BY id DESC LIMIT ? OFFSET ?`
	if err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListJobs", "job", "", err.Error(), err)
	}

	jobs := make([]domain.DeploymentJob, 0, len(rows))
	for i := range rows {
		job, err := rowToJob(&rows[i])
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}

	return jobs, nil
}

// =============================================================================
// Shared Implementation Functions - Artifacts
// =============================================================================

func recordArtifact(ctx context.Context, exec executor, artifact *domain.Artifact) error {
	row := artifactRow{
		Service:     artifact.Service,
		Tag:         artifact.Tag,
		BuildNumber: artifact.BuildNumber,
		Image:       artifact.Image,
		ImageID:     artifact.ImageID,
		CreatedAt:   formatTime(artifact.CreatedAt),
	}

	query := `
		INSERT INTO artifacts (service, tag, build_number, image, image_id, created_at)
		VALUES (:service, :tag, :build_number, :image, :image_id, :created_at)`

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("RecordArtifact", "artifact", artifact.Image, "artifact already recorded", ErrDuplicateID)
		}
		return NewStoreError("RecordArtifact", "artifact", artifact.Image, err.Error(), err)
	}

	return setAlias(ctx, exec, artifact.Service, domain.LatestAlias, artifact.Tag, row.CreatedAt)
}

func setAlias(ctx context.Context, exec executor, service, alias, tag, updatedAt string) error {
	query := `
		INSERT INTO artifact_aliases (service, alias, tag, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(service, alias) DO UPDATE SET tag = excluded.tag, updated_at = excluded.updated_at`

	if _, err := exec.ExecContext(ctx, query, service, alias, tag, updatedAt); err != nil {
		return NewStoreError("SetAlias", "artifact", service+":"+alias, err.Error(), err)
	}
	return nil
}

func getArtifact(ctx context.Context, exec executor, service, tag string) (*domain.Artifact, error) {
	var row artifactRow
	query := `SELECT * FROM artifacts WHERE service = ? AND tag = ?`
	if err := exec.GetContext(ctx, &row, query, service, tag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetArtifact", "artifact", service+":"+tag, "artifact not found", ErrNotFound)
		}
		return nil, NewStoreError("GetArtifact", "artifact", service+":"+tag, err.Error(), err)
	}
	return rowToArtifact(&row), nil
}

func latestArtifact(ctx context.Context, exec executor, service string) (*domain.Artifact, error) {
	var row artifactRow
	query := `
		SELECT a.* FROM artifacts a
		JOIN artifact_aliases al ON al.service = a.service AND al.tag = a.tag
		WHERE al.service = ? AND al.alias = ?`
	if err := exec.GetContext(ctx, &row, query, service, domain.LatestAlias); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("LatestArtifact", "artifact", service, "no artifact recorded", ErrNotFound)
		}
		return nil, NewStoreError("LatestArtifact", "artifact", service, err.Error(), err)
	}
	return rowToArtifact(&row), nil
}

func listArtifacts(ctx context.Context, exec executor, service string, opts ListOptions) ([]domain.Artifact, error) {
	opts = opts.Normalize()

	var rows []artifactRow
	query := `SELECT * FROM artifacts WHERE service = ? ORDER BY build_number DESC LIMIT ? OFFSET ?`
	if err := exec.SelectContext(ctx, &rows, query, service, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListArtifacts", "artifact", service, err.Error(), err)
	}

	artifacts := make([]domain.Artifact, 0, len(rows))
	for i := range rows {
		artifacts = append(artifacts, *rowToArtifact(&rows[i]))
	}
	return artifacts, nil
}

func deleteArtifact(ctx context.Context, exec executor, service, tag string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM artifacts WHERE service = ? AND tag = ?`, service, tag)
	if err != nil {
		return NewStoreError("DeleteArtifact", "artifact", service+":"+tag, err.Error(), err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return NewStoreError("DeleteArtifact", "artifact", service+":"+tag, "artifact not found", ErrNotFound)
	}

	// Aliases cascade with the artifact; point latest at the newest survivor.
	var newest artifactRow
	query := `SELECT * FROM artifacts WHERE service = ? ORDER BY build_number DESC LIMIT 1`
	if err := exec.GetContext(ctx, &newest, query, service); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return NewStoreError("DeleteArtifact", "artifact", service+":"+tag, err.Error(), err)
	}

	var current int
	countQuery := `SELECT COUNT(*) FROM artifact_aliases WHERE service = ? AND alias = ?`
	if err := exec.GetContext(ctx, &current, countQuery, service, domain.LatestAlias); err != nil {
		return NewStoreError("DeleteArtifact", "artifact", service+":"+tag, err.Error(), err)
	}
	if current > 0 {
		return nil
	}
	return setAlias(ctx, exec, service, domain.LatestAlias, newest.Tag, newest.CreatedAt)
}

// =============================================================================
// Shared Implementation Functions - Leases
// =============================================================================

func acquireLease(ctx context.Context, exec executor, lease Lease) error {
	now := formatTime(lease.AcquiredAt)

	if _, err := exec.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND expires_at <= ?`, lease.Name, now); err != nil {
		return NewStoreError("AcquireLease", "lease", lease.Name, err.Error(), err)
	}

	row := leaseRow{
		Name:       lease.Name,
		Owner:      lease.Owner,
		JobID:      lease.JobID,
		AcquiredAt: now,
		ExpiresAt:  formatTime(lease.ExpiresAt),
	}
	query := `
		INSERT INTO leases (name, owner, job_id, acquired_at, expires_at)
		VALUES (:name, :owner, :job_id, :acquired_at, :expires_at)`

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return NewStoreError("AcquireLease", "lease", lease.Name, "lease is held", ErrLeaseHeld)
		}
		return NewStoreError("AcquireLease", "lease", lease.Name, err.Error(), err)
	}

	return nil
}

func releaseLease(ctx context.Context, exec executor, name, owner string) error {
	result, err := exec.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND owner = ?`, name, owner)
	if err != nil {
		return NewStoreError("ReleaseLease", "lease", name, err.Error(), err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return NewStoreError("ReleaseLease", "lease", name, "lease not held by owner", ErrNotFound)
	}
	return nil
}

func getLease(ctx context.Context, exec executor, name string) (*Lease, error) {
	var row leaseRow
	if err := exec.GetContext(ctx, &row, `SELECT * FROM leases WHERE name = ?`, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetLease", "lease", name, "lease not found", ErrNotFound)
		}
		return nil, NewStoreError("GetLease", "lease", name, err.Error(), err)
	}

	return &Lease{
		Name:       row.Name,
		Owner:      row.Owner,
		JobID:      row.JobID,
		AcquiredAt: parseTime(row.AcquiredAt),
		ExpiresAt:  parseTime(row.ExpiresAt),
	}, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func jobToRow(job *domain.DeploymentJob) (map[string]any, error) {
	id := strconv.FormatInt(job.ID, 10)

	warnings, err := marshalLines(job.Warnings)
	if err != nil {
		return nil, NewStoreError("jobToRow", "job", id, "failed to serialize warnings", ErrInvalidData)
	}

	var kind, stage, message string
	var logs *string
	if job.Failure != nil {
		kind = string(job.Failure.Kind)
		stage = string(job.Failure.Stage)
		message = job.Failure.Message
		if logs, err = marshalLines(job.Failure.Logs); err != nil {
			return nil, NewStoreError("jobToRow", "job", id, "failed to serialize failure logs", ErrInvalidData)
		}
	}

	var finishedAt *string
	if job.FinishedAt != nil {
		s := formatTime(*job.FinishedAt)
		finishedAt = &s
	}

	return map[string]any{
		"id":              job.ID,
		"environment":     job.Environment,
		"service":         job.Service,
		"status":          string(job.Status),
		"artifact_tag":    job.ArtifactTag,
		"failure_kind":    kind,
		"failure_stage":   stage,
		"failure_message": message,
		"failure_logs":    logs,
		"warnings":        warnings,
		"started_at":      formatTime(job.StartedAt),
		"updated_at":      formatTime(job.UpdatedAt),
		"finished_at":     finishedAt,
	}, nil
}

func rowToJob(row *jobRow) (*domain.DeploymentJob, error) {
	id := strconv.FormatInt(row.ID, 10)

	warnings, err := unmarshalLines(row.Warnings)
	if err != nil {
		return nil, NewStoreError("rowToJob", "job", id, "failed to parse warnings", ErrInvalidData)
	}

	job := &domain.DeploymentJob{
		ID:          row.ID,
		Environment: row.Environment,
		Service:     row.Service,
		Status:      domain.JobStatus(row.Status),
		ArtifactTag: row.ArtifactTag,
		Warnings:    warnings,
		StartedAt:   parseTime(row.StartedAt),
		UpdatedAt:   parseTime(row.UpdatedAt),
	}

	if row.FinishedAt != nil && *row.FinishedAt != "" {
		t := parseTime(*row.FinishedAt)
		job.FinishedAt = &t
	}

	if row.FailureKind != "" {
		logs, err := unmarshalLines(row.FailureLogs)
		if err != nil {
			return nil, NewStoreError("rowToJob", "job", id, "failed to parse failure logs", ErrInvalidData)
		}
		job.Failure = &domain.Failure{
			Kind:    domain.FailureKind(row.FailureKind),
			Stage:   domain.JobStatus(row.FailureStage),
			Message: row.FailureMessage,
			Logs:    logs,
		}
	}

	return job, nil
}

func rowToArtifact(row *artifactRow) *domain.Artifact {
	return &domain.Artifact{
		Service:     row.Service,
		Tag:         row.Tag,
		BuildNumber: row.BuildNumber,
		Image:       row.Image,
		ImageID:     row.ImageID,
		CreatedAt:   parseTime(row.CreatedAt),
	}
}

func marshalLines(lines []string) (*string, error) {
	if len(lines) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func unmarshalLines(data *string) ([]string, error) {
	if data == nil || *data == "" || *data == "null" {
		return nil, nil
	}
	var lines []string
	if err := json.Unmarshal([]byte(*data), &lines); err != nil {
		return nil, err
	}
	return lines, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
