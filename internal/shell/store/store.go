package store

import (
	"context"
	"time"

	"github.com/artpar/cutover/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for deployment jobs, artifacts and
// the single-flight lease.
type Store interface {
	// Job operations
	NextBuildNumber(ctx context.Context) (int64, error)
	CreateJob(ctx context.Context, job *domain.DeploymentJob) error
	GetJob(ctx context.Context, id int64) (*domain.DeploymentJob, error)
	UpdateJob(ctx context.Context, job *domain.DeploymentJob) error
	ListJobs(ctx context.Context, opts ListOptions) ([]domain.DeploymentJob, error)

	// Artifact operations
	RecordArtifact(ctx context.Context, artifact *domain.Artifact) error
	GetArtifact(ctx context.Context, service, tag string) (*domain.Artifact, error)
	LatestArtifact(ctx context.Context, service string) (*domain.Artifact, error)
	ListArtifacts(ctx context.Context, service string, opts ListOptions) ([]domain.Artifact, error)
	DeleteArtifact(ctx context.Context, service, tag string) error

	// Lease operations
	AcquireLease(ctx context.Context, lease Lease) error
	ReleaseLease(ctx context.Context, name, owner string) error
	GetLease(ctx context.Context, name string) (*Lease, error)

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// Lease is a named, expiring claim held by one owner.
type Lease struct {
	Name       string    `json:"name"`
	Owner      string    `json:"owner"`
	JobID      int64     `json:"job_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
