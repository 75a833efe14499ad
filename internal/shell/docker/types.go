// Package docker provides a Docker client for container and image lifecycle
// management, and the Supervisor the cut-over runs against.
package docker

import (
	"context"
	"io"
	"time"
)

// =============================================================================
// Container Types
// =============================================================================

// ContainerSpec defines the specification for creating a container.
type ContainerSpec struct {
	Name          string
	Image         string
	Command       []string
	Env           map[string]string
	Labels        map[string]string
	Ports         []PortBinding
	RestartPolicy RestartPolicy
	HealthCheck   *HealthCheck
}

// PortBinding defines a port mapping.
type PortBinding struct {
	ContainerPort int
	HostPort      int    // 0 for auto-assign
	Protocol      string // "tcp" or "udp"
	HostIP        string // "" for 0.0.0.0
}

// RestartPolicy defines the container restart policy.
type RestartPolicy struct {
	Name              string // "no", "always", "on-failure", "unless-stopped"
	MaximumRetryCount int
}

// HealthCheck defines container health check configuration.
type HealthCheck struct {
	Test        []string
	Interval    time.Duration
	Timeout     time.Duration
	Retries     int
	StartPeriod time.Duration
}

// =============================================================================
// Container Info
// =============================================================================

// ContainerStatus represents the container status.
type ContainerStatus string

const (
	ContainerStatusCreated    ContainerStatus = "created"
	ContainerStatusRunning    ContainerStatus = "running"
	ContainerStatusPaused     ContainerStatus = "paused"
	ContainerStatusRestarting ContainerStatus = "restarting"
	ContainerStatusRemoving   ContainerStatus = "removing"
	ContainerStatusExited     ContainerStatus = "exited"
	ContainerStatusDead       ContainerStatus = "dead"
)

// ContainerInfo contains information about a container.
type ContainerInfo struct {
	ID        string
	Name      string
	Image     string
	Status    ContainerStatus
	State     string // "running", "exited", "created", etc.
	Health    string // "healthy", "unhealthy", "starting", ""
	CreatedAt time.Time
	StartedAt *time.Time
	Ports     []PortBinding
	Labels    map[string]string
	ExitCode  int
}

// =============================================================================
// Image Types
// =============================================================================

// ImageBuildSpec describes one image build from a local context directory.
type ImageBuildSpec struct {
	ContextDir string
	Dockerfile string // relative to ContextDir
	Tags       []string
	BuildArgs  map[string]string
	Labels     map[string]string
	Excludes   []string // extra patterns left out of the build context
}

// ImageInfo contains information about a local image.
type ImageInfo struct {
	ID        string
	RepoTags  []string
	CreatedAt time.Time
	Labels    map[string]string
	Size      int64
}

// PruneResult is what an image prune reclaimed.
type PruneResult struct {
	Deleted        []string
	SpaceReclaimed uint64
}

// =============================================================================
// Options
// =============================================================================

// RemoveOptions defines options for removing containers.
type RemoveOptions struct {
	Force         bool
	RemoveVolumes bool
}

// ListOptions defines options for listing containers.
type ListOptions struct {
	All     bool              // Include stopped containers
	Filters map[string]string // e.g., {"label": "io.cutover.service=web"}
}

// LogOptions defines options for container logs.
type LogOptions struct {
	Tail       string // "all" or number
	Since      time.Time
	Timestamps bool
}

// ImageListOptions defines options for listing images.
type ImageListOptions struct {
	Reference string            // repository, optionally with a tag pattern
	Filters   map[string]string // e.g., {"label": "io.cutover.service=web"}
}

// =============================================================================
// Client Interface
// =============================================================================

// Client defines the Docker client interface.
type Client interface {
	// Container operations
	CreateContainer(ctx context.Context, spec ContainerSpec) (containerID string, err error)
	StartContainer(ctx context.Context, containerID string) error
	StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error
	RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error
	InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error)
	ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error)
	ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error)

	// Image operations
	BuildImage(ctx context.Context, spec ImageBuildSpec, output io.Writer) (imageID string, err error)
	ListImages(ctx context.Context, opts ImageListOptions) ([]ImageInfo, error)
	RemoveImage(ctx context.Context, ref string, force bool) error
	PruneImages(ctx context.Context, filters map[string]string) (PruneResult, error)
	ImageExists(ctx context.Context, ref string) (bool, error)

	// Health operations
	Ping(ctx context.Context) error
	Close() error
}
