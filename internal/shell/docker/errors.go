package docker

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Instance errors
	ErrContainerNotFound       = errors.New("container not found")
	ErrContainerAlreadyExists  = errors.New("container already exists")
	ErrContainerNotRunning     = errors.New("container is not running")
	ErrContainerAlreadyRunning = errors.New("container is already running")

	// Artifact errors
	ErrImageNotFound    = errors.New("image not found")
	ErrImageInUse       = errors.New("image is in use")
	ErrImageBuildFailed = errors.New("image build failed")

	// Host errors
	ErrPortAlreadyAllocated = errors.New("port is already allocated")
	ErrConnectionFailed     = errors.New("docker connection failed")
)

// DockerError records which daemon call failed and on what.
type DockerError struct {
	Op      string // client method, e.g. "StartContainer"
	Entity  string // "container" or "image"
	ID      string // container name/ID or image reference
	Message string
	Err     error
}

func (e *DockerError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Entity != "" {
		b.WriteString(" " + e.Entity)
	}
	if e.ID != "" {
		b.WriteString(" " + e.ID)
	}
	b.WriteString(": " + e.Message)
	return b.String()
}

func (e *DockerError) Unwrap() error {
	return e.Err
}

// NewDockerError creates a new DockerError.
func NewDockerError(op, entity, id, message string, err error) *DockerError {
	return &DockerError{Op: op, Entity: entity, ID: id, Message: message, Err: err}
}

// IsNotFound reports whether err means the container or image is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContainerNotFound) || errors.Is(err, ErrImageNotFound)
}

// BuildError is an error reported inside the image build stream.
type BuildError struct {
	Code    int // errorDetail.code, 0 when the daemon sent none
	Message string
}

func (e *BuildError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("image build failed (code %d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("image build failed: %s", e.Message)
}

func (e *BuildError) Unwrap() error {
	return ErrImageBuildFailed
}
