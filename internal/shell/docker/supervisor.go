package docker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/pkg/stdcopy"

	"github.com/artpar/cutover/internal/core/deployment"
	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/core/monitoring"
)

// =============================================================================
// Supervisor
// =============================================================================

// StartSpec describes the instance the cut-over starts into the slot.
type StartSpec struct {
	Name          string
	Image         string
	HostIP        string
	Port          int
	ContainerPort int
	Env           map[string]string
	Labels        map[string]string
	RestartPolicy string
	HealthCheck   *HealthCheck
}

// Supervisor exposes the process-supervisor commands the orchestrator needs,
// keyed by container name. Instance not-found is reported as
// domain.ErrInstanceNotFound.
type Supervisor struct {
	client      Client
	stopTimeout time.Duration
	logger      *slog.Logger
}

// NewSupervisor creates a Supervisor over a Docker client.
func NewSupervisor(client Client, stopTimeout time.Duration, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		client:      client,
		stopTimeout: stopTimeout,
		logger:      logger.With("component", "supervisor"),
	}
}

// Ping checks the daemon is reachable.
func (s *Supervisor) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

// Stop stops the named instance. Stopping an instance that is not running
// is not an error.
func (s *Supervisor) Stop(ctx context.Context, name string) error {
	timeout := s.stopTimeout
	err := s.client.StopContainer(ctx, name, &timeout)
	switch {
	case err == nil, errors.Is(err, ErrContainerNotRunning):
		return nil
	case errors.Is(err, ErrContainerNotFound):
		return fmt.Errorf("stop %s: %w", name, domain.ErrInstanceNotFound)
	default:
		return err
	}
}

// Remove force-removes the named instance.
func (s *Supervisor) Remove(ctx context.Context, name string) error {
	err := s.client.RemoveContainer(ctx, name, RemoveOptions{Force: true})
	if errors.Is(err, ErrContainerNotFound) {
		return fmt.Errorf("remove %s: %w", name, domain.ErrInstanceNotFound)
	}
	return err
}

// Start creates and starts an instance, returning its container ID. A
// container that was created but failed to start is removed again.
func (s *Supervisor) Start(ctx context.Context, spec StartSpec) (string, error) {
	id, err := s.client.CreateContainer(ctx, ContainerSpec{
		Name:   spec.Name,
		Image:  spec.Image,
		Env:    spec.Env,
		Labels: spec.Labels,
		Ports: []PortBinding{{
			ContainerPort: spec.ContainerPort,
			HostPort:      spec.Port,
			Protocol:      "tcp",
			HostIP:        spec.HostIP,
		}},
		RestartPolicy: RestartPolicy{Name: spec.RestartPolicy},
		HealthCheck:   spec.HealthCheck,
	})
	if err != nil {
		return "", err
	}

	if err := s.client.StartContainer(ctx, id); err != nil {
		if rmErr := s.client.RemoveContainer(ctx, id, RemoveOptions{Force: true}); rmErr != nil {
			s.logger.Warn("failed to remove container after start failure",
				"container", spec.Name, "error", rmErr)
		}
		return "", err
	}

	return id, nil
}

// List returns the names of all present instances.
func (s *Supervisor) List(ctx context.Context) ([]string, error) {
	containers, err := s.client.ListContainers(ctx, ListOptions{All: true})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(containers))
	for _, c := range containers {
		if monitoring.IsPresentState(c.State) {
			names = append(names, c.Name)
		}
	}
	return names, nil
}

// Logs returns the last tail lines of the instance output, stdout and stderr
// interleaved.
func (s *Supervisor) Logs(ctx context.Context, name string, tail int) ([]string, error) {
	opts := LogOptions{Tail: "all"}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}

	reader, err := s.client.ContainerLogs(ctx, name, opts)
	if err != nil {
		if errors.Is(err, ErrContainerNotFound) {
			return nil, fmt.Errorf("logs %s: %w", name, domain.ErrInstanceNotFound)
		}
		return nil, err
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, NewDockerError("Logs", "container", name, err.Error(), err)
	}

	var out bytes.Buffer
	if _, err := stdcopy.StdCopy(&out, &out, bytes.NewReader(raw)); err != nil {
		// TTY containers are not multiplexed
		out.Reset()
		out.Write(raw)
	}

	return splitLines(out.String(), tail), nil
}

// Images returns every build-numbered and aliased tag of a repository.
func (s *Supervisor) Images(ctx context.Context, repository string) ([]domain.ImageRecord, error) {
	images, err := s.client.ListImages(ctx, ImageListOptions{Reference: repository})
	if err != nil {
		return nil, err
	}

	var records []domain.ImageRecord
	for _, img := range images {
		for _, ref := range img.RepoTags {
			repo, tag := deployment.SplitImageRef(ref)
			if repo != repository || tag == "" {
				continue
			}
			records = append(records, domain.ImageRecord{
				ID:        img.ID,
				Tag:       tag,
				CreatedAt: img.CreatedAt,
			})
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	return records, nil
}

// ImageExists reports whether an image reference exists locally.
func (s *Supervisor) ImageExists(ctx context.Context, ref string) (bool, error) {
	return s.client.ImageExists(ctx, ref)
}

// RemoveImage removes one image reference.
func (s *Supervisor) RemoveImage(ctx context.Context, ref string) error {
	return s.client.RemoveImage(ctx, ref, false)
}

// PruneDangling removes untagged images left behind by builds of service.
func (s *Supervisor) PruneDangling(ctx context.Context, service string) (uint64, error) {
	result, err := s.client.PruneImages(ctx, map[string]string{
		"dangling": "true",
		"label":    domain.LabelService + "=" + service,
	})
	if err != nil {
		return 0, err
	}
	if len(result.Deleted) > 0 {
		s.logger.Info("pruned dangling images", "service", service,
			"count", len(result.Deleted), "space_reclaimed", result.SpaceReclaimed)
	}
	return result.SpaceReclaimed, nil
}

// ContainersPublishing returns the names of containers, running or not,
// that publish the given host port.
func (s *Supervisor) ContainersPublishing(ctx context.Context, port int) ([]string, error) {
	containers, err := s.client.ListContainers(ctx, ListOptions{
		All:     true,
		Filters: map[string]string{"publish": strconv.Itoa(port)},
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(containers))
	for _, c := range containers {
		names = append(names, c.Name)
	}
	return names, nil
}

// BuildImage builds an image through the underlying client.
func (s *Supervisor) BuildImage(ctx context.Context, spec ImageBuildSpec, output io.Writer) (string, error) {
	return s.client.BuildImage(ctx, spec, output)
}

func splitLines(text string, tail int) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}
	return lines
}
