package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/go-connections/nat"
)

// =============================================================================
// Docker Client Implementation
// =============================================================================

// DockerClient implements the Client interface using the Docker SDK.
type DockerClient struct {
	cli *client.Client
}

// NewDockerClient creates a new Docker client.
// If host is empty, it uses the default Docker host from environment.
// On macOS with Docker Desktop, it automatically detects the correct socket.
func NewDockerClient(host string) (*DockerClient, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, NewDockerError("NewDockerClient", "", "", "failed to create client", ErrConnectionFailed)
	}
	if host != "" {
		return &DockerClient{cli: cli}, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, pingErr := cli.Ping(ctx); pingErr != nil {
		// Default socket failed, try the Docker Desktop socket
		homeDir, _ := os.UserHomeDir()
		desktopSocket := "unix://" + homeDir + "/.docker/run/docker.sock"

		cli2, err2 := client.NewClientWithOpts(
			client.WithHost(desktopSocket),
			client.WithAPIVersionNegotiation(),
		)
		if err2 == nil {
			if _, pingErr2 := cli2.Ping(ctx); pingErr2 == nil {
				cli.Close()
				return &DockerClient{cli: cli2}, nil
			}
			cli2.Close()
		}
	}

	return &DockerClient{cli: cli}, nil
}

// Ping checks if Docker daemon is reachable.
func (d *DockerClient) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return NewDockerError("Ping", "", "", fmt.Sprintf("failed to ping docker: %v", err), ErrConnectionFailed)
	}
	return nil
}

// Close closes the Docker client connection.
func (d *DockerClient) Close() error {
	return d.cli.Close()
}

// =============================================================================
// Container Operations
// =============================================================================

// CreateContainer creates a new container from the given spec.
func (d *DockerClient) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	config := &container.Config{
		Image:  spec.Image,
		Cmd:    spec.Command,
		Labels: spec.Labels,
	}

	for k, v := range spec.Env {
		config.Env = append(config.Env, fmt.Sprintf("%s=%s", k, v))
	}

	hostConfig := &container.HostConfig{}

	if len(spec.Ports) > 0 {
		portBindings := nat.PortMap{}
		exposedPorts := nat.PortSet{}

		for _, p := range spec.Ports {
			proto := p.Protocol
			if proto == "" {
				proto = "tcp"
			}
			containerPort := nat.Port(fmt.Sprintf("%d/%s", p.ContainerPort, proto))
			exposedPorts[containerPort] = struct{}{}

			hostPort := ""
			if p.HostPort != 0 {
				hostPort = fmt.Sprintf("%d", p.HostPort)
			}
			portBindings[containerPort] = append(portBindings[containerPort], nat.PortBinding{
				HostIP:   p.HostIP,
				HostPort: hostPort,
			})
		}

		config.ExposedPorts = exposedPorts
		hostConfig.PortBindings = portBindings
	}

	if spec.RestartPolicy.Name != "" {
		hostConfig.RestartPolicy = container.RestartPolicy{
			Name:              container.RestartPolicyMode(spec.RestartPolicy.Name),
			MaximumRetryCount: spec.RestartPolicy.MaximumRetryCount,
		}
	}

	if spec.HealthCheck != nil {
		config.Healthcheck = &container.HealthConfig{
			Test:        spec.HealthCheck.Test,
			Interval:    spec.HealthCheck.Interval,
			Timeout:     spec.HealthCheck.Timeout,
			Retries:     spec.HealthCheck.Retries,
			StartPeriod: spec.HealthCheck.StartPeriod,
		}
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	if err != nil {
		if strings.Contains(err.Error(), "Conflict") {
			return "", NewDockerError("CreateContainer", "container", spec.Name, "container already exists", ErrContainerAlreadyExists)
		}
		if client.IsErrNotFound(err) {
			return "", NewDockerError("CreateContainer", "image", spec.Image, "image not found", ErrImageNotFound)
		}
		return "", NewDockerError("CreateContainer", "container", spec.Name, err.Error(), err)
	}

	return resp.ID, nil
}

// StartContainer starts a created or stopped container.
func (d *DockerClient) StartContainer(ctx context.Context, containerID string) error {
	err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("StartContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		if strings.Contains(err.Error(), "port is already allocated") || strings.Contains(err.Error(), "address already in use") {
			return NewDockerError("StartContainer", "container", containerID, err.Error(), ErrPortAlreadyAllocated)
		}
		if strings.Contains(err.Error(), "is already running") {
			return NewDockerError("StartContainer", "container", containerID, "container is already running", ErrContainerAlreadyRunning)
		}
		return NewDockerError("StartContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// StopContainer stops a running container.
func (d *DockerClient) StopContainer(ctx context.Context, containerID string, timeout *time.Duration) error {
	stopOptions := container.StopOptions{}
	if timeout != nil {
		seconds := int(timeout.Seconds())
		stopOptions.Timeout = &seconds
	}

	err := d.cli.ContainerStop(ctx, containerID, stopOptions)
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("StopContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		if strings.Contains(err.Error(), "is not running") {
			return NewDockerError("StopContainer", "container", containerID, "container is not running", ErrContainerNotRunning)
		}
		return NewDockerError("StopContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// RemoveContainer removes a container.
func (d *DockerClient) RemoveContainer(ctx context.Context, containerID string, opts RemoveOptions) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{
		Force:         opts.Force,
		RemoveVolumes: opts.RemoveVolumes,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("RemoveContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return NewDockerError("RemoveContainer", "container", containerID, err.Error(), err)
	}
	return nil
}

// InspectContainer returns detailed information about a container.
func (d *DockerClient) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	resp, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewDockerError("InspectContainer", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return nil, NewDockerError("InspectContainer", "container", containerID, err.Error(), err)
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, resp.Created)

	info := &ContainerInfo{
		ID:        resp.ID,
		Name:      strings.TrimPrefix(resp.Name, "/"),
		CreatedAt: createdAt,
	}
	if resp.Config != nil {
		info.Image = resp.Config.Image
		info.Labels = resp.Config.Labels
	}
	if resp.State != nil {
		info.Status = ContainerStatus(resp.State.Status)
		info.State = string(resp.State.Status)
		info.ExitCode = resp.State.ExitCode
		if resp.State.Health != nil {
			info.Health = string(resp.State.Health.Status)
		}
		if resp.State.StartedAt != "" && resp.State.StartedAt != "0001-01-01T00:00:00Z" {
			t, _ := time.Parse(time.RFC3339Nano, resp.State.StartedAt)
			info.StartedAt = &t
		}
	}
	if resp.NetworkSettings != nil {
		for containerPort, bindings := range resp.NetworkSettings.Ports {
			for _, binding := range bindings {
				var hostPort int
				fmt.Sscanf(binding.HostPort, "%d", &hostPort)
				info.Ports = append(info.Ports, PortBinding{
					ContainerPort: containerPort.Int(),
					HostPort:      hostPort,
					Protocol:      containerPort.Proto(),
					HostIP:        binding.HostIP,
				})
			}
		}
	}

	return info, nil
}

// ListContainers returns a list of containers matching the given options.
func (d *DockerClient) ListContainers(ctx context.Context, opts ListOptions) ([]ContainerInfo, error) {
	listOpts := container.ListOptions{All: opts.All}
	if len(opts.Filters) > 0 {
		listOpts.Filters = toFilterArgs(opts.Filters)
	}

	containers, err := d.cli.ContainerList(ctx, listOpts)
	if err != nil {
		return nil, NewDockerError("ListContainers", "container", "", err.Error(), err)
	}

	result := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}

		var ports []PortBinding
		for _, p := range c.Ports {
			ports = append(ports, PortBinding{
				ContainerPort: int(p.PrivatePort),
				HostPort:      int(p.PublicPort),
				Protocol:      p.Type,
				HostIP:        p.IP,
			})
		}

		result = append(result, ContainerInfo{
			ID:        c.ID,
			Name:      name,
			Image:     c.Image,
			Status:    ContainerStatus(c.State),
			State:     string(c.State),
			CreatedAt: time.Unix(c.Created, 0),
			Ports:     ports,
			Labels:    c.Labels,
		})
	}

	return result, nil
}

// ContainerLogs returns the multiplexed log stream of a container.
func (d *DockerClient) ContainerLogs(ctx context.Context, containerID string, opts LogOptions) (io.ReadCloser, error) {
	logOpts := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       opts.Tail,
		Timestamps: opts.Timestamps,
	}
	if !opts.Since.IsZero() {
		logOpts.Since = opts.Since.Format(time.RFC3339)
	}

	reader, err := d.cli.ContainerLogs(ctx, containerID, logOpts)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, NewDockerError("ContainerLogs", "container", containerID, "container not found", ErrContainerNotFound)
		}
		return nil, NewDockerError("ContainerLogs", "container", containerID, err.Error(), err)
	}

	return reader, nil
}

// =============================================================================
// Image Operations
// =============================================================================

// BuildImage builds an image from a local context directory. Build output is
// written line by line to output when it is non-nil. The returned ID is empty
// if the daemon did not report one.
func (d *DockerClient) BuildImage(ctx context.Context, spec ImageBuildSpec, output io.Writer) (string, error) {
	tag := ""
	if len(spec.Tags) > 0 {
		tag = spec.Tags[0]
	}

	buildCtx, err := archive.TarWithOptions(spec.ContextDir, &archive.TarOptions{
		ExcludePatterns: spec.Excludes,
	})
	if err != nil {
		return "", NewDockerError("BuildImage", "image", tag, fmt.Sprintf("create build context: %v", err), err)
	}
	defer buildCtx.Close()

	buildArgs := make(map[string]*string, len(spec.BuildArgs))
	for k, v := range spec.BuildArgs {
		v := v
		buildArgs[k] = &v
	}

	resp, err := d.cli.ImageBuild(ctx, buildCtx, build.ImageBuildOptions{
		Tags:        spec.Tags,
		Dockerfile:  spec.Dockerfile,
		BuildArgs:   buildArgs,
		Labels:      spec.Labels,
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return "", NewDockerError("BuildImage", "image", tag, err.Error(), ErrImageBuildFailed)
	}
	defer resp.Body.Close()

	imageID := ""
	decoder := json.NewDecoder(resp.Body)
	for {
		var msg buildMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return "", NewDockerError("BuildImage", "image", tag, fmt.Sprintf("decode build output: %v", err), err)
		}

		if errMsg := msg.errorMessage(); errMsg != "" {
			return "", &BuildError{Code: msg.ErrorDetail.Code, Message: errMsg}
		}
		if id := msg.imageID(); id != "" {
			imageID = id
		}
		if line := msg.render(); line != "" && output != nil {
			fmt.Fprintln(output, line)
		}
	}

	return imageID, nil
}

// ListImages returns local images matching the given options.
func (d *DockerClient) ListImages(ctx context.Context, opts ImageListOptions) ([]ImageInfo, error) {
	f := toFilterArgs(opts.Filters)
	if opts.Reference != "" {
		f.Add("reference", opts.Reference)
	}

	images, err := d.cli.ImageList(ctx, image.ListOptions{Filters: f})
	if err != nil {
		return nil, NewDockerError("ListImages", "image", opts.Reference, err.Error(), err)
	}

	result := make([]ImageInfo, 0, len(images))
	for _, img := range images {
		result = append(result, ImageInfo{
			ID:        img.ID,
			RepoTags:  img.RepoTags,
			CreatedAt: time.Unix(img.Created, 0),
			Labels:    img.Labels,
			Size:      img.Size,
		})
	}

	return result, nil
}

// RemoveImage removes an image reference. Untagging one of several tags
// leaves the underlying image in place.
func (d *DockerClient) RemoveImage(ctx context.Context, ref string, force bool) error {
	_, err := d.cli.ImageRemove(ctx, ref, image.RemoveOptions{Force: force, PruneChildren: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return NewDockerError("RemoveImage", "image", ref, "image not found", ErrImageNotFound)
		}
		if strings.Contains(err.Error(), "conflict") || strings.Contains(err.Error(), "is being used") {
			return NewDockerError("RemoveImage", "image", ref, err.Error(), ErrImageInUse)
		}
		return NewDockerError("RemoveImage", "image", ref, err.Error(), err)
	}
	return nil
}

// PruneImages removes unused images matching the filters.
func (d *DockerClient) PruneImages(ctx context.Context, pruneFilters map[string]string) (PruneResult, error) {
	report, err := d.cli.ImagesPrune(ctx, toFilterArgs(pruneFilters))
	if err != nil {
		return PruneResult{}, NewDockerError("PruneImages", "image", "", err.Error(), err)
	}

	result := PruneResult{SpaceReclaimed: report.SpaceReclaimed}
	for _, del := range report.ImagesDeleted {
		if del.Deleted != "" {
			result.Deleted = append(result.Deleted, del.Deleted)
		}
	}
	return result, nil
}

// ImageExists checks if an image exists locally.
func (d *DockerClient) ImageExists(ctx context.Context, ref string) (bool, error) {
	if _, err := d.cli.ImageInspect(ctx, ref); err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, NewDockerError("ImageExists", "image", ref, err.Error(), err)
	}
	return true, nil
}

// =============================================================================
// Helpers
// =============================================================================

func toFilterArgs(m map[string]string) filters.Args {
	f := filters.NewArgs()
	for k, v := range m {
		f.Add(k, v)
	}
	return f
}

type buildMessage struct {
	Stream      string           `json:"stream"`
	Status      string           `json:"status"`
	ID          string           `json:"id"`
	Progress    string           `json:"progress"`
	Error       string           `json:"error"`
	ErrorDetail buildErrorDetail `json:"errorDetail"`
	Aux         map[string]any   `json:"aux"`
}

type buildErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (m buildMessage) errorMessage() string {
	if msg := strings.TrimSpace(m.ErrorDetail.Message); msg != "" {
		return msg
	}
	return strings.TrimSpace(m.Error)
}

func (m buildMessage) imageID() string {
	if id, ok := m.Aux["ID"].(string); ok {
		return id
	}
	return ""
}

func (m buildMessage) render() string {
	if s := strings.TrimRight(m.Stream, "\r\n"); s != "" {
		return s
	}
	if m.Status != "" {
		parts := make([]string, 0, 3)
		if id := strings.TrimSpace(m.ID); id != "" {
			parts = append(parts, id)
		}
		parts = append(parts, strings.TrimSpace(m.Status))
		if p := strings.TrimSpace(m.Progress); p != "" {
			parts = append(parts, p)
		}
		return strings.Join(parts, " ")
	}
	return ""
}
