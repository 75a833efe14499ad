// Package cutover replaces the instance running in a service slot: retire the
// old one, free the port, start the new one, confirm it is present and probe
// its health endpoint once.
package cutover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/artpar/cutover/internal/core/deployment"
	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/core/monitoring"
	"github.com/artpar/cutover/internal/shell/docker"
	"github.com/artpar/cutover/internal/shell/retry"
)

// Advisory step names.
const (
	StepRetire      = "retire"
	StepPortReclaim = "port_reclaim"
	StepHealthProbe = "health_probe"
)

// =============================================================================
// Interfaces
// =============================================================================

// Supervisor is the subset of process-supervisor commands a cut-over uses.
type Supervisor interface {
	Stop(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	Start(ctx context.Context, spec docker.StartSpec) (string, error)
	List(ctx context.Context) ([]string, error)
	Logs(ctx context.Context, name string, tail int) ([]string, error)
}

// Reclaimer frees a host port.
type Reclaimer interface {
	Reclaim(ctx context.Context, port int) error
}

// =============================================================================
// Options
// =============================================================================

// Options tunes the waits and checks of a cut-over.
type Options struct {
	RestartPolicy    string
	ReclaimGrace     time.Duration
	PresenceSettle   time.Duration
	PresenceAttempts int
	PresenceInterval time.Duration
	ProbeSettle      time.Duration
	LogTail          int
	// StrictHealth turns a failed health probe into a failed cut-over.
	StrictHealth bool
	// HealthCheck is handed to the supervisor for its own ongoing checks.
	// An empty Test probes the slot's health path from inside the container.
	HealthCheck docker.HealthCheck
}

// DefaultOptions returns the standard cut-over timings.
func DefaultOptions() Options {
	return Options{
		RestartPolicy:    "unless-stopped",
		ReclaimGrace:     2 * time.Second,
		PresenceSettle:   5 * time.Second,
		PresenceAttempts: 3,
		PresenceInterval: 2 * time.Second,
		ProbeSettle:      10 * time.Second,
		LogTail:          50,
		HealthCheck: docker.HealthCheck{
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			Retries:     3,
			StartPeriod: 40 * time.Second,
		},
	}
}

// =============================================================================
// Manager
// =============================================================================

// Manager runs cut-overs.
type Manager struct {
	supervisor Supervisor
	reclaimer  Reclaimer
	prober     Prober
	options    Options
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewManager creates a Manager.
func NewManager(supervisor Supervisor, reclaimer Reclaimer, prober Prober, options Options, clock clockwork.Clock, logger *slog.Logger) *Manager {
	if options.RestartPolicy == "" {
		options.RestartPolicy = "unless-stopped"
	}
	if options.PresenceAttempts <= 0 {
		options.PresenceAttempts = 1
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		supervisor: supervisor,
		reclaimer:  reclaimer,
		prober:     prober,
		options:    options,
		clock:      clock,
		logger:     logger.With("component", "cutover"),
	}
}

// Deploy replaces whatever runs in slot with an instance of artifact, using
// the bundle values as its environment. Only a failed start or a missing
// instance fail the cut-over; everything else is returned as an advisory on
// the result. No rollback is attempted.
func (m *Manager) Deploy(ctx context.Context, slot domain.ServiceSlot, artifact domain.Artifact, bundle domain.ConfigBundle) (*domain.CutoverResult, error) {
	if err := slot.Validate(); err != nil {
		return nil, err
	}

	name := slot.ContainerName
	logger := m.logger.With("container", name, "port", slot.Port, "image", artifact.Image)
	result := &domain.CutoverResult{
		Instance: domain.ServiceInstance{
			ContainerName: name,
			Port:          slot.Port,
			ArtifactTag:   artifact.Tag,
			Health:        domain.HealthUnknown,
		},
	}

	// 1. Retire the old instance.
	if err := m.retire(ctx, name); err != nil {
		logger.Warn("failed to retire previous instance", "error", err)
		result.Advise(StepRetire, err, nil)
	}

	// 2. Reclaim the port.
	if err := m.reclaimer.Reclaim(ctx, slot.Port); err != nil {
		cerr := &domain.CutoverError{Stage: domain.CutoverPortReclaimFailed, Container: name, Err: err}
		logger.Warn("port reclaim failed", "error", cerr)
		result.Advise(StepPortReclaim, cerr, nil)
	}
	if err := retry.Sleep(ctx, m.clock, m.options.ReclaimGrace); err != nil {
		return nil, err
	}

	// 3. Start the new instance.
	id, err := m.supervisor.Start(ctx, docker.StartSpec{
		Name:          name,
		Image:         artifact.Image,
		Port:          slot.Port,
		ContainerPort: slot.ContainerPort,
		Env:           bundle.Values,
		Labels:        deployment.ContainerLabels(slot.Service, bundle.Environment, artifact.BuildNumber),
		RestartPolicy: m.options.RestartPolicy,
		HealthCheck:   m.healthCheck(slot),
	})
	if err != nil {
		logger.Error("failed to start instance", "error", err)
		return nil, &domain.CutoverError{Stage: domain.CutoverStartFailed, Container: name, Err: err}
	}
	result.Instance.ContainerID = id
	logger.Info("instance started", "container_id", id)

	// 4. Confirm the instance is present.
	if err := m.confirmPresence(ctx, name); err != nil {
		logs := m.logs(ctx, name)
		logger.Error("instance is not running", "error", err, "logs", logs)
		return nil, &domain.CutoverError{Stage: domain.CutoverStartFailed, Container: name, Logs: logs, Err: err}
	}

	// 5. Probe once.
	if err := retry.Sleep(ctx, m.clock, m.options.ProbeSettle); err != nil {
		return nil, err
	}
	url := deployment.HealthURL(slot.Host, slot.Port, slot.HealthPath)
	status := m.prober.Probe(ctx, url)
	result.Instance.Health = monitoring.ClassifyProbe(status)

	if result.Instance.Health != domain.HealthHealthy {
		probeErr := errors.New(monitoring.ProbeMessage(url, status))
		logs := m.logs(ctx, name)
		if m.options.StrictHealth {
			logger.Error("health probe failed", "url", url, "status", status, "logs", logs)
			return nil, &domain.CutoverError{Stage: domain.CutoverHealthCheckFailed, Container: name, Logs: logs, Err: probeErr}
		}
		logger.Warn("health probe failed, leaving instance running", "url", url, "status", status, "logs", logs)
		result.Advise(StepHealthProbe, probeErr, logs)
		return result, nil
	}

	logger.Info("instance healthy", "url", url)
	return result, nil
}

func (m *Manager) retire(ctx context.Context, name string) error {
	if err := m.supervisor.Stop(ctx, name); err != nil {
		if errors.Is(err, domain.ErrInstanceNotFound) {
			m.logger.Debug("no previous instance to retire", "container", name)
			return nil
		}
		// Removal forces a stop, so carry on.
		m.logger.Debug("stop failed, removing anyway", "container", name, "error", err)
	}

	if err := m.supervisor.Remove(ctx, name); err != nil && !errors.Is(err, domain.ErrInstanceNotFound) {
		return err
	}
	return nil
}

func (m *Manager) confirmPresence(ctx context.Context, name string) error {
	if err := retry.Sleep(ctx, m.clock, m.options.PresenceSettle); err != nil {
		return err
	}

	policy := retry.Constant(m.options.PresenceAttempts, m.options.PresenceInterval)
	return retry.Do(ctx, m.clock, policy, func(ctx context.Context) error {
		names, err := m.supervisor.List(ctx)
		if err != nil {
			return fmt.Errorf("list instances: %w", err)
		}
		if !monitoring.Contains(names, name) {
			return fmt.Errorf("instance %s not present after start", name)
		}
		return nil
	}, nil)
}

func (m *Manager) logs(ctx context.Context, name string) []string {
	lines, err := m.supervisor.Logs(ctx, name, m.options.LogTail)
	if err != nil {
		m.logger.Debug("failed to fetch instance logs", "container", name, "error", err)
		return nil
	}
	return lines
}

func (m *Manager) healthCheck(slot domain.ServiceSlot) *docker.HealthCheck {
	hc := m.options.HealthCheck
	if len(hc.Test) == 0 {
		url := deployment.HealthURL("localhost", slot.ContainerPort, slot.HealthPath)
		hc.Test = []string{"CMD-SHELL", "curl -fsS " + url + " || exit 1"}
	}
	return &hc
}

// Logs returns the recent output of the slot's instance. The pipeline uses it
// to attach diagnostics to failures raised after the cut-over started.
func (m *Manager) Logs(ctx context.Context, slot domain.ServiceSlot) []string {
	return m.logs(ctx, slot.ContainerName)
}
