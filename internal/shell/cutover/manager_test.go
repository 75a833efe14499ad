package cutover

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/shell/docker"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeSupervisor models one host with named instances.
type fakeSupervisor struct {
	mu sync.Mutex

	present   map[string]bool
	startErr  error
	stopErr   error
	neverUp   bool // started instances never show up in List
	upAfter   int  // List calls before a started instance shows up
	listCalls int
	logs      []string

	calls   []string
	started []docker.StartSpec
}

func newFakeSupervisor(existing ...string) *fakeSupervisor {
	f := &fakeSupervisor{present: map[string]bool{}}
	for _, n := range existing {
		f.present[n] = true
	}
	return f
}

func (f *fakeSupervisor) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeSupervisor) Stop(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("stop " + name)
	if f.stopErr != nil {
		return f.stopErr
	}
	if !f.present[name] {
		return domain.ErrInstanceNotFound
	}
	return nil
}

func (f *fakeSupervisor) Remove(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove " + name)
	if !f.present[name] {
		return domain.ErrInstanceNotFound
	}
	delete(f.present, name)
	return nil
}

func (f *fakeSupervisor) Start(_ context.Context, spec docker.StartSpec) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("start " + spec.Name)
	if f.startErr != nil {
		return "", f.startErr
	}
	if f.present[spec.Name] {
		return "", errors.New("name already in use")
	}
	f.started = append(f.started, spec)
	if !f.neverUp {
		f.present[spec.Name] = true
	}
	return "cid-" + spec.Name, nil
}

func (f *fakeSupervisor) List(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("list")
	f.listCalls++
	if f.listCalls <= f.upAfter {
		return nil, nil
	}
	var names []string
	for n := range f.present {
		names = append(names, n)
	}
	return names, nil
}

func (f *fakeSupervisor) Logs(_ context.Context, name string, tail int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("logs " + name)
	return f.logs, nil
}

type stubReclaimer struct {
	ports []int
	err   error
}

func (s *stubReclaimer) Reclaim(_ context.Context, port int) error {
	s.ports = append(s.ports, port)
	return s.err
}

type stubProber struct {
	status int
	urls   []string
}

func (s *stubProber) Probe(_ context.Context, url string) int {
	s.urls = append(s.urls, url)
	return s.status
}

func testSlot() domain.ServiceSlot {
	return domain.ServiceSlot{
		Service:       "web",
		ContainerName: "web",
		Port:          3000,
		ContainerPort: 8080,
		HealthPath:    "/health",
	}
}

func testArtifact() domain.Artifact {
	return domain.Artifact{Service: "web", Tag: "42", BuildNumber: 42, Image: "web:42"}
}

func testBundle() domain.ConfigBundle {
	return domain.ConfigBundle{Environment: "prod", Values: map[string]string{"API_URL": "https://api"}}
}

// instantOptions has no settle waits so tests need not drive the clock.
func instantOptions() Options {
	opts := DefaultOptions()
	opts.ReclaimGrace = 0
	opts.PresenceSettle = 0
	opts.PresenceAttempts = 1
	opts.ProbeSettle = 0
	return opts
}

func newTestManager(sup Supervisor, rec Reclaimer, prober Prober, opts Options) *Manager {
	return NewManager(sup, rec, prober, opts, clockwork.NewFakeClock(), nil)
}

// =============================================================================
// Deploy Tests
// =============================================================================

func TestDeploy_IdempotentWithAndWithoutPreviousInstance(t *testing.T) {
	for _, tc := range []struct {
		name     string
		existing []string
	}{
		{"no previous instance", nil},
		{"previous instance", []string{"web"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sup := newFakeSupervisor(tc.existing...)
			m := newTestManager(sup, &stubReclaimer{}, &stubProber{status: 200}, instantOptions())

			result, err := m.Deploy(context.Background(), testSlot(), testArtifact(), testBundle())
			require.NoError(t, err)

			assert.Empty(t, result.Advisories)
			assert.Equal(t, domain.HealthHealthy, result.Instance.Health)
			assert.Equal(t, "cid-web", result.Instance.ContainerID)
			assert.Equal(t, "42", result.Instance.ArtifactTag)
		})
	}
}

func TestDeploy_StepOrder(t *testing.T) {
	sup := newFakeSupervisor("web")
	rec := &stubReclaimer{}
	prober := &stubProber{status: 200}
	m := newTestManager(sup, rec, prober, instantOptions())

	_, err := m.Deploy(context.Background(), testSlot(), testArtifact(), testBundle())
	require.NoError(t, err)

	assert.Equal(t, []string{"stop web", "remove web", "start web", "list"}, sup.calls)
	assert.Equal(t, []int{3000}, rec.ports)
	assert.Equal(t, []string{"http://localhost:3000/health"}, prober.urls)
}

func TestDeploy_StartSpec(t *testing.T) {
	sup := newFakeSupervisor()
	m := newTestManager(sup, &stubReclaimer{}, &stubProber{status: 200}, instantOptions())

	_, err := m.Deploy(context.Background(), testSlot(), testArtifact(), testBundle())
	require.NoError(t, err)

	require.Len(t, sup.started, 1)
	spec := sup.started[0]
	assert.Equal(t, "web:42", spec.Image)
	assert.Equal(t, 3000, spec.Port)
	assert.Equal(t, 8080, spec.ContainerPort)
	assert.Equal(t, "unless-stopped", spec.RestartPolicy)
	assert.Equal(t, "https://api", spec.Env["API_URL"])
	assert.Equal(t, "prod", spec.Labels[domain.LabelEnvironment])
	require.NotNil(t, spec.HealthCheck)
	assert.Equal(t, []string{"CMD-SHELL", "curl -fsS http://localhost:8080/health || exit 1"}, spec.HealthCheck.Test)
	assert.Equal(t, 3, spec.HealthCheck.Retries)
}

func TestDeploy_FailingProbeIsAdvisory(t *testing.T) {
	sup := newFakeSupervisor()
	sup.logs = []string{"listening on :8080", "db not ready"}
	m := newTestManager(sup, &stubReclaimer{}, &stubProber{status: 503}, instantOptions())

	result, err := m.Deploy(context.Background(), testSlot(), testArtifact(), testBundle())
	require.NoError(t, err)

	assert.Equal(t, domain.HealthUnhealthy, result.Instance.Health)
	require.Len(t, result.Advisories, 1)
	assert.Equal(t, StepHealthProbe, result.Advisories[0].Step)
	assert.Equal(t, sup.logs, result.Advisories[0].Logs)
	assert.Contains(t, result.Warnings()[0], "returned status 503")
	assert.True(t, sup.present["web"], "instance is left running")
}

func TestDeploy_StrictHealthFails(t *testing.T) {
	opts := instantOptions()
	opts.StrictHealth = true
	m := newTestManager(newFakeSupervisor(), &stubReclaimer{}, &stubProber{status: 0}, opts)

	_, err := m.Deploy(context.Background(), testSlot(), testArtifact(), testBundle())

	var cerr *domain.CutoverError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, domain.CutoverHealthCheckFailed, cerr.Stage)
	assert.Contains(t, err.Error(), "unreachable")
}

func TestDeploy_PortReclaimFailureIsAdvisory(t *testing.T) {
	m := newTestManager(newFakeSupervisor(), &stubReclaimer{err: errors.New("port 3000 is still bound")}, &stubProber{status: 200}, instantOptions())

	result, err := m.Deploy(context.Background(), testSlot(), testArtifact(), testBundle())
	require.NoError(t, err)

	require.Len(t, result.Advisories, 1)
	adv := result.Advisories[0]
	assert.Equal(t, StepPortReclaim, adv.Step)
	var cerr *domain.CutoverError
	require.True(t, errors.As(adv.Err, &cerr))
	assert.Equal(t, domain.CutoverPortReclaimFailed, cerr.Stage)
}

func TestDeploy_RetireFailureIsAdvisory(t *testing.T) {
	sup := newFakeSupervisor()
	sup.stopErr = errors.New("daemon timeout")
	m := newTestManager(sup, &stubReclaimer{}, &stubProber{status: 200}, instantOptions())

	result, err := m.Deploy(context.Background(), testSlot(), testArtifact(), testBundle())
	require.NoError(t, err)
	assert.Empty(t, result.Advisories, "remove succeeded after stop failed")
}

func TestDeploy_StartFailureIsFatal(t *testing.T) {
	sup := newFakeSupervisor()
	sup.startErr = errors.New("port is already allocated")
	prober := &stubProber{status: 200}
	m := newTestManager(sup, &stubReclaimer{}, prober, instantOptions())

	_, err := m.Deploy(context.Background(), testSlot(), testArtifact(), testBundle())

	var cerr *domain.CutoverError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, domain.CutoverStartFailed, cerr.Stage)
	assert.Equal(t, domain.FailureCutover, domain.FailureKindOf(err))
	assert.Empty(t, prober.urls)
}

func TestDeploy_MissingInstanceIsFatalWithLogs(t *testing.T) {
	sup := newFakeSupervisor()
	sup.neverUp = true
	sup.logs = []string{"panic: bind: address already in use"}
	prober := &stubProber{status: 200}
	m := newTestManager(sup, &stubReclaimer{}, prober, instantOptions())

	_, err := m.Deploy(context.Background(), testSlot(), testArtifact(), testBundle())

	var cerr *domain.CutoverError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, domain.CutoverStartFailed, cerr.Stage)
	assert.Equal(t, sup.logs, cerr.Logs)
	assert.Equal(t, sup.logs, domain.LogsOf(err))
	assert.Empty(t, prober.urls)
}

func TestDeploy_InvalidSlot(t *testing.T) {
	m := newTestManager(newFakeSupervisor(), &stubReclaimer{}, &stubProber{}, instantOptions())

	slot := testSlot()
	slot.Port = 0
	_, err := m.Deploy(context.Background(), slot, testArtifact(), testBundle())
	assert.ErrorIs(t, err, domain.ErrInvalidSlot)
}

func TestDeploy_WaitsOnClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sup := newFakeSupervisor()
	sup.upAfter = 1 // absent on the first poll

	opts := DefaultOptions()
	opts.ReclaimGrace = time.Second
	opts.PresenceSettle = 5 * time.Second
	opts.PresenceAttempts = 2
	opts.PresenceInterval = 2 * time.Second
	opts.ProbeSettle = 10 * time.Second
	m := NewManager(sup, &stubReclaimer{}, &stubProber{status: 200}, opts, clock, nil)

	done := make(chan error, 1)
	go func() {
		_, err := m.Deploy(context.Background(), testSlot(), testArtifact(), testBundle())
		done <- err
	}()

	for _, d := range []time.Duration{time.Second, 5 * time.Second, 2 * time.Second, 10 * time.Second} {
		clock.BlockUntil(1)
		clock.Advance(d)
	}

	require.NoError(t, <-done)
	assert.Equal(t, 2, sup.listCalls)
}
