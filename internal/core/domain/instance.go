package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidSlot = errors.New("invalid service slot")

// =============================================================================
// Service Slot
// =============================================================================

// ServiceSlot is the logical place the service occupies on the host: a stable
// container name and a host port. Exactly one instance fills it at a time.
type ServiceSlot struct {
	Service       string `json:"service"`
	ContainerName string `json:"container_name"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	ContainerPort int    `json:"container_port"`
	HealthPath    string `json:"health_path"`
}

// Validate checks the slot is addressable.
func (s ServiceSlot) Validate() error {
	if s.Service == "" {
		return fmt.Errorf("%w: service name is required", ErrInvalidSlot)
	}
	if s.ContainerName == "" {
		return fmt.Errorf("%w: container name is required", ErrInvalidSlot)
	}
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidSlot, s.Port)
	}
	if s.ContainerPort <= 0 || s.ContainerPort > 65535 {
		return fmt.Errorf("%w: container port %d out of range", ErrInvalidSlot, s.ContainerPort)
	}
	return nil
}

// =============================================================================
// Service Instance
// =============================================================================

// HealthStatus is the result of the post-start probe.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// ServiceInstance is the running process bound to the slot. The supervisor
// owns it; only the name and observed state are kept here.
type ServiceInstance struct {
	ContainerName string       `json:"container_name"`
	ContainerID   string       `json:"container_id,omitempty"`
	Port          int          `json:"port"`
	ArtifactTag   string       `json:"artifact_tag"`
	Health        HealthStatus `json:"health"`
}

// CutoverResult is what a successful cut-over hands back. Advisories hold
// every best-effort step that did not go to plan.
type CutoverResult struct {
	Instance   ServiceInstance
	Advisories []Advisory
}

// Advise records a best-effort failure.
func (r *CutoverResult) Advise(step string, err error, logs []string) {
	r.Advisories = append(r.Advisories, Advisory{Step: step, Err: err, Logs: logs})
}

// Warnings renders the advisories.
func (r *CutoverResult) Warnings() []string {
	out := make([]string, 0, len(r.Advisories))
	for _, a := range r.Advisories {
		out = append(out, a.String())
	}
	return out
}
