// Package monitoring provides pure functions for instance health logic.
// Following ADR-002: Values as Boundaries - this package contains NO I/O.
package monitoring

import (
	"fmt"
	"net/http"

	"github.com/artpar/cutover/internal/core/domain"
)

// ProbeUnreachable is the status recorded when no HTTP response was received.
const ProbeUnreachable = 0

// =============================================================================
// Probe Classification (Pure Functions)
// =============================================================================

// ClassifyProbe maps a probe status code to instance health. Only 200 is
// healthy; redirects, other 2xx codes and connection failures are not.
func ClassifyProbe(status int) domain.HealthStatus {
	if status == http.StatusOK {
		return domain.HealthHealthy
	}
	return domain.HealthUnhealthy
}

// ProbeMessage renders a probe result for logs and warnings.
//
// Example:
//
//	ProbeMessage("http://localhost:3000/health", 503)
//	// returns "health probe http://localhost:3000/health returned status 503"
func ProbeMessage(url string, status int) string {
	if status == ProbeUnreachable {
		return fmt.Sprintf("health probe %s unreachable", url)
	}
	return fmt.Sprintf("health probe %s returned status %d", url, status)
}

// =============================================================================
// Presence (Pure Functions)
// =============================================================================

// IsPresentState reports whether a supervisor container state counts as the
// instance being present in the running set. The set is what a plain
// "docker ps" lists, so a restarting container is present; a crash loop
// under a restart policy passes the presence gate and is left to the
// health probe.
func IsPresentState(state string) bool {
	switch state {
	case "running", "restarting":
		return true
	default:
		return false
	}
}

// Contains reports whether name appears in the running set.
func Contains(running []string, name string) bool {
	for _, r := range running {
		if r == name {
			return true
		}
	}
	return false
}
