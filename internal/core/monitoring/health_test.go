package monitoring

import (
	"testing"

	"github.com/artpar/cutover/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// ClassifyProbe Tests
// =============================================================================

func TestClassifyProbe(t *testing.T) {
	tests := []struct {
		status int
		want   domain.HealthStatus
	}{
		{200, domain.HealthHealthy},
		{204, domain.HealthUnhealthy},
		{301, domain.HealthUnhealthy},
		{500, domain.HealthUnhealthy},
		{503, domain.HealthUnhealthy},
		{ProbeUnreachable, domain.HealthUnhealthy},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyProbe(tt.status), "status %d", tt.status)
	}
}

func TestProbeMessage(t *testing.T) {
	assert.Equal(t, "health probe http://h:1/health returned status 503", ProbeMessage("http://h:1/health", 503))
	assert.Equal(t, "health probe http://h:1/health unreachable", ProbeMessage("http://h:1/health", ProbeUnreachable))
}

// =============================================================================
// Presence Tests
// =============================================================================

func TestIsPresentState(t *testing.T) {
	assert.True(t, IsPresentState("running"))
	assert.True(t, IsPresentState("restarting"), "listed by a plain docker ps")
	assert.False(t, IsPresentState("exited"))
	assert.False(t, IsPresentState("created"))
	assert.False(t, IsPresentState("dead"))
	assert.False(t, IsPresentState(""))
}

func TestContains(t *testing.T) {
	running := []string{"db", "web"}
	assert.True(t, Contains(running, "web"))
	assert.False(t, Contains(running, "api"))
	assert.False(t, Contains(nil, "web"))
}
