package deployment

import (
	"testing"

	"github.com/artpar/cutover/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Slugify Tests
// =============================================================================

func TestSlugify_TableDriven(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"web", "web"},
		{"Web App", "web-app"},
		{"api_v2", "api_v2"},
		{"my.service", "my.service"},
		{"_leading", "leading"},
		{"Hello World!", "hello-world"},
		{"!@#", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Slugify(tt.name))
		})
	}
}

// =============================================================================
// Naming Tests
// =============================================================================

func TestContainerName(t *testing.T) {
	assert.Equal(t, "web-app", ContainerName("Web App", ""))
	assert.Equal(t, "frontend", ContainerName("web", "frontend"))
}

func TestRepository(t *testing.T) {
	assert.Equal(t, "web-app", Repository("Web App", ""))
	assert.Equal(t, "registry.local/web", Repository("web", "registry.local/web"))
}

func TestImageRef(t *testing.T) {
	assert.Equal(t, "web:42", ImageRef("web", "42"))
	assert.Equal(t, "web:latest", LatestRef("web"))
}

func TestSplitImageRef_TableDriven(t *testing.T) {
	tests := []struct {
		ref  string
		repo string
		tag  string
	}{
		{"web:42", "web", "42"},
		{"web", "web", ""},
		{"localhost:5000/web:7", "localhost:5000/web", "7"},
		{"localhost:5000/web", "localhost:5000/web", ""},
		{"web:latest", "web", "latest"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			repo, tag := SplitImageRef(tt.ref)
			assert.Equal(t, tt.repo, repo)
			assert.Equal(t, tt.tag, tag)
		})
	}
}

func TestHealthURL(t *testing.T) {
	assert.Equal(t, "http://localhost:3000/health", HealthURL("", 3000, "/health"))
	assert.Equal(t, "http://10.0.0.5:8080/healthz", HealthURL("10.0.0.5", 8080, "healthz"))
	assert.Equal(t, "http://[::1]:80/", HealthURL("::1", 80, ""))
}

func TestContainerLabels(t *testing.T) {
	labels := ContainerLabels("web", "production", 42)

	assert.Equal(t, "true", labels[domain.LabelManaged])
	assert.Equal(t, "web", labels[domain.LabelService])
	assert.Equal(t, "production", labels[domain.LabelEnvironment])
	assert.Equal(t, "42", labels[domain.LabelBuild])
}
