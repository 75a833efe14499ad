package deployment

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/artpar/cutover/internal/core/domain"
)

// =============================================================================
// Resource Naming Functions
// =============================================================================

// Slugify converts a service name to a container- and repository-safe slug.
//
// The transformation rules are:
//   - Lowercase letters, digits, hyphens, underscores and dots are kept
//   - Uppercase letters are converted to lowercase
//   - Spaces are converted to hyphens
//   - All other characters are removed
//   - Leading separators are trimmed, Docker names must start alphanumeric
//
// Example:
//
//	Slugify("Web App")   // returns "web-app"
//	Slugify("_api.v2!")  // returns "api.v2"
func Slugify(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + 32)
		case r == ' ':
			b.WriteByte('-')
		}
	}
	return strings.TrimLeft(b.String(), "-_.")
}

// ContainerName returns the stable container name for a service slot.
// An explicit name wins over the derived one.
//
// Example:
//
//	ContainerName("Web App", "")      // returns "web-app"
//	ContainerName("web", "frontend")  // returns "frontend"
func ContainerName(service, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return Slugify(service)
}

// Repository returns the image repository for a service.
// An explicit repository wins over the derived one.
//
// Example:
//
//	Repository("Web App", "") // returns "web-app"
func Repository(service, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return Slugify(service)
}

// ImageRef joins a repository and tag.
//
// Example:
//
//	ImageRef("web", "42") // returns "web:42"
func ImageRef(repository, tag string) string {
	return fmt.Sprintf("%s:%s", repository, tag)
}

// LatestRef returns the floating alias reference for a repository.
//
// Example:
//
//	LatestRef("web") // returns "web:latest"
func LatestRef(repository string) string {
	return ImageRef(repository, domain.LatestAlias)
}

// SplitImageRef splits "repo:tag" into its parts. A registry port is not
// mistaken for a tag.
//
// Example:
//
//	SplitImageRef("localhost:5000/web:42") // returns "localhost:5000/web", "42"
//	SplitImageRef("web")                   // returns "web", ""
func SplitImageRef(ref string) (repository, tag string) {
	i := strings.LastIndexByte(ref, ':')
	if i < 0 || strings.ContainsRune(ref[i+1:], '/') {
		return ref, ""
	}
	return ref[:i], ref[i+1:]
}

// HealthURL returns the probe URL for a slot.
//
// Example:
//
//	HealthURL("localhost", 3000, "/health") // returns "http://localhost:3000/health"
func HealthURL(host string, port int, path string) string {
	if host == "" {
		host = "localhost"
	}
	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(port)) + path
}

// ContainerLabels returns the labels put on every container and image the
// orchestrator creates for a service.
func ContainerLabels(service, environment string, buildNumber int64) map[string]string {
	return map[string]string{
		domain.LabelManaged:     "true",
		domain.LabelService:     service,
		domain.LabelEnvironment: environment,
		domain.LabelBuild:       domain.BuildTag(buildNumber),
	}
}
