package domain

import (
	"strconv"
	"time"
)

// LatestAlias is the floating tag that always names the newest artifact.
const LatestAlias = "latest"

// Artifact is an immutable build output. Tag is the build number in decimal.
type Artifact struct {
	Service     string    `json:"service" db:"service"`
	Tag         string    `json:"tag" db:"tag"`
	BuildNumber int64     `json:"build_number" db:"build_number"`
	Image       string    `json:"image" db:"image"`
	ImageID     string    `json:"image_id,omitempty" db:"image_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// BuildTag formats a build number as an artifact tag.
//
// Example:
//
//	BuildTag(42) // returns "42"
func BuildTag(buildNumber int64) string {
	return strconv.FormatInt(buildNumber, 10)
}

// ParseBuildTag returns the build number encoded by tag. Only plain decimal
// digits qualify; "latest", "v1" or "-3" do not.
func ParseBuildTag(tag string) (int64, bool) {
	if tag == "" {
		return 0, false
	}
	for _, r := range tag {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseInt(tag, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ImageRecord is one tagged image as reported by the supervisor.
type ImageRecord struct {
	ID        string    `json:"id"`
	Tag       string    `json:"tag"`
	CreatedAt time.Time `json:"created_at"`
}

// PruneReport summarises one retention pass.
type PruneReport struct {
	Service        string     `json:"service"`
	Kept           []string   `json:"kept"`
	Removed        []string   `json:"removed"`
	Failed         []string   `json:"failed,omitempty"`
	Ignored        []string   `json:"ignored,omitempty"`
	SpaceReclaimed uint64     `json:"space_reclaimed"`
	Advisories     []Advisory `json:"-"`
}

// Warnings renders the report's advisories.
func (r PruneReport) Warnings() []string {
	out := make([]string, 0, len(r.Advisories))
	for _, a := range r.Advisories {
		out = append(out, a.String())
	}
	return out
}

// Labels put on containers and images owned by the orchestrator.
const (
	LabelManaged     = "io.cutover.managed"
	LabelService     = "io.cutover.service"
	LabelEnvironment = "io.cutover.environment"
	LabelBuild       = "io.cutover.build"
)
