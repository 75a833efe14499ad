// Package retention decides which build artifacts survive a prune.
// Following ADR-002: Values as Boundaries - this package contains NO I/O.
package retention

import (
	"errors"
	"sort"

	"github.com/artpar/cutover/internal/core/domain"
)

var ErrInvalidKeep = errors.New("retention keep count must be at least 1")

// Plan is the result of applying a retention policy to a set of tags.
type Plan struct {
	Keep    []string // newest first
	Remove  []string // newest first
	Ignored []string // non-numeric tags, never pruned
}

// =============================================================================
// Planning (Pure Functions)
// =============================================================================

// Compute splits tags into the newest keep build-numbered tags and the rest.
//
// Only tags made of decimal digits take part. They are ordered by numeric
// value, so "10" is newer than "9". Aliases such as "latest" are reported in
// Ignored and never appear in Remove. Duplicate tags are collapsed.
//
// Example:
//
//	Compute([]string{"1", "2", "10", "9", "latest"}, 2)
//	// Keep:    ["10", "9"]
//	// Remove:  ["2", "1"]
//	// Ignored: ["latest"]
func Compute(tags []string, keep int) (Plan, error) {
	if keep < 1 {
		return Plan{}, ErrInvalidKeep
	}

	type numbered struct {
		tag string
		n   int64
	}

	var plan Plan
	seen := make(map[string]bool, len(tags))
	builds := make([]numbered, 0, len(tags))
	for _, tag := range tags {
		if seen[tag] {
			continue
		}
		seen[tag] = true

		n, ok := domain.ParseBuildTag(tag)
		if !ok {
			plan.Ignored = append(plan.Ignored, tag)
			continue
		}
		builds = append(builds, numbered{tag: tag, n: n})
	}

	sort.SliceStable(builds, func(i, j int) bool {
		return builds[i].n > builds[j].n
	})

	for i, b := range builds {
		if i < keep {
			plan.Keep = append(plan.Keep, b.tag)
		} else {
			plan.Remove = append(plan.Remove, b.tag)
		}
	}

	return plan, nil
}

// Tags extracts the tag of every image record.
func Tags(images []domain.ImageRecord) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		out = append(out, img.Tag)
	}
	return out
}
