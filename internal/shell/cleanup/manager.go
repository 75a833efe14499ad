// Package cleanup retires build artifacts beyond the retention count and
// removes dangling build intermediates.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/artpar/cutover/internal/core/deployment"
	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/core/retention"
	"github.com/artpar/cutover/internal/shell/docker"
	"github.com/artpar/cutover/internal/shell/retry"
	"github.com/artpar/cutover/internal/shell/store"
)

// Advisory step names.
const (
	StepListImages    = "list_images"
	StepRemoveImage   = "remove_image"
	StepForget        = "forget_artifact"
	StepPruneDangling = "prune_dangling"
)

// ImageSupervisor is the subset of supervisor commands a prune uses.
type ImageSupervisor interface {
	Images(ctx context.Context, repository string) ([]domain.ImageRecord, error)
	RemoveImage(ctx context.Context, ref string) error
	PruneDangling(ctx context.Context, service string) (uint64, error)
}

// ArtifactForgetter drops artifact records once their image is gone.
type ArtifactForgetter interface {
	DeleteArtifact(ctx context.Context, service, tag string) error
}

// Config configures a Manager.
type Config struct {
	// Repository overrides the image repository derived from the service name.
	Repository     string
	RemoveAttempts int
	RemoveInterval time.Duration
}

// Manager prunes artifacts.
type Manager struct {
	images    ImageSupervisor
	artifacts ArtifactForgetter
	config    Config
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewManager creates a Manager.
func NewManager(images ImageSupervisor, artifacts ArtifactForgetter, config Config, clock clockwork.Clock, logger *slog.Logger) *Manager {
	if config.RemoveAttempts <= 0 {
		config.RemoveAttempts = 3
	}
	if config.RemoveInterval <= 0 {
		config.RemoveInterval = time.Second
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		images:    images,
		artifacts: artifacts,
		config:    config,
		clock:     clock,
		logger:    logger.With("component", "cleanup"),
	}
}

// Prune keeps the newest keep build-numbered images of service and removes
// the rest, then clears dangling intermediates. Individual failures are
// recorded on the report and never stop the pass; only a done context is
// returned as an error.
func (m *Manager) Prune(ctx context.Context, service string, keep int) (domain.PruneReport, error) {
	report := domain.PruneReport{Service: service}
	repo := deployment.Repository(service, m.config.Repository)
	logger := m.logger.With("service", service, "repository", repo)

	records, err := m.images.Images(ctx, repo)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		logger.Warn("failed to list images, skipping retention", "error", err)
		report.Advisories = append(report.Advisories, domain.Advisory{Step: StepListImages, Err: err})
	} else {
		plan, err := retention.Compute(retention.Tags(records), keep)
		if err != nil {
			return report, err
		}
		report.Kept = plan.Keep
		report.Ignored = plan.Ignored

		for _, tag := range plan.Remove {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			m.remove(ctx, logger, &report, service, repo, tag)
		}
	}

	reclaimed, err := m.images.PruneDangling(ctx, service)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return report, ctxErr
		}
		logger.Warn("failed to prune dangling images", "error", err)
		report.Advisories = append(report.Advisories, domain.Advisory{Step: StepPruneDangling, Err: err})
	}
	report.SpaceReclaimed += reclaimed

	logger.Info("retention pass complete",
		"kept", len(report.Kept), "removed", len(report.Removed), "failed", len(report.Failed))
	return report, nil
}

func (m *Manager) remove(ctx context.Context, logger *slog.Logger, report *domain.PruneReport, service, repo, tag string) {
	ref := deployment.ImageRef(repo, tag)

	policy := retry.Constant(m.config.RemoveAttempts, m.config.RemoveInterval)
	err := retry.Do(ctx, m.clock, policy, func(ctx context.Context) error {
		err := m.images.RemoveImage(ctx, ref)
		switch {
		case err == nil, docker.IsNotFound(err):
			return nil
		case errors.Is(err, docker.ErrImageInUse):
			// Still referenced by a container; waiting will not change that.
			return retry.Permanent(err)
		default:
			return err
		}
	}, func(attempt int, err error, wait time.Duration) {
		logger.Debug("image removal failed, retrying", "image", ref, "attempt", attempt, "error", err, "retry_in", wait)
	})
	if err != nil {
		logger.Warn("failed to remove image, skipping", "image", ref, "error", err)
		report.Failed = append(report.Failed, tag)
		report.Advisories = append(report.Advisories, domain.Advisory{Step: StepRemoveImage, Err: fmt.Errorf("%s: %w", ref, err)})
		return
	}
	report.Removed = append(report.Removed, tag)
	logger.Info("removed image", "image", ref)

	if m.artifacts == nil {
		return
	}
	if err := m.artifacts.DeleteArtifact(ctx, service, tag); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("failed to forget artifact", "tag", tag, "error", err)
		report.Advisories = append(report.Advisories, domain.Advisory{Step: StepForget, Err: err})
	}
}
