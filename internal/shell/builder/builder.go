// Package builder implements the build stage: snapshot the source tree, run
// the image toolchain and record the resulting artifact.
package builder

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/artpar/cutover/internal/core/deployment"
	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/shell/snapshot"
)

// =============================================================================
// Interfaces
// =============================================================================

// Request is one toolchain invocation. Tags are full image references that
// must all name the same content.
type Request struct {
	ContextDir string
	Descriptor string
	Tags       []string
	Args       map[string]string
	Labels     map[string]string
}

// Toolchain turns a build context into an image and returns its ID, or ""
// when the toolchain cannot report one. Failures are *domain.BuildToolError.
type Toolchain interface {
	Build(ctx context.Context, req Request) (string, error)
}

// ArtifactRecorder persists successful builds.
type ArtifactRecorder interface {
	RecordArtifact(ctx context.Context, artifact *domain.Artifact) error
}

// =============================================================================
// Builder
// =============================================================================

// Config describes what to build.
type Config struct {
	Service     string
	Environment string
	SourceDir   string
	Descriptor  string
	Repository  string
	Args        map[string]string
}

// Builder is the build stage.
type Builder struct {
	config    Config
	snapshots *snapshot.Manager
	toolchain Toolchain
	recorder  ArtifactRecorder
	clock     clockwork.Clock
	logger    *slog.Logger
}

// New creates a Builder.
func New(config Config, snapshots *snapshot.Manager, toolchain Toolchain, recorder ArtifactRecorder, clock clockwork.Clock, logger *slog.Logger) *Builder {
	if config.Descriptor == "" {
		config.Descriptor = "Dockerfile"
	}
	config.Repository = deployment.Repository(config.Service, config.Repository)
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		config:    config,
		snapshots: snapshots,
		toolchain: toolchain,
		recorder:  recorder,
		clock:     clock,
		logger:    logger.With("component", "builder"),
	}
}

// Repository returns the image repository artifacts are tagged into.
func (b *Builder) Repository() string {
	return b.config.Repository
}

// Build produces the artifact for buildNumber, tagged both with the build
// number and the latest alias. Nothing is recorded when the toolchain fails.
func (b *Builder) Build(ctx context.Context, buildNumber int64) (domain.Artifact, error) {
	tag := domain.BuildTag(buildNumber)
	image := deployment.ImageRef(b.config.Repository, tag)
	latest := deployment.LatestRef(b.config.Repository)

	dir, err := b.snapshots.Prepare(ctx, b.config.SourceDir, tag)
	if err != nil {
		return domain.Artifact{}, err
	}
	defer func() {
		if err := b.snapshots.Cleanup(dir); err != nil {
			b.logger.Warn("failed to remove build snapshot", "dir", dir, "error", err)
		}
	}()

	b.logger.Info("building image", "image", image, "source", b.config.SourceDir)
	started := b.clock.Now()

	imageID, err := b.toolchain.Build(ctx, Request{
		ContextDir: dir,
		Descriptor: b.config.Descriptor,
		Tags:       []string{image, latest},
		Args:       b.config.Args,
		Labels:     deployment.ContainerLabels(b.config.Service, b.config.Environment, buildNumber),
	})
	if err != nil {
		b.logger.Error("image build failed", "image", image, "error", err)
		return domain.Artifact{}, err
	}

	artifact := domain.Artifact{
		Service:     b.config.Service,
		Tag:         tag,
		BuildNumber: buildNumber,
		Image:       image,
		ImageID:     imageID,
		CreatedAt:   b.clock.Now().UTC(),
	}
	if err := b.recorder.RecordArtifact(ctx, &artifact); err != nil {
		// The daemon's latest tag has already moved; the recorded alias has not.
		b.logger.Error("failed to record artifact, latest tag and recorded alias disagree",
			"image", image, "latest", latest, "error", err)
		return domain.Artifact{}, err
	}

	b.logger.Info("image built", "image", image, "image_id", imageID,
		"duration", b.clock.Since(started).Round(time.Millisecond))
	return artifact, nil
}
