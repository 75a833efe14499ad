package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/artpar/cutover/internal/core/domain"
)

// Reporter receives the outcome of every finished job.
type Reporter interface {
	Report(ctx context.Context, outcome domain.Outcome) error
}

// =============================================================================
// Log Reporter
// =============================================================================

// LogReporter writes the outcome as one structured log record.
type LogReporter struct {
	Logger *slog.Logger
}

func (r *LogReporter) Report(ctx context.Context, o domain.Outcome) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attrs := []any{
		"environment", o.Environment,
		"build_number", o.BuildNumber,
		"artifact_tag", o.ArtifactTag,
		"container", o.ContainerName,
		"port", o.Port,
		"status", o.Status,
		"duration", o.Duration,
	}
	if len(o.Warnings) > 0 {
		attrs = append(attrs, "warnings", o.Warnings)
	}

	if o.Succeeded() {
		logger.InfoContext(ctx, "deployment outcome", attrs...)
		return nil
	}

	attrs = append(attrs,
		"failure_kind", o.FailureKind,
		"failure_stage", o.FailureStage,
		"failure_reason", o.FailureReason,
	)
	if len(o.Logs) > 0 {
		attrs = append(attrs, "logs", o.Logs)
	}
	logger.ErrorContext(ctx, "deployment outcome", attrs...)
	return nil
}

// =============================================================================
// File Reporter
// =============================================================================

// Report file formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// FileReporter writes the outcome to a file, replacing any previous report.
type FileReporter struct {
	Path   string
	Format string // yaml (default) or json
}

func (r *FileReporter) Report(_ context.Context, o domain.Outcome) error {
	var data []byte
	var err error

	switch r.Format {
	case "", FormatYAML:
		data, err = yaml.Marshal(o)
	case FormatJSON:
		data, err = json.MarshalIndent(o, "", "  ")
		data = append(data, '\n')
	default:
		return fmt.Errorf("unknown report format %q", r.Format)
	}
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}

	if dir := filepath.Dir(r.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}

	// Write then rename so readers never see a half-written report.
	tmp := r.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp, r.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
