// Package bundle loads per-environment configuration bundles from disk and
// runs the validation stage over them.
package bundle

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/subosito/gotenv"

	"github.com/artpar/cutover/internal/core/domain"
	"github.com/artpar/cutover/internal/core/validation"
)

// DefaultFilePattern names the bundle file inside the bundle directory.
// The {env} placeholder is replaced with the environment name.
const DefaultFilePattern = ".env.{env}"

// Path returns the bundle path for env.
func Path(dir, filePattern, env string) string {
	if filePattern == "" {
		filePattern = DefaultFilePattern
	}
	return filepath.Join(dir, strings.ReplaceAll(filePattern, "{env}", env))
}

// Load reads the bundle file for env. Keys keep their case. A missing file
// is reported as a *domain.MissingConfigError naming the path.
func Load(dir, filePattern, env string) (domain.ConfigBundle, error) {
	path := Path(dir, filePattern, env)

	values, err := gotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.ConfigBundle{}, &domain.MissingConfigError{Environment: env, Item: path, File: true}
		}
		return domain.ConfigBundle{}, fmt.Errorf("read config bundle %s: %w", path, err)
	}

	return domain.ConfigBundle{
		Environment: env,
		Path:        path,
		Values:      values,
	}, nil
}

// =============================================================================
// Validator
// =============================================================================

// Validator is the environment validation stage. It has no side effects.
type Validator struct {
	Dir         string
	FilePattern string
	Required    []string
	Logger      *slog.Logger
}

// Validate loads the bundle for env and checks every required key is present.
func (v *Validator) Validate(ctx context.Context, env string) (domain.ConfigBundle, error) {
	if err := ctx.Err(); err != nil {
		return domain.ConfigBundle{}, err
	}

	b, err := Load(v.Dir, v.FilePattern, env)
	if err != nil {
		return domain.ConfigBundle{}, err
	}

	required := v.Required
	if required == nil {
		required = validation.DefaultRequiredKeys
	}
	if err := validation.ValidateBundle(b, required); err != nil {
		return domain.ConfigBundle{}, err
	}

	logger := v.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("config bundle validated", "component", "validator",
		"environment", env, "path", b.Path, "keys", len(b.Values))

	return b, nil
}
