// Package snapshot copies a source tree into an isolated build workspace,
// leaving out paths that match the configured exclusion globs.
package snapshot

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ryanuber/go-glob"
)

// DefaultExcludes are left out of every snapshot unless overridden.
var DefaultExcludes = []string{".git", ".svn", "node_modules", ".next", "dist", "out", ".env*.local"}

// Manager owns build-specific snapshot directories under a common root.
type Manager struct {
	root     string
	excludes []string
}

// New ensures the workspace root exists. A nil excludes uses DefaultExcludes.
func New(root string, excludes []string) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	if excludes == nil {
		excludes = DefaultExcludes
	}
	return &Manager{root: root, excludes: excludes}, nil
}

// Excluded reports whether the slash-separated relative path matches an
// exclusion glob, either as a whole or through any one of its segments.
func (m *Manager) Excluded(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, pattern := range m.excludes {
		if glob.Glob(pattern, rel) {
			return true
		}
		for _, segment := range strings.Split(rel, "/") {
			if glob.Glob(pattern, segment) {
				return true
			}
		}
	}
	return false
}

// Prepare copies sourceDir into a fresh directory named after identifier and
// returns its path.
func (m *Manager) Prepare(ctx context.Context, sourceDir, identifier string) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("workspace identifier cannot be empty")
	}
	info, err := os.Stat(sourceDir)
	if err != nil {
		return "", fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("source %s is not a directory", sourceDir)
	}

	dir := filepath.Join(m.root, identifier)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("cleanup workspace: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}

	if err := m.copyTree(ctx, sourceDir, dir); err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}

// Cleanup removes a snapshot directory.
func (m *Manager) Cleanup(path string) error {
	if path == "" {
		return nil
	}
	// Ensure we only remove directories within the configured root.
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to cleanup path outside workspace root")
	}
	return os.RemoveAll(path)
}

func (m *Manager) copyTree(ctx context.Context, src, dst string) error {
	absRoot, _ := filepath.Abs(m.root)

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		if m.Excluded(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			// A workspace root nested inside the source must not copy itself.
			if abs, _ := filepath.Abs(path); abs == absRoot {
				return filepath.SkipDir
			}
			return os.MkdirAll(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return copyFile(path, target)
		default:
			// Sockets, devices and pipes have no place in a build context.
			return nil
		}
	})
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
