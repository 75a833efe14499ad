package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestExcluded(t *testing.T) {
	m, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	tests := []struct {
		path     string
		excluded bool
	}{
		{".git", true},
		{".git/HEAD", true},
		{"web/node_modules/react/index.js", true},
		{".env.production.local", true},
		{"config/.env.local", true},
		{".env.production", false},
		{"src/main.go", false},
		{"distribution/readme.md", false},
		{"dist", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.excluded, m.Excluded(tt.path))
		})
	}
}

func TestPrepare_CopiesTreeWithoutExcludedPaths(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "Dockerfile", "FROM alpine\n")
	writeFile(t, src, "src/app.js", "console.log(1)\n")
	writeFile(t, src, ".git/config", "[core]\n")
	writeFile(t, src, "node_modules/x/index.js", "x\n")
	writeFile(t, src, ".env.local", "SECRET=1\n")

	m, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	dir, err := m.Prepare(context.Background(), src, "42")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "Dockerfile"))
	assert.FileExists(t, filepath.Join(dir, "src", "app.js"))
	assert.NoDirExists(t, filepath.Join(dir, ".git"))
	assert.NoDirExists(t, filepath.Join(dir, "node_modules"))
	assert.NoFileExists(t, filepath.Join(dir, ".env.local"))

	require.NoError(t, m.Cleanup(dir))
	assert.NoDirExists(t, dir)
}

func TestPrepare_CustomExcludes(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "Dockerfile", "FROM alpine\n")
	writeFile(t, src, "fixtures/big.bin", "data")
	writeFile(t, src, ".git/HEAD", "ref\n")

	m, err := New(t.TempDir(), []string{"fixtures"})
	require.NoError(t, err)

	dir, err := m.Prepare(context.Background(), src, "7")
	require.NoError(t, err)

	assert.NoDirExists(t, filepath.Join(dir, "fixtures"))
	assert.FileExists(t, filepath.Join(dir, ".git", "HEAD"))
}

func TestPrepare_MissingSource(t *testing.T) {
	m, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	_, err = m.Prepare(context.Background(), filepath.Join(t.TempDir(), "nope"), "1")
	assert.Error(t, err)
}

func TestCleanup_RefusesOutsideRoot(t *testing.T) {
	m, err := New(t.TempDir(), nil)
	require.NoError(t, err)

	assert.Error(t, m.Cleanup(t.TempDir()))
	assert.NoError(t, m.Cleanup(""))
}
