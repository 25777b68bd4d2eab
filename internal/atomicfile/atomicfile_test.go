package atomicfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrom_ReplacesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "siesta.out")
	require.NoError(t, WriteFile(path, []byte("old"), 0o644))

	require.NoError(t, WriteFrom(path, strings.NewReader("new content"), 0o600))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Rho.grid.nc")
	require.NoError(t, os.WriteFile(src, []byte("grid"), 0o644))

	dst := filepath.Join(dir, "cache", "0.blob")
	require.NoError(t, CopyFile(dst, src, 0o644))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "grid", string(got))

	assert.Error(t, CopyFile(dst, filepath.Join(dir, "missing"), 0o644))
}
