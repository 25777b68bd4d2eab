package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func counterJob() *Job {
	return &Job{
		Name:    "siesta",
		Inputs:  []string{"siesta.fdf", "*.psf"},
		Run:     "echo run >> runs.log; echo 'Etot = -1.0' > siesta.out",
		Outputs: []string{"siesta.out", "siesta.EIG"},
	}
}

func TestRunner_CacheHitSkipsExecution(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "siesta.fdf"), "SystemLabel siesta\n")
	writeFile(t, filepath.Join(dir, "H.psf"), "pseudo")

	cache := NewMemoryCache()
	runner := NewRunner(dir, cache, nil)

	first, err := runner.Run(context.Background(), counterJob())
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, []string{"siesta.out"}, first.Artifacts)

	require.NoError(t, os.Remove(filepath.Join(dir, "siesta.out")))

	second, err := runner.Run(context.Background(), counterJob())
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Hash, second.Hash)

	runs, err := os.ReadFile(filepath.Join(dir, "runs.log"))
	require.NoError(t, err)
	assert.Equal(t, "run\n", string(runs), "solver must run exactly once")

	out, err := os.ReadFile(filepath.Join(dir, "siesta.out"))
	require.NoError(t, err)
	assert.Equal(t, "Etot = -1.0\n", string(out))
}

func TestRunner_InputChangeInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "siesta.fdf"), "MeshCutoff 300 Ry\n")

	runner := NewRunner(dir, NewMemoryCache(), nil)
	job := counterJob()
	job.Inputs = []string{"siesta.fdf"}

	first, err := runner.Run(context.Background(), job)
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "siesta.fdf"), "MeshCutoff 400 Ry\n")

	second, err := runner.Run(context.Background(), job)
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, second.Hash)
	assert.False(t, second.FromCache)
}

func TestRunner_FailureIsNotCached(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "siesta.fdf"), "x\n")

	cache := NewMemoryCache()
	runner := NewRunner(dir, cache, nil)
	job := &Job{Name: "siesta", Inputs: []string{"siesta.fdf"}, Run: "exit 1", Outputs: []string{"siesta.out"}}

	result, err := runner.Run(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, result.Succeeded())

	has, err := cache.Has(result.Hash)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRunner_MissingLiteralInputFails(t *testing.T) {
	runner := NewRunner(t.TempDir(), nil, nil)

	_, err := runner.Run(context.Background(), &Job{Name: "siesta", Inputs: []string{"siesta.fdf"}, Run: "true"})
	require.Error(t, err)
}

func TestRunner_HashIgnoresJobDirectoryLocation(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	for _, dir := range []string{a, b} {
		writeFile(t, filepath.Join(dir, "siesta.fdf"), "same\n")
	}
	job := &Job{Name: "siesta", Inputs: []string{"siesta.fdf"}, Run: "true"}

	ha, err := NewRunner(a, nil, nil).Hash(job)
	require.NoError(t, err)
	hb, err := NewRunner(b, nil, nil).Hash(job)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestFileCache_RoundTripsArtifacts(t *testing.T) {
	cache := NewFileCache(t.TempDir())
	entry := &CacheEntry{
		Hash:      JobHash("abcdef0123"),
		Stdout:    []byte("out"),
		Artifacts: []CachedArtifact{{Path: "siesta.out", Content: []byte("energy")}, {Path: "siesta.EIG", Content: []byte{}}},
	}
	require.NoError(t, cache.Put(entry))

	has, err := cache.Has(entry.Hash)
	require.NoError(t, err)
	assert.True(t, has)

	got, err := cache.Get(entry.Hash)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Artifacts[0].Content, "blobs are referenced, not loaded")
	blob, err := os.ReadFile(got.Artifacts[0].Source)
	require.NoError(t, err)
	assert.Equal(t, "energy", string(blob))
	assert.Equal(t, "siesta.EIG", got.Artifacts[1].Path)

	missing, err := cache.Get(JobHash("ffff"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHarvester_SkipsUnmatchedPatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "siesta.out"), "a")
	writeFile(t, filepath.Join(dir, "grids", "Rho.grid.nc"), "b")

	set, err := NewHarvester(dir).Harvest([]string{"siesta.out", "siesta.bands", "grids", "siesta.out"})
	require.NoError(t, err)
	require.Len(t, set.Artifacts, 2)
	assert.Equal(t, "grids/Rho.grid.nc", set.Artifacts[0].Path)
	assert.Equal(t, "siesta.out", set.Artifacts[1].Path)
	assert.Equal(t, filepath.Join(dir, "siesta.out"), set.Artifacts[1].Source)
}

func TestRunner_WithoutCacheDoesNotReadOutputs(t *testing.T) {
	dir := t.TempDir()
	// Reading a FIFO with no writer blocks, so any attempt to load the
	// output's content would hang the run.
	require.NoError(t, unix.Mkfifo(filepath.Join(dir, "Rho.grid.nc"), 0o644))

	runner := NewRunner(dir, nil, nil)
	job := &Job{Name: "siesta", Run: "echo done > siesta.out", Outputs: []string{"siesta.out", "Rho.grid.nc"}}

	type outcome struct {
		result *RunResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := runner.Run(context.Background(), job)
		done <- outcome{result, err}
	}()

	select {
	case o := <-done:
		require.NoError(t, o.err)
		assert.True(t, o.result.Succeeded())
		assert.Equal(t, []string{"Rho.grid.nc", "siesta.out"}, o.result.Artifacts)
	case <-time.After(10 * time.Second):
		t.Fatal("run blocked reading an output file")
	}
}

func TestRunner_FileCacheRestoresOutputs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "siesta.fdf"), "SystemLabel siesta\n")

	runner := NewRunner(dir, NewFileCache(t.TempDir()), nil)
	job := counterJob()
	job.Inputs = []string{"siesta.fdf"}

	first, err := runner.Run(context.Background(), job)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	writeFile(t, filepath.Join(dir, "siesta.out"), "edited\n")

	second, err := runner.Run(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, second.FromCache)

	out, err := os.ReadFile(filepath.Join(dir, "siesta.out"))
	require.NoError(t, err)
	assert.Equal(t, "Etot = -1.0\n", string(out))

	runs, err := os.ReadFile(filepath.Join(dir, "runs.log"))
	require.NoError(t, err)
	assert.Equal(t, "run\n", string(runs))
}

func TestBuildEnv_IsSorted(t *testing.T) {
	env := buildEnv(map[string]string{"B": "2", "A": "1"}, []string{"PATH"}, []string{"PATH=/bin", "HOME=/root"})
	assert.Equal(t, []string{"A=1", "B=2", "PATH=/bin"}, env)
}
