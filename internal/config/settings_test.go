package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("workdir", "", "")
	fs.Int("project-id", 0, "")
	fs.String("token", "", "")
	fs.Duration("request-interval", 0, "")
	fs.String("project-type", "", "")
	fs.Bool("cache", false, "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	s, err := Load(newFlags(t, "--workdir", dir), "")
	require.NoError(t, err)

	assert.Equal(t, "https://back.compmat.es", s.BackendURL)
	assert.Equal(t, 10*time.Second, s.RequestInterval)
	assert.Equal(t, ProjectTypeSinglePoint, s.ProjectType)
	assert.Equal(t, "siesta < siesta.fdf > siesta.out", s.Command())
	assert.Equal(t, filepath.Join(dir, "siesta.EIG"), s.LabelPath("EIG"))
	assert.False(t, s.NotificationsEnabled())
	assert.Contains(t, s.PassEnv, "SLURM_*")
}

func TestLoad_LegacyEnvironment(t *testing.T) {
	t.Setenv("PROJECT_ID", "17")
	t.Setenv("TOKEN", "secret")
	t.Setenv("ASE_SIESTA_COMMAND", "srun siesta < PREFIX.fdf > PREFIX.out")

	s, err := Load(newFlags(t, "--workdir", t.TempDir()), "")
	require.NoError(t, err)

	assert.Equal(t, 17, s.ProjectID)
	assert.Equal(t, "secret", s.Token)
	assert.True(t, s.NotificationsEnabled())
	assert.Equal(t, "srun siesta < siesta.fdf > siesta.out", s.Command())
}

func TestLoad_PrefixedEnvironmentWinsOverLegacy(t *testing.T) {
	t.Setenv("PROJECT_ID", "17")
	t.Setenv("SIESTA_RUNNER_PROJECT_ID", "23")

	s, err := Load(newFlags(t, "--workdir", t.TempDir()), "")
	require.NoError(t, err)
	assert.Equal(t, 23, s.ProjectID)
}

func TestLoad_FlagsOverrideConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := "request_interval: 30s\nproject_type: relax\nlabel: water\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "siestarunner.yaml"), []byte(cfg), 0o644))

	s, err := Load(newFlags(t, "--workdir", dir, "--request-interval", "2s"), "")
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, s.RequestInterval)
	assert.Equal(t, ProjectTypeGeometryOptimization, s.ProjectType)
	assert.Equal(t, "siesta < water.fdf > water.out", s.Command())
}

func TestLoad_ExplicitConfigFileMustExist(t *testing.T) {
	_, err := Load(newFlags(t), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate_RequiresProjectIDWithToken(t *testing.T) {
	t.Setenv("TOKEN", "secret")

	_, err := Load(newFlags(t, "--workdir", t.TempDir()), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project_id")
}

func TestValidate_RejectsBadValues(t *testing.T) {
	s := &Settings{
		RequestInterval: 0,
		SiestaCommand:   "",
		Label:           "a b",
		ProjectType:     "phonons",
		Parallelism:     0,
	}
	err := s.Validate()
	require.Error(t, err)
	for _, want := range []string{"request_interval", "siesta_command", "label", "phonons", "parallelism"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestParseProjectType(t *testing.T) {
	tests := []struct {
		in   string
		want ProjectType
		err  bool
	}{
		{"single_point", ProjectTypeSinglePoint, false},
		{"", ProjectTypeSinglePoint, false},
		{"MD", ProjectTypeMD, false},
		{"relax", ProjectTypeGeometryOptimization, false},
		{"geometry_optimization", ProjectTypeGeometryOptimization, false},
		{"phonons", "", true},
	}
	for _, tt := range tests {
		got, err := ParseProjectType(tt.in)
		if tt.err {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
