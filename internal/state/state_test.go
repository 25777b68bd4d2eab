package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), ".siestarunner"))
	require.NoError(t, err)
	return store
}

func fixedClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Minute)
		return now
	}
}

func TestStore_SaveAndLoadRun_NullableFields(t *testing.T) {
	store := newStore(t)
	run := Run{
		RunID:       "run-123",
		ProjectID:   7,
		ProjectType: "single_point",
		StartTime:   time.Unix(1, 2).UTC(),
		Status:      RunStatusRunning,
	}
	require.NoError(t, store.SaveRun(run))

	data, err := os.ReadFile(filepath.Join(store.Dir(), "runs", "run-123", "run.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"previous_run_id": null`)
	assert.Contains(t, string(data), `"end_time": null`)
	assert.Contains(t, string(data), `"exit_code": null`)

	loaded, err := store.LoadRun("run-123")
	require.NoError(t, err)
	assert.Equal(t, run.RunID, loaded.RunID)
	assert.Equal(t, 7, loaded.ProjectID)
	assert.True(t, run.StartTime.Equal(loaded.StartTime))
	assert.Nil(t, loaded.PreviousRunID)
	assert.False(t, loaded.Finished())
}

func TestStore_RejectsInvalidRecords(t *testing.T) {
	store := newStore(t)
	assert.Error(t, store.SaveRun(Run{RunID: "x"}))
	assert.Error(t, store.SaveRun(Run{RunID: "x", ProjectType: "md", StartTime: time.Unix(1, 0), Status: "paused"}))
	assert.Error(t, store.SaveFailure("x", Failure{FailureClass: "bogus", ErrorCode: "a", ErrorMessage: "b"}))
	assert.Error(t, store.SaveFailure("", Failure{FailureClass: FailureClassSystem, ErrorCode: "a", ErrorMessage: "b"}))

	dir := filepath.Join(store.Dir(), "runs", "junk")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run.json"), []byte(`{"run_id":"junk","extra":1}`), 0o644))
	_, err := store.LoadRun("junk")
	assert.Error(t, err)
}

func TestStore_ListRunsOrdersByStartTime(t *testing.T) {
	store := newStore(t)
	runs, err := store.ListRuns()
	require.NoError(t, err)
	assert.Empty(t, runs)
	_, ok, err := store.LatestRun()
	require.NoError(t, err)
	assert.False(t, ok)

	for i, id := range []string{"c", "a", "b"} {
		require.NoError(t, store.SaveRun(Run{
			RunID:       id,
			ProjectType: "md",
			StartTime:   time.Unix(int64(100+i), 0).UTC(),
			Status:      RunStatusCompleted,
		}))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(store.Dir(), "runs", "empty"), 0o755))

	ids, err := store.ListRunIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "empty"}, ids)

	runs, err = store.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[2].RunID)

	latest, ok, err := store.LatestRun()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", latest.RunID)
}

func TestRecorder_Lifecycle(t *testing.T) {
	store := newStore(t)
	rec := NewRecorder(store)
	rec.Now = fixedClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))

	first, err := rec.StartRun(Run{ProjectType: "single_point", ProjectID: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, first.RunID)
	assert.Equal(t, RunStatusRunning, first.Status)
	assert.Nil(t, first.PreviousRunID)

	require.NoError(t, rec.SetJobHash(first.RunID, "abc123", true))
	require.NoError(t, rec.SetStatus(first.RunID, RunStatusAnalysing))
	require.NoError(t, rec.FinishRun(first.RunID, RunStatusCompleted, 0))

	loaded, err := store.LoadRun(first.RunID)
	require.NoError(t, err)
	assert.Equal(t, "abc123", loaded.JobHash)
	assert.True(t, loaded.FromCache)
	assert.Equal(t, RunStatusCompleted, loaded.Status)
	require.NotNil(t, loaded.ExitCode)
	assert.Equal(t, 0, *loaded.ExitCode)
	assert.Equal(t, time.Minute, loaded.Duration())

	second, err := rec.StartRun(Run{ProjectType: "single_point"})
	require.NoError(t, err)
	require.NotNil(t, second.PreviousRunID)
	assert.Equal(t, first.RunID, *second.PreviousRunID)

	assert.Error(t, rec.FinishRun(second.RunID, RunStatusAnalysing, 0))
	assert.Error(t, rec.SetStatus("missing", RunStatusFailed))
}

func TestRecorder_RecordFailure(t *testing.T) {
	store := newStore(t)
	rec := NewRecorder(store)
	run, err := rec.StartRun(Run{ProjectType: "md"})
	require.NoError(t, err)

	cause := &ExecutionFailureError{Stage: "siesta", Code: "NonZeroExit", Message: "siesta exited with code 1", ExitCode: 1}
	f, err := rec.RecordFailure(run.RunID, fmt.Errorf("run: %w", cause))
	require.NoError(t, err)
	assert.Equal(t, FailureClassExecution, f.FailureClass)

	loaded, err := store.LoadFailure(run.RunID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Stage)
	assert.Equal(t, "siesta", *loaded.Stage)
	assert.Equal(t, "NonZeroExit", loaded.ErrorCode)
	assert.True(t, loaded.Rerunnable)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		class      FailureClass
		code       string
		rerunnable bool
	}{
		{"config", &ConfigFailureError{Code: "BadSettings", Message: "bad"}, FailureClassConfig, "BadSettings", false},
		{"workspace", &WorkspaceFailureError{Message: "no pseudo"}, FailureClassWorkspace, "WorkspaceFailure", false},
		{"execution", &ExecutionFailureError{Message: "exit 1"}, FailureClassExecution, "ExecutionFailure", true},
		{"system", &SystemFailureError{Code: "Signal", Message: "terminated"}, FailureClassSystem, "Signal", true},
		{"unknown", errors.New("boom"), FailureClassSystem, "UnknownError", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Classify(tt.err)
			require.NoError(t, err)
			assert.Equal(t, tt.class, f.FailureClass)
			assert.Equal(t, tt.code, f.ErrorCode)
			assert.Equal(t, tt.rerunnable, f.Rerunnable)
			assert.NoError(t, f.Validate())
		})
	}

	_, err := Classify(nil)
	assert.Error(t, err)
}

func TestFailureErrors_Unwrap(t *testing.T) {
	base := errors.New("root cause")
	err := fmt.Errorf("wrapped: %w", &WorkspaceFailureError{Code: "Pseudo", Message: "missing", Cause: base})
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "workspace failure (Pseudo): missing", (&WorkspaceFailureError{Code: "Pseudo", Message: "missing"}).Error())
	assert.Equal(t, "execution failure stage=siesta: boom", (&ExecutionFailureError{Stage: "siesta", Message: "boom"}).Error())
}
