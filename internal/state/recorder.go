package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Recorder drives the lifecycle of run records: start, status updates,
// finish and failure.
type Recorder struct {
	Store *Store

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

func NewRecorder(store *Store) *Recorder {
	return &Recorder{Store: store, Now: time.Now}
}

func (r *Recorder) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

// NewRunID returns a random run identifier.
func (r *Recorder) NewRunID() string {
	return uuid.NewString()
}

// StartRun fills in RunID, StartTime, Status and PreviousRunID when unset
// and persists the record.
func (r *Recorder) StartRun(run Run) (Run, error) {
	if r == nil || r.Store == nil {
		return Run{}, errors.New("Store is required")
	}
	if run.RunID == "" {
		run.RunID = r.NewRunID()
	}
	if run.StartTime.IsZero() {
		run.StartTime = r.now()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	if run.PreviousRunID == nil {
		prev, ok, err := r.Store.LatestRun()
		if err != nil {
			return Run{}, fmt.Errorf("find previous run: %w", err)
		}
		if ok && prev.RunID != run.RunID {
			id := prev.RunID
			run.PreviousRunID = &id
		}
	}
	if err := r.Store.SaveRun(run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// SetStatus updates the status of an unfinished run.
func (r *Recorder) SetStatus(runID string, status RunStatus) error {
	return r.update(runID, func(run *Run) {
		run.Status = status
	})
}

// SetJobHash records the identity of the SIESTA job once it is known.
func (r *Recorder) SetJobHash(runID, hash string, fromCache bool) error {
	return r.update(runID, func(run *Run) {
		run.JobHash = hash
		run.FromCache = fromCache
	})
}

// FinishRun marks a run completed or failed with the given exit code.
func (r *Recorder) FinishRun(runID string, status RunStatus, exitCode int) error {
	if status != RunStatusCompleted && status != RunStatusFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	end := r.now()
	return r.update(runID, func(run *Run) {
		run.Status = status
		run.EndTime = &end
		run.ExitCode = &exitCode
	})
}

// RecordFailure classifies err and writes failure.json for the run.
func (r *Recorder) RecordFailure(runID string, err error) (Failure, error) {
	if r == nil || r.Store == nil {
		return Failure{}, errors.New("Store is required")
	}
	f, ferr := Classify(err)
	if ferr != nil {
		return Failure{}, ferr
	}
	return f, r.Store.SaveFailure(runID, f)
}

func (r *Recorder) update(runID string, mutate func(run *Run)) error {
	if r == nil || r.Store == nil {
		return errors.New("Store is required")
	}
	run, err := r.Store.LoadRun(runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	mutate(&run)
	return r.Store.SaveRun(run)
}
