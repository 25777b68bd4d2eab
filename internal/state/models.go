package state

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusAnalysing RunStatus = "analysing"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is the persisted record of one invocation of the runner.
//
// previous_run_id is always present and null for the first run in a state
// directory. end_time and exit_code stay null until the run finishes.
type Run struct {
	RunID         string     `json:"run_id"`
	JobHash       string     `json:"job_hash"`
	ProjectID     int        `json:"project_id"`
	ProjectType   string     `json:"project_type"`
	Label         string     `json:"label"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	Status        RunStatus  `json:"status"`
	ExitCode      *int       `json:"exit_code"`
	FromCache     bool       `json:"from_cache"`
	PreviousRunID *string    `json:"previous_run_id"`
}

func (r Run) Validate() error {
	var errs []error
	if strings.TrimSpace(r.RunID) == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if r.StartTime.IsZero() {
		errs = append(errs, errors.New("start_time is required"))
	}
	if strings.TrimSpace(r.ProjectType) == "" {
		errs = append(errs, errors.New("project_type is required"))
	}
	if r.ProjectID < 0 {
		errs = append(errs, errors.New("project_id must be >= 0"))
	}
	switch r.Status {
	case RunStatusRunning, RunStatusAnalysing, RunStatusCompleted, RunStatusFailed:
		// ok
	default:
		errs = append(errs, fmt.Errorf("invalid status %q", r.Status))
	}
	if r.EndTime != nil && r.EndTime.Before(r.StartTime) {
		errs = append(errs, errors.New("end_time must not precede start_time"))
	}
	if r.PreviousRunID != nil && strings.TrimSpace(*r.PreviousRunID) == "" {
		errs = append(errs, errors.New("previous_run_id must not be empty when provided"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Finished reports whether the run reached a terminal status.
func (r Run) Finished() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// Duration is the wall time of a finished run, or zero.
func (r Run) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

type FailureClass string

const (
	FailureClassConfig    FailureClass = "config"
	FailureClassWorkspace FailureClass = "workspace"
	FailureClassExecution FailureClass = "execution"
	FailureClassSystem    FailureClass = "system"
)

// Failure is the recorded reason a run ended in failure. Rerunnable is
// false when running the same job again cannot succeed without a change
// to its inputs or configuration.
type Failure struct {
	FailureClass FailureClass `json:"failure_class"`
	Stage        *string      `json:"stage,omitempty"`
	ErrorCode    string       `json:"error_code"`
	ErrorMessage string       `json:"error_message"`
	Rerunnable   bool         `json:"rerunnable"`
}

func (f Failure) Validate() error {
	var errs []error
	switch f.FailureClass {
	case FailureClassConfig, FailureClassWorkspace, FailureClassExecution, FailureClassSystem:
		// ok
	default:
		errs = append(errs, fmt.Errorf("invalid failure_class %q", f.FailureClass))
	}
	if f.Stage != nil && strings.TrimSpace(*f.Stage) == "" {
		errs = append(errs, errors.New("stage must not be empty when provided"))
	}
	if strings.TrimSpace(f.ErrorCode) == "" {
		errs = append(errs, errors.New("error_code is required"))
	}
	if strings.TrimSpace(f.ErrorMessage) == "" {
		errs = append(errs, errors.New("error_message is required"))
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
