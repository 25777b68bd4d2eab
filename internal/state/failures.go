package state

import (
	"errors"
	"fmt"
)

// ConfigFailureError reports invalid settings or job inputs. Not
// rerunnable: the inputs must change first.
type ConfigFailureError struct {
	Code    string
	Message string
	Cause   error
}

func (e *ConfigFailureError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("config failure (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("config failure: %s", e.Message)
}

func (e *ConfigFailureError) Unwrap() error { return e.Cause }

// WorkspaceFailureError reports a job directory the runner cannot use:
// missing pseudopotentials, unwritable files, a corrupt cache.
type WorkspaceFailureError struct {
	Code    string
	Message string
	Cause   error
}

func (e *WorkspaceFailureError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("workspace failure (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("workspace failure: %s", e.Message)
}

func (e *WorkspaceFailureError) Unwrap() error { return e.Cause }

// ExecutionFailureError reports a stage of the run that failed, most often
// SIESTA exiting non-zero.
type ExecutionFailureError struct {
	Stage    string
	Code     string
	Message  string
	ExitCode int
	Cause    error
}

func (e *ExecutionFailureError) Error() string {
	if e == nil {
		return ""
	}
	if e.Stage != "" && e.Code != "" {
		return fmt.Sprintf("execution failure stage=%s (%s): %s", e.Stage, e.Code, e.Message)
	}
	if e.Stage != "" {
		return fmt.Sprintf("execution failure stage=%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("execution failure: %s", e.Message)
}

func (e *ExecutionFailureError) Unwrap() error { return e.Cause }

// SystemFailureError reports signals, cancellation and other failures
// outside the job's control.
type SystemFailureError struct {
	Code    string
	Message string
	Cause   error
}

func (e *SystemFailureError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("system failure (%s): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("system failure: %s", e.Message)
}

func (e *SystemFailureError) Unwrap() error { return e.Cause }

// Classify maps err onto the failure taxonomy. Errors of unknown type are
// system failures.
func Classify(err error) (Failure, error) {
	if err == nil {
		return Failure{}, errors.New("nil error")
	}

	var cf *ConfigFailureError
	if errors.As(err, &cf) && cf != nil {
		return Failure{
			FailureClass: FailureClassConfig,
			ErrorCode:    nonEmptyOr(cf.Code, "ConfigFailure"),
			ErrorMessage: nonEmptyOr(cf.Message, cf.Error()),
			Rerunnable:   false,
		}, nil
	}

	var wf *WorkspaceFailureError
	if errors.As(err, &wf) && wf != nil {
		return Failure{
			FailureClass: FailureClassWorkspace,
			ErrorCode:    nonEmptyOr(wf.Code, "WorkspaceFailure"),
			ErrorMessage: nonEmptyOr(wf.Message, wf.Error()),
			Rerunnable:   false,
		}, nil
	}

	var ef *ExecutionFailureError
	if errors.As(err, &ef) && ef != nil {
		var stage *string
		if ef.Stage != "" {
			s := ef.Stage
			stage = &s
		}
		return Failure{
			FailureClass: FailureClassExecution,
			Stage:        stage,
			ErrorCode:    nonEmptyOr(ef.Code, "ExecutionFailure"),
			ErrorMessage: nonEmptyOr(ef.Message, ef.Error()),
			Rerunnable:   true,
		}, nil
	}

	var sf *SystemFailureError
	if errors.As(err, &sf) && sf != nil {
		return Failure{
			FailureClass: FailureClassSystem,
			ErrorCode:    nonEmptyOr(sf.Code, "SystemFailure"),
			ErrorMessage: nonEmptyOr(sf.Message, sf.Error()),
			Rerunnable:   true,
		}, nil
	}

	return Failure{
		FailureClass: FailureClassSystem,
		ErrorCode:    "UnknownError",
		ErrorMessage: err.Error(),
		Rerunnable:   true,
	}, nil
}

func nonEmptyOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
