package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"siestarunner/internal/state"
)

// Process exit codes.
const (
	ExitSuccess            = 0
	ExitCalculationFailure = 1
	ExitInvalidInvocation  = 2
	ExitConfigError        = 3
	ExitInternalError      = 4
)

// InvocationError reports arguments or flags the runner cannot accept.
type InvocationError struct {
	Message string
}

func (e *InvocationError) Error() string {
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{Message: fmt.Sprintf(format, args...)}
}

// ExitCode maps an error returned by Execute to the process exit code.
// Errors outside the failure taxonomy are internal errors.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var inv *InvocationError
	if errors.As(err, &inv) {
		return ExitInvalidInvocation
	}

	var ef *state.ExecutionFailureError
	if errors.As(err, &ef) {
		return ExitCalculationFailure
	}

	var cf *state.ConfigFailureError
	if errors.As(err, &cf) {
		return ExitConfigError
	}
	var wf *state.WorkspaceFailureError
	if errors.As(err, &wf) {
		return ExitConfigError
	}

	return ExitInternalError
}

// noArgs rejects positional arguments with an invocation error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return invalidInvocationf("%s: unexpected argument %q", cmd.CommandPath(), args[0])
	}
	return nil
}

func flagError(_ *cobra.Command, err error) error {
	return &InvocationError{Message: err.Error()}
}

func configFailure(code string, err error) error {
	return &state.ConfigFailureError{Code: code, Message: err.Error(), Cause: err}
}

func workspaceFailure(code string, err error) error {
	return &state.WorkspaceFailureError{Code: code, Message: err.Error(), Cause: err}
}
