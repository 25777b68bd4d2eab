package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// DefaultPassEnv lists the host variables a solver usually needs to start:
// the binary lookup path, shared libraries, OpenMP/MPI tuning and the batch
// scheduler allocation.
var DefaultPassEnv = []string{
	"PATH",
	"HOME",
	"LD_LIBRARY_PATH",
	"OMP_NUM_THREADS",
	"OMPI_*",
	"SLURM_*",
}

// ExecutionResult contains the results of a job execution.
type ExecutionResult struct {
	// Stdout is the captured standard output.
	Stdout []byte

	// Stderr is the captured standard error.
	Stderr []byte

	// ExitCode is the process exit code.
	// 0 indicates success, non-zero indicates failure.
	ExitCode int

	// Hash is the JobHash that was used for this execution.
	Hash JobHash
}

// Executor runs jobs in a controlled environment.
//
// The environment starts empty. Only variables declared in Job.Env and host
// variables matched by Job.PassEnv are visible to the command.
type Executor struct {
	// WorkingDir is the directory where jobs are executed.
	WorkingDir string

	// Environ returns the host environment. Defaults to os.Environ.
	Environ func() []string
}

// NewExecutor creates a new Executor with the given working directory.
func NewExecutor(workingDir string) *Executor {
	return &Executor{WorkingDir: workingDir, Environ: os.Environ}
}

// Execute runs the given job and waits for it to exit.
//
// On context cancellation the whole process group is killed, so launchers
// like mpirun or srun do not leave orphaned ranks behind.
func (e *Executor) Execute(ctx context.Context, job *Job, hash JobHash) (*ExecutionResult, error) {
	if job == nil {
		return nil, errors.New("job is nil")
	}
	if strings.TrimSpace(job.Run) == "" {
		return nil, errors.New("job.Run is empty")
	}

	cmd := exec.Command("sh", "-c", job.Run)
	cmd.Dir = e.WorkingDir

	environ := e.Environ
	if environ == nil {
		environ = os.Environ
	}
	cmd.Env = buildEnv(job.Env, job.PassEnv, environ())

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
		}
		<-done
		return nil, fmt.Errorf("execution cancelled: %w", ctx.Err())
	case err = <-done:
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to execute command: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &ExecutionResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: exitCode,
		Hash:     hash,
	}, nil
}

// buildEnv constructs the job environment from declared variables and the
// allowlisted subset of the host environment. Declared variables win over
// forwarded ones. The result is sorted.
func buildEnv(env map[string]string, passEnv []string, host []string) []string {
	merged := make(map[string]string, len(env))

	for _, kv := range host {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			continue
		}
		if matchesPassEnv(key, passEnv) {
			merged[key] = value
		}
	}
	for key, value := range env {
		merged[key] = value
	}

	result := make([]string, 0, len(merged))
	for key, value := range merged {
		result = append(result, key+"="+value)
	}
	sort.Strings(result)

	return result
}

func matchesPassEnv(key string, patterns []string) bool {
	for _, p := range patterns {
		if prefix, ok := strings.CutSuffix(p, "*"); ok {
			if strings.HasPrefix(key, prefix) {
				return true
			}
			continue
		}
		if key == p {
			return true
		}
	}
	return false
}
