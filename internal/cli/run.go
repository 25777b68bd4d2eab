package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"siestarunner/internal/calculator"
	"siestarunner/internal/config"
	"siestarunner/internal/notify"
	"siestarunner/internal/state"
)

// finalNotifyTimeout bounds the last status update, which is sent even
// after the run's context was cancelled.
const finalNotifyTimeout = 30 * time.Second

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Prepare, run and post-process a SIESTA calculation",
		Long: "run writes the SIESTA input from the job directory, executes the solver " +
			"while posting progress to the backend, collects the results and runs " +
			"the post-processing tasks of the project type.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := newSession(cmd, false)
			if err != nil {
				return err
			}
			defer sess.close()
			return runJob(cmd.Context(), sess, cmd.Flags().Changed(flagProjectType))
		},
	}

	fs := cmd.Flags()
	addSolverFlags(fs)
	addAnalysisFlags(fs)
	fs.String(flagSiestaCommand, "", "solver command; PREFIX is replaced by the label")
	fs.Int(flagProjectID, 0, "backend project id")
	fs.String(flagToken, "", "backend API token; status updates are off without one")
	fs.String(flagBackendURL, "", "backend base URL")
	fs.Duration(flagRequestInterval, 0, "how often the solver output is checked for progress")
	fs.Bool(flagNotify, true, "send status updates to the backend")
	fs.Bool(flagCache, false, "replay outputs of an identical earlier job instead of running it")
	fs.String(flagCacheDir, "", "cache directory (default: <state-dir>/cache)")

	return cmd
}

// jobRun carries one run through its stages and owns its run record.
type jobRun struct {
	settings *config.Settings
	logger   *zap.SugaredLogger
	notifier *notify.Notifier
	recorder *state.Recorder
	run      state.Run
}

func runJob(ctx context.Context, sess *session, typeFromFlag bool) error {
	s := sess.settings

	store, err := state.NewStore(s.Path(s.StateDir))
	if err != nil {
		return workspaceFailure("StateDir", err)
	}

	params, paramsErr := loadParameters(s)
	pt := s.ProjectType
	if paramsErr == nil {
		pt, paramsErr = resolveProjectType(s, params, typeFromFlag)
	}

	jr := &jobRun{
		settings: s,
		recorder: state.NewRecorder(store),
	}
	jr.run, err = jr.recorder.StartRun(state.Run{
		ProjectID:   s.ProjectID,
		ProjectType: string(pt),
		Label:       s.Label,
	})
	if err != nil {
		return &state.SystemFailureError{Code: "StateWrite", Message: err.Error(), Cause: err}
	}
	jr.logger = sess.logger.With("run_id", jr.run.RunID)

	token := ""
	if s.NotificationsEnabled() {
		token = s.Token
	}
	jr.notifier = notify.New(notify.Options{
		BackendURL: s.BackendURL,
		ProjectID:  s.ProjectID,
		Token:      token,
		Logger:     jr.logger,
	})

	jr.logger.Infow("run started",
		"workdir", s.WorkDir,
		"project_type", string(pt),
		"notifications", jr.notifier.Enabled(),
		"previous_run_id", jr.run.PreviousRunID,
	)

	if paramsErr != nil {
		return jr.finish(ctx, paramsErr)
	}
	runErr := jr.execute(ctx, pt, params)
	if runErr == nil {
		fmt.Fprintf(sess.out, "run %s completed\n", jr.run.RunID)
	}
	return jr.finish(ctx, runErr)
}

func (jr *jobRun) execute(ctx context.Context, pt config.ProjectType, params calculator.Parameters) error {
	s := jr.settings

	prepared, err := prepareInput(s, pt, params, jr.logger)
	if err != nil {
		return err
	}

	runner := newRunner(s, jr.logger)
	job := prepared.Job(s)
	jr.send(ctx, notify.StatusRunning)

	result, err := executeJob(ctx, s, runner, job, jr.notifier, jr.notifier.Enabled(), jr.logger)
	if result != nil {
		if herr := jr.recorder.SetJobHash(jr.run.RunID, string(result.Hash), result.FromCache); herr != nil {
			jr.logger.Warnw("run record not updated", "error", herr)
		}
	}
	if err != nil {
		return err
	}
	jr.logger.Infow("solver finished",
		"hash", result.Hash.Short(),
		"from_cache", result.FromCache,
		"artifacts", len(result.Artifacts),
	)

	if _, err := collectResults(s, jr.logger); err != nil {
		return err
	}

	if err := jr.recorder.SetStatus(jr.run.RunID, state.RunStatusAnalysing); err != nil {
		jr.logger.Warnw("run record not updated", "error", err)
	}
	jr.send(ctx, notify.StatusAnalysing)

	rep, err := analyse(ctx, s, pt, jr.logger)
	if err != nil {
		return err
	}
	jr.logger.Infow("analysis finished", "summary", summarize(rep))
	return nil
}

// finish records the outcome, sends the final status and returns runErr
// unchanged so the caller can map it to an exit code.
func (jr *jobRun) finish(ctx context.Context, runErr error) error {
	status, final := state.RunStatusCompleted, notify.StatusCompleted
	if runErr != nil {
		status, final = state.RunStatusFailed, notify.StatusFailed
		if f, err := jr.recorder.RecordFailure(jr.run.RunID, runErr); err != nil {
			jr.logger.Warnw("failure record not written", "error", err)
		} else {
			jr.logger.Errorw("run failed",
				"failure_class", f.FailureClass,
				"error_code", f.ErrorCode,
				"rerunnable", f.Rerunnable,
				"error", runErr,
			)
		}
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalNotifyTimeout)
	defer cancel()
	jr.send(notifyCtx, final)

	if err := jr.recorder.FinishRun(jr.run.RunID, status, ExitCode(runErr)); err != nil {
		jr.logger.Warnw("run record not finalised", "error", err)
	}
	return runErr
}

// send posts a status; delivery failures never fail the run.
func (jr *jobRun) send(ctx context.Context, status notify.Status) {
	if err := jr.notifier.Send(ctx, status); err != nil {
		jr.logger.Warnw("status update not delivered", "status", string(status), "error", err)
	}
}
