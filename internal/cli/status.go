package cli

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"

	fcolor "github.com/fatih/color"
	"github.com/spf13/cobra"

	"siestarunner/internal/state"
)

const flagLimit = "limit"

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List recorded runs of the job directory, newest first",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt(flagLimit)
			if limit < 0 {
				return invalidInvocationf("--%s must not be negative", flagLimit)
			}

			sess, err := newSession(cmd, true)
			if err != nil {
				return err
			}
			defer sess.close()

			store, err := state.NewStore(sess.settings.Path(sess.settings.StateDir))
			if err != nil {
				return workspaceFailure("StateDir", err)
			}
			runs, err := store.ListRuns()
			if err != nil {
				return workspaceFailure("StateRead", err)
			}
			return writeStatus(sess.out, store, runs, limit)
		},
	}
	cmd.Flags().Int(flagLimit, 10, "number of runs to show; 0 shows all")
	return cmd
}

var statusColors = map[state.RunStatus]*fcolor.Color{
	state.RunStatusRunning:   fcolor.New(fcolor.FgCyan),
	state.RunStatusAnalysing: fcolor.New(fcolor.FgBlue),
	state.RunStatusCompleted: fcolor.New(fcolor.FgGreen),
	state.RunStatusFailed:    fcolor.New(fcolor.FgRed, fcolor.Bold),
}

// writeStatus prints one line per run and, for failed runs, the recorded
// failure underneath.
func writeStatus(w io.Writer, store *state.Store, runs []state.Run, limit int) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}

	runs = slices.Clone(runs)
	slices.Reverse(runs)
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}

	for _, run := range runs {
		status := string(run.Status)
		if c, ok := statusColors[run.Status]; ok {
			status = c.Sprintf("%-9s", run.Status)
		}

		exit, elapsed := "-", "-"
		if run.ExitCode != nil {
			exit = strconv.Itoa(*run.ExitCode)
		}
		if run.Finished() {
			elapsed = run.Duration().Round(time.Second).String()
		}
		cached := ""
		if run.FromCache {
			cached = " (cached)"
		}

		if _, err := fmt.Fprintf(w, "%s  %s  %-21s  %s  %8s  exit=%s%s\n",
			run.RunID, status, run.ProjectType,
			run.StartTime.Local().Format(time.DateTime), elapsed, exit, cached,
		); err != nil {
			return err
		}

		if run.Status != state.RunStatusFailed {
			continue
		}
		failure, err := store.LoadFailure(run.RunID)
		if err != nil {
			continue
		}
		stage := ""
		if failure.Stage != nil {
			stage = " stage=" + *failure.Stage
		}
		if _, err := fmt.Fprintf(w, "    %s %s%s: %s\n",
			failure.FailureClass, failure.ErrorCode, stage, failure.ErrorMessage,
		); err != nil {
			return err
		}
	}
	return nil
}
