package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"siestarunner/internal/config"
	"siestarunner/internal/siesta"
)

const flagType = "type"

func newAnalyseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "analyse",
		Aliases: []string{"analyze"},
		Short:   "Collect results and post-process an existing SIESTA run",
		Long: "analyse reads the outputs of a finished SIESTA run in the job directory, " +
			"writes calc_results_task.json and the post-processing documents of the " +
			"project type, and records every task in analysis_report.json.",
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var pt config.ProjectType
			if raw, _ := cmd.Flags().GetString(flagType); raw != "" {
				parsed, err := config.ParseProjectType(raw)
				if err != nil {
					return invalidInvocationf("--%s: %v", flagType, err)
				}
				pt = parsed
			}

			sess, err := newSession(cmd, false)
			if err != nil {
				return err
			}
			defer sess.close()
			s := sess.settings

			if pt == "" {
				params, err := loadParameters(s)
				if err != nil {
					return err
				}
				if pt, err = resolveProjectType(s, params, false); err != nil {
					return err
				}
			}

			// Results are refreshed from the solver output when it is there;
			// otherwise an earlier calc_results_task.json is reused.
			if siesta.Exists(s.Path(siesta.OutputFile(s.Label))) {
				if _, err := collectResults(s, sess.logger); err != nil {
					return err
				}
			}

			rep, err := analyse(cmd.Context(), s, pt, sess.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(sess.out, "%s: %s\n", pt, summarize(rep))
			return nil
		},
	}

	cmd.Flags().String(flagType, "", "project type to analyse (default: from parameters.json or settings)")
	addAnalysisFlags(cmd.Flags())
	return cmd
}
