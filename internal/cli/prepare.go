package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPrepareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Write the SIESTA input and stage pseudopotentials without running",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sess, err := newSession(cmd, false)
			if err != nil {
				return err
			}
			defer sess.close()

			s := sess.settings
			params, err := loadParameters(s)
			if err != nil {
				return err
			}
			pt, err := resolveProjectType(s, params, cmd.Flags().Changed(flagProjectType))
			if err != nil {
				return err
			}
			prepared, err := prepareInput(s, pt, params, sess.logger)
			if err != nil {
				return err
			}

			fmt.Fprintf(sess.out, "wrote %s (%s)\n", prepared.InputFile, prepared.ProjectType)
			for _, p := range prepared.Pseudos {
				fmt.Fprintf(sess.out, "staged %s\n", p)
			}
			return nil
		},
	}
	addSolverFlags(cmd.Flags())
	return cmd
}
