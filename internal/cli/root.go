// Package cli wires the runner's subcommands: run, prepare, analyse, status
// and version.
package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"siestarunner/internal/config"
	"siestarunner/internal/logging"
)

// Flag names shared by several subcommands. Flags whose name maps onto a
// settings key are bound by config.Load.
const (
	flagConfig          = "config"
	flagWorkDir         = "workdir"
	flagLabel           = "label"
	flagLogFile         = "log-file"
	flagStateDir        = "state-dir"
	flagDebug           = "debug"
	flagProjectType     = "project-type"
	flagSiestaCommand   = "siesta-command"
	flagPseudoPath      = "pseudo-path"
	flagVacuum          = "vacuum"
	flagParallelism     = "parallelism"
	flagProjectID       = "project-id"
	flagToken           = "token"
	flagBackendURL      = "backend-url"
	flagRequestInterval = "request-interval"
	flagNotify          = "notify"
	flagCache           = "cache"
	flagCacheDir        = "cache-dir"
)

// NewRootCmd creates the root command with version info and subcommands.
func NewRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "siestarunner",
		Short: "Run SIESTA calculations and post-process their results",
		Long: "siestarunner prepares a SIESTA input from the job directory, runs the " +
			"solver while reporting progress to the backend, and turns the outputs " +
			"into JSON documents for visualisation.",
		Args:          noArgs,
		RunE:          handleRootRunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = fmt.Sprintf("%s (Built on %s from Git SHA %s)", version, date, commit)
	cmd.SetFlagErrorFunc(flagError)

	pf := cmd.PersistentFlags()
	pf.String(flagConfig, "", "config file (default: siestarunner.yaml in the job directory)")
	pf.String(flagWorkDir, "", "job directory")
	pf.String(flagLabel, "", "SIESTA system label, prefix of every output file")
	pf.String(flagLogFile, "", "log file, relative to the job directory")
	pf.String(flagStateDir, "", "directory holding run records, relative to the job directory")
	pf.Bool(flagDebug, false, "verbose development logging")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newPrepareCmd())
	cmd.AddCommand(newAnalyseCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

// Execute runs the provided root command and returns its error unwrapped so
// ExitCode can classify it.
func Execute(cmd *cobra.Command) error {
	return cmd.Execute()
}

func handleRootRunE(cmd *cobra.Command, _ []string) error {
	// The err can safely be ignored, help output cannot fail.
	_ = cmd.Help()
	return nil
}

func addSolverFlags(fs *pflag.FlagSet) {
	fs.String(flagProjectType, "", "project type: single_point, md or geometry_optimization")
	fs.String(flagPseudoPath, "", "directory holding <Symbol>.psf or .psml pseudopotentials")
	fs.Float64(flagVacuum, 0, "vacuum in Angstrom around a molecule placed in a box")
}

func addAnalysisFlags(fs *pflag.FlagSet) {
	fs.Int(flagParallelism, 0, "maximum number of concurrent post-processing tasks")
}

// session is the resolved environment of one subcommand invocation.
type session struct {
	settings *config.Settings
	logger   *zap.SugaredLogger
	out      io.Writer
}

// newSession loads settings from every source and builds the logger. A
// quiet session logs nowhere, for commands that print their own output.
func newSession(cmd *cobra.Command, quiet bool) (*session, error) {
	configFile, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return nil, configFailure("InvalidSettings", err)
	}

	opts := logging.Options{Debug: settings.Debug, Quiet: quiet}
	if !quiet {
		opts.LogFile = settings.Path(settings.LogFile)
	}
	logger, err := logging.New(opts)
	if err != nil {
		return nil, workspaceFailure("LogFile", err)
	}

	return &session{settings: settings, logger: logger, out: cmd.OutOrStdout()}, nil
}

func (s *session) close() {
	_ = s.logger.Sync()
}
