// Package main is the entry point of the SIESTA job runner.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"siestarunner/internal/buildmeta"
	"siestarunner/internal/cli"
)

func main() {
	exitCode := runSafely(os.Args[1:], runWithArgs, os.Stderr)

	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

//nolint:nonamedreturns // Named return simplifies panic recovery logic.
func runSafely(args []string, runner func([]string) int, errWriter io.Writer) (exitCode int) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(errWriter, "panic recovered: %v\n%s", r, debug.Stack())
			exitCode = cli.ExitInternalError
		}
	}()

	exitCode = runner(args)

	return exitCode
}

// runWithArgs cancels the run on SIGINT and SIGTERM, which a batch scheduler
// sends before killing the job, so the solver's process group is stopped
// and the failure is recorded.
func runWithArgs(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd(buildmeta.Version, buildmeta.Commit, buildmeta.Date)
	rootCmd.SetArgs(args)
	rootCmd.SetContext(ctx)

	err := cli.Execute(rootCmd)
	if err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	}

	return cli.ExitCode(err)
}
