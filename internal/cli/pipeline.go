package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"siestarunner/internal/analysis"
	"siestarunner/internal/calculator"
	"siestarunner/internal/config"
	"siestarunner/internal/core"
	"siestarunner/internal/monitor"
	"siestarunner/internal/notify"
	"siestarunner/internal/report"
	"siestarunner/internal/siesta"
	"siestarunner/internal/state"
	"siestarunner/internal/structure"
)

// stderrTail bounds how much solver stderr ends up in the log.
const stderrTail = 2048

// preparedJob is the solver input written to the job directory.
type preparedJob struct {
	ProjectType config.ProjectType
	InputFile   string
	Pseudos     []string
}

// Job returns the solver invocation for the prepared input. Its inputs are
// the FDF document and the staged pseudopotentials; its outputs are every
// label-derived file plus the grids SIESTA names on its own.
func (p *preparedJob) Job(s *config.Settings) *core.Job {
	inputs := append([]string{p.InputFile}, p.Pseudos...)
	return &core.Job{
		Name:    s.Label,
		Run:     s.Command(),
		PassEnv: s.PassEnv,
		Inputs:  inputs,
		Outputs: []string{
			s.Label + ".*",
			config.RhoGridNC,
			config.PotentialGridNC,
		},
	}
}

// loadParameters reads parameters.json. A job directory without one uses
// the defaults.
func loadParameters(s *config.Settings) (calculator.Parameters, error) {
	params, err := calculator.LoadParameters(s.Path(config.ParametersJSON))
	if errors.Is(err, fs.ErrNotExist) {
		return calculator.DefaultParameters(), nil
	}
	if err != nil {
		return calculator.Parameters{}, configFailure("InvalidParameters", err)
	}
	return params, nil
}

// resolveProjectType picks the project type: an explicit flag wins over
// parameters.json, which wins over the configured default.
func resolveProjectType(s *config.Settings, params calculator.Parameters, fromFlag bool) (config.ProjectType, error) {
	if fromFlag || strings.TrimSpace(params.ProjectType) == "" {
		return s.ProjectType, nil
	}
	pt, err := config.ParseProjectType(params.ProjectType)
	if err != nil {
		return s.ProjectType, configFailure("InvalidProjectType", fmt.Errorf("%s: %w", config.ParametersJSON, err))
	}
	return pt, nil
}

// prepareInput writes <label>.fdf and stages the pseudopotentials.
func prepareInput(s *config.Settings, pt config.ProjectType, params calculator.Parameters, logger *zap.SugaredLogger) (*preparedJob, error) {
	atoms, err := structure.LoadAtoms(s.Path(config.AtomsJSON))
	if err != nil {
		return nil, configFailure("InvalidStructure", err)
	}
	if !atoms.Periodic() {
		atoms.Center(s.Vacuum)
		logger.Infow("centred molecule in vacuum box", "vacuum", s.Vacuum)
	}

	calc, err := calculator.LoadCalcSettings(s.Path(config.CalculatorJSON))
	if err != nil {
		return nil, configFailure("InvalidCalculator", err)
	}
	pseudoPath := calc.PseudoPath
	if s.PseudoPath != "" {
		pseudoPath = s.PseudoPath
	}

	in, err := calculator.BuildInput(atoms, calc, params, calculator.BuildOptions{
		Label:       s.Label,
		ProjectType: pt,
	})
	if err != nil {
		return nil, configFailure("InvalidInput", err)
	}
	path, err := calculator.WriteInput(s.WorkDir, s.Label, in)
	if err != nil {
		return nil, workspaceFailure("WriteInput", err)
	}

	kinds, _ := atoms.Species()
	symbols := make([]string, len(kinds))
	for i, z := range kinds {
		symbols[i] = structure.Symbol(z)
	}
	pseudos, err := calculator.LinkPseudopotentials(s.WorkDir, pseudoPath, symbols)
	if err != nil {
		return nil, workspaceFailure("MissingPseudopotential", err)
	}

	logger.Infow("prepared solver input",
		"input", filepath.Base(path),
		"project_type", string(pt),
		"atoms", atoms.Len(),
		"pseudopotentials", pseudos,
	)
	return &preparedJob{ProjectType: pt, InputFile: filepath.Base(path), Pseudos: pseudos}, nil
}

// newRunner returns the job runner, with a file cache when caching is on.
func newRunner(s *config.Settings, logger *zap.SugaredLogger) *core.Runner {
	var cache core.Cache
	if s.Cache {
		cache = core.NewFileCache(s.ResolvedCacheDir())
	}
	return core.NewRunner(s.WorkDir, cache, logger)
}

// executeJob runs the solver and, while it runs, watches the main output
// file so the backend sees progress. The monitor stops when the solver
// exits. A non-zero exit status is an execution failure.
func executeJob(ctx context.Context, s *config.Settings, runner *core.Runner, job *core.Job, sender notify.Sender, watch bool, logger *zap.SugaredLogger) (*core.RunResult, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	monitorCtx, stopMonitor := context.WithCancel(groupCtx)
	defer stopMonitor()

	if watch {
		mon := monitor.New(sender, s.RequestInterval, logger)
		group.Go(func() error {
			return mon.Watch(monitorCtx, s.LabelPath("out"))
		})
	}

	var result *core.RunResult
	group.Go(func() error {
		defer stopMonitor()
		var err error
		result, err = runner.Run(groupCtx, job)
		return err
	})

	if err := group.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, &state.SystemFailureError{Code: "Canceled", Message: "solver interrupted", Cause: err}
		}
		return nil, &state.ExecutionFailureError{Stage: "siesta", Code: "ExecutionError", Message: err.Error(), Cause: err}
	}

	if !result.Succeeded() {
		if ctx.Err() != nil {
			return result, &state.SystemFailureError{Code: "Canceled", Message: "solver interrupted", Cause: ctx.Err()}
		}
		logger.Errorw("solver failed", "exit_code", result.ExitCode, "stderr", tail(result.Stderr, stderrTail))
		return result, &state.ExecutionFailureError{
			Stage:    "siesta",
			Code:     "SolverExit",
			Message:  fmt.Sprintf("siesta exited with status %d", result.ExitCode),
			ExitCode: result.ExitCode,
		}
	}
	return result, nil
}

// collectResults reads the solver outputs and writes calc_results_task.json.
func collectResults(s *config.Settings, logger *zap.SugaredLogger) (*siesta.CalcResults, error) {
	res, err := siesta.CollectResults(s.WorkDir, s.Label)
	if err != nil {
		return nil, &state.ExecutionFailureError{Stage: "collect", Code: "UnreadableOutput", Message: err.Error(), Cause: err}
	}
	if len(res.Missing) > 0 {
		logger.Infow("optional solver outputs not found", "files", res.Missing)
	}
	if err := res.Save(s.Path(config.CalcResultsJSON)); err != nil {
		return nil, workspaceFailure("WriteResults", err)
	}
	return res, nil
}

// analyse runs the post-processing tasks of the project type. Individual
// task failures are recorded in the report and do not fail the command.
func analyse(ctx context.Context, s *config.Settings, pt config.ProjectType, logger *zap.SugaredLogger) (*report.Report, error) {
	a, err := analysis.New(analysis.Options{
		Dir:         s.WorkDir,
		Label:       s.Label,
		ProjectType: pt,
		Parallelism: s.Parallelism,
		Logger:      logger,
	})
	if err != nil {
		return nil, configFailure("InvalidProjectType", err)
	}
	rep, err := a.Perform(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return rep, &state.SystemFailureError{Code: "Canceled", Message: "analysis interrupted", Cause: err}
		}
		return rep, &state.ExecutionFailureError{Stage: "analysis", Code: "AnalysisError", Message: err.Error(), Cause: err}
	}
	return rep, nil
}

func summarize(rep *report.Report) string {
	counts := rep.Counts()
	summary := fmt.Sprintf("%d completed, %d skipped, %d failed",
		counts[report.EventTaskCompleted], counts[report.EventTaskSkipped], counts[report.EventTaskFailed])
	if failed := rep.Failed(); len(failed) > 0 {
		summary += " (" + strings.Join(failed, ", ") + ")"
	}
	return summary
}

func tail(b []byte, n int) string {
	b = bytes.TrimSpace(b)
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return string(b)
}
