// Package analysis turns the outputs of a finished SIESTA run into the JSON
// documents the web frontend renders.
//
// An Analysis runs a fixed task list per project type. General info always
// runs first because the grid summaries embed it; the remaining tasks are
// independent and run with bounded parallelism. A failing task is logged and
// recorded in the report and never stops the others.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"siestarunner/internal/config"
	"siestarunner/internal/report"
	"siestarunner/internal/siesta"
)

const (
	minParallelism = 2
	maxParallelism = 8
)

// Task names as they appear in the analysis report.
const (
	TaskGeneralInfo   = "general_info"
	TaskBandStructure = "band_structure"
	TaskDOS           = "dos"
	TaskPDOS          = "pdos"
	TaskRhoGrid       = "rho_grid"
	TaskPotentialGrid = "potential_grid"
	TaskTrajectory    = "trajectory"
)

// Task is one post-processing step.
type Task struct {
	Name string

	// Inputs are files, relative to the job directory, the task reads. A
	// missing input skips the task instead of failing it.
	Inputs []string

	// Output is the file the task writes, relative to the job directory.
	Output string

	// NeedsGeneralInfo marks tasks that embed general_info.json.
	NeedsGeneralInfo bool

	Run func(ctx context.Context, env *Env) error
}

// Env is what a task sees of the job.
type Env struct {
	Dir     string
	Label   string
	Results *siesta.CalcResults
	Logger  *zap.SugaredLogger
}

// Path resolves name against the job directory.
func (e *Env) Path(name string) string {
	return filepath.Join(e.Dir, name)
}

// LabelPath resolves a label-derived output such as "siesta.DOS".
func (e *Env) LabelPath(ext string) string {
	return e.Path(config.LabelFile(e.Label, ext))
}

// Options configures New.
type Options struct {
	Dir         string
	Label       string
	ProjectType config.ProjectType
	// Parallelism bounds concurrent tasks; <= 0 picks a CPU-based default.
	Parallelism int
	Logger      *zap.SugaredLogger
}

// Analysis post-processes one job directory.
type Analysis struct {
	dir         string
	label       string
	projectType config.ProjectType
	parallelism int64
	logger      *zap.SugaredLogger
	tasks       []Task
}

// New returns an Analysis for opts.ProjectType, or an error when the type
// is unknown.
func New(opts Options) (*Analysis, error) {
	if !slices.Contains(config.ProjectTypes(), opts.ProjectType) {
		return nil, fmt.Errorf("unknown project type: %q", opts.ProjectType)
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Label == "" {
		opts.Label = "siesta"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	parallelism := int64(opts.Parallelism)
	if parallelism <= 0 {
		parallelism = min(max(int64(runtime.NumCPU()), minParallelism), maxParallelism)
	}

	a := &Analysis{
		dir:         opts.Dir,
		label:       opts.Label,
		projectType: opts.ProjectType,
		parallelism: parallelism,
		logger:      opts.Logger.With("project_type", string(opts.ProjectType)),
	}
	a.tasks = TasksFor(opts.ProjectType, opts.Label)
	a.logger.Infow("initialized analysis", "tasks", len(a.tasks))
	return a, nil
}

// TasksFor returns the task list of a project type, general info first.
func TasksFor(pt config.ProjectType, label string) []Task {
	tasks := []Task{generalInfoTask()}
	switch pt {
	case config.ProjectTypeSinglePoint:
		tasks = append(tasks,
			bandStructureTask(label),
			dosTask(label),
			pdosTask(label),
			gridTask(TaskRhoGrid, config.RhoGridNC, config.RhoGridJSON, true),
			gridTask(TaskPotentialGrid, config.PotentialGridNC, config.PotentialGridJSON, false),
		)
	case config.ProjectTypeMD, config.ProjectTypeGeometryOptimization:
		tasks = append(tasks, trajectoryTask())
	}
	return tasks
}

// Perform runs every task and writes analysis_report.json. The returned
// error covers only the shared preparation and cancellation; task failures
// are in the report.
func (a *Analysis) Perform(ctx context.Context) (*report.Report, error) {
	a.logger.Infow("starting analysis", "dir", a.dir)

	env, err := a.prepare()
	if err != nil {
		return nil, err
	}

	rec := report.NewRecorder()
	first, rest := a.tasks[0], a.tasks[1:]
	firstOK := a.runTask(ctx, env, first, rec)

	sem := semaphore.NewWeighted(a.parallelism)
	group, groupCtx := errgroup.WithContext(ctx)
	for _, task := range rest {
		if task.NeedsGeneralInfo && !firstOK {
			report.SafeRecord(rec, report.Event{
				Kind:      report.EventTaskSkipped,
				Task:      task.Name,
				Reason:    report.ReasonUpstreamFailed,
				CauseTask: first.Name,
			})
			continue
		}
		task := task
		group.Go(func() error {
			if err := sem.Acquire(groupCtx, 1); err != nil {
				report.SafeRecord(rec, report.Event{
					Kind:   report.EventTaskSkipped,
					Task:   task.Name,
					Reason: report.ReasonCanceled,
				})
				return nil
			}
			defer sem.Release(1)
			a.runTask(groupCtx, env, task, rec)
			return nil
		})
	}
	// Tasks never return errors to the group; failures live in the report.
	_ = group.Wait()

	rep := rec.Report(string(a.projectType))
	a.cleanup(rep)
	return rep, ctx.Err()
}

// prepare loads calc_results_task.json, collecting it from the raw outputs
// when an earlier stage did not write it.
func (a *Analysis) prepare() (*Env, error) {
	a.logger.Info("preparing for analysis")
	path := filepath.Join(a.dir, config.CalcResultsJSON)

	var res *siesta.CalcResults
	if siesta.Exists(path) {
		loaded, err := siesta.LoadResults(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", config.CalcResultsJSON, err)
		}
		res = loaded
	} else {
		collected, err := siesta.CollectResults(a.dir, a.label)
		if err != nil {
			return nil, fmt.Errorf("collect results: %w", err)
		}
		if err := collected.Save(path); err != nil {
			return nil, fmt.Errorf("write %s: %w", config.CalcResultsJSON, err)
		}
		res = collected
	}

	return &Env{Dir: a.dir, Label: a.label, Results: res, Logger: a.logger}, nil
}

func (a *Analysis) cleanup(rep *report.Report) {
	a.logger.Info("cleaning up after analysis")
	counts := rep.Counts()
	if err := rep.Save(filepath.Join(a.dir, config.AnalysisReportJSON)); err != nil {
		a.logger.Errorw("failed to write analysis report", "error", err)
	}
	a.logger.Infow("analysis finished",
		"completed", counts[report.EventTaskCompleted],
		"failed", counts[report.EventTaskFailed],
		"skipped", counts[report.EventTaskSkipped],
	)
}

// runTask executes one task, records its outcome and reports success.
func (a *Analysis) runTask(ctx context.Context, env *Env, task Task, rec report.Sink) bool {
	log := a.logger.With("task", task.Name)

	for _, in := range task.Inputs {
		if _, err := os.Stat(env.Path(in)); err != nil {
			log.Infow("skipping task, input not found", "input", in)
			report.SafeRecord(rec, report.Event{
				Kind:    report.EventTaskSkipped,
				Task:    task.Name,
				Reason:  report.ReasonMissingInput,
				Message: in + " not found",
			})
			return false
		}
	}

	err := safeRun(ctx, env, task)
	switch {
	case err == nil:
		log.Infow("task completed", "output", task.Output)
		report.SafeRecord(rec, report.Event{
			Kind:    report.EventTaskCompleted,
			Task:    task.Name,
			Outputs: []string{task.Output},
		})
		return true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		report.SafeRecord(rec, report.Event{
			Kind:   report.EventTaskSkipped,
			Task:   task.Name,
			Reason: report.ReasonCanceled,
		})
	case errors.Is(err, fs.ErrNotExist):
		log.Infow("skipping task, input not found", "error", err)
		report.SafeRecord(rec, report.Event{
			Kind:    report.EventTaskSkipped,
			Task:    task.Name,
			Reason:  report.ReasonMissingInput,
			Message: err.Error(),
		})
	default:
		log.Errorw("task failed", "error", err)
		report.SafeRecord(rec, report.Event{
			Kind:    report.EventTaskFailed,
			Task:    task.Name,
			Reason:  report.ReasonError,
			Message: err.Error(),
		})
	}
	return false
}

func safeRun(ctx context.Context, env *Env, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", task.Name, r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return task.Run(ctx, env)
}
