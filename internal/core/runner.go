package core

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Runner orchestrates a job execution with optional result caching.
//
//  1. Resolve inputs and compute the job hash
//  2. If a cache is configured and holds the hash: replay
//  3. Otherwise: execute, and on success harvest artifacts and cache them
//
// Failed executions are returned to the caller but never cached, so a
// re-submitted job always runs the solver again.
type Runner struct {
	// WorkingDir is the job directory.
	WorkingDir string

	// Cache stores and retrieves execution results. Nil disables caching.
	Cache Cache

	Executor  *Executor
	Resolver  *InputResolver
	Hasher    *JobHasher
	Harvester *Harvester
	Replayer  *Replayer

	Logger *zap.SugaredLogger
}

// NewRunner creates a Runner with the given job directory and cache.
func NewRunner(workingDir string, cache Cache, logger *zap.SugaredLogger) *Runner {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Runner{
		WorkingDir: workingDir,
		Cache:      cache,
		Executor:   NewExecutor(workingDir),
		Resolver:   NewInputResolver(workingDir),
		Hasher:     NewJobHasher(),
		Harvester:  NewHarvester(workingDir),
		Replayer:   NewReplayer(workingDir),
		Logger:     logger,
	}
}

// RunResult contains the result of running a job.
type RunResult struct {
	Hash     JobHash
	Stdout   []byte
	Stderr   []byte
	ExitCode int

	// FromCache indicates the solver was not run and outputs were restored.
	FromCache bool

	// Artifacts lists the harvested or restored artifact paths.
	Artifacts []string
}

// Succeeded reports whether the job exited with status 0.
func (r *RunResult) Succeeded() bool {
	return r != nil && r.ExitCode == 0
}

// Hash resolves the job inputs and returns its identity without running it.
func (r *Runner) Hash(job *Job) (JobHash, error) {
	if err := validateJob(job); err != nil {
		return "", err
	}

	inputSet, err := r.Resolver.Resolve(job.Inputs)
	if err != nil {
		return "", fmt.Errorf("resolving inputs: %w", err)
	}

	return r.Hasher.ComputeHash(HashInput{
		Inputs:  inputSet,
		Command: job.Run,
		Env:     job.Env,
		Outputs: job.Outputs,
	}), nil
}

// Run executes a job or replays it from cache.
func (r *Runner) Run(ctx context.Context, job *Job) (*RunResult, error) {
	hash, err := r.Hash(job)
	if err != nil {
		return nil, err
	}

	if r.Cache != nil {
		exists, err := r.Cache.Has(hash)
		if err != nil {
			return nil, fmt.Errorf("checking cache: %w", err)
		}
		if exists {
			r.Logger.Infow("cache hit, restoring outputs", "job", job.Name, "hash", hash.Short())
			return r.replayFromCache(hash)
		}
	}

	return r.executeAndCache(ctx, job, hash)
}

func validateJob(job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	if job.Name == "" {
		return errors.New("job name is required")
	}
	if job.Run == "" {
		return errors.New("job run command is required")
	}
	return nil
}

func (r *Runner) replayFromCache(hash JobHash) (*RunResult, error) {
	entry, err := r.Cache.Get(hash)
	if err != nil {
		return nil, fmt.Errorf("retrieving cache entry: %w", err)
	}
	if entry == nil {
		return nil, fmt.Errorf("cache entry disappeared")
	}

	replayResult, err := r.Replayer.Replay(entry)
	if err != nil {
		return nil, fmt.Errorf("replaying cached result: %w", err)
	}

	paths := make([]string, len(entry.Artifacts))
	for i, a := range entry.Artifacts {
		paths[i] = a.Path
	}

	return &RunResult{
		Hash:      hash,
		Stdout:    replayResult.Stdout,
		Stderr:    replayResult.Stderr,
		ExitCode:  replayResult.ExitCode,
		FromCache: true,
		Artifacts: paths,
	}, nil
}

func (r *Runner) executeAndCache(ctx context.Context, job *Job, hash JobHash) (*RunResult, error) {
	r.Logger.Infow("starting job", "job", job.Name, "hash", hash.Short(), "command", job.Run)

	execResult, err := r.Executor.Execute(ctx, job, hash)
	if err != nil {
		return nil, fmt.Errorf("executing job: %w", err)
	}

	result := &RunResult{
		Hash:     hash,
		Stdout:   execResult.Stdout,
		Stderr:   execResult.Stderr,
		ExitCode: execResult.ExitCode,
	}
	if execResult.ExitCode != 0 {
		r.Logger.Warnw("job exited with non-zero status", "job", job.Name, "exit_code", execResult.ExitCode)
		return result, nil
	}

	artifactSet, err := r.Harvester.Harvest(job.Outputs)
	if err != nil {
		return nil, fmt.Errorf("harvesting artifacts: %w", err)
	}

	result.Artifacts = make([]string, len(artifactSet.Artifacts))
	for i, a := range artifactSet.Artifacts {
		result.Artifacts[i] = a.Path
	}

	if r.Cache != nil {
		cached := make([]CachedArtifact, len(artifactSet.Artifacts))
		for i, a := range artifactSet.Artifacts {
			cached[i] = CachedArtifact{Path: a.Path, Source: a.Source}
		}
		entry := &CacheEntry{
			Hash:      hash,
			Stdout:    execResult.Stdout,
			Stderr:    execResult.Stderr,
			ExitCode:  execResult.ExitCode,
			Artifacts: cached,
		}
		if err := r.Cache.Put(entry); err != nil {
			return nil, fmt.Errorf("caching result: %w", err)
		}
	}

	r.Logger.Infow("job finished", "job", job.Name, "artifacts", len(result.Artifacts))
	return result, nil
}
