package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Harvester collects artifacts from declared output patterns after a job
// has finished.
//
// Only files matched by declared outputs are collected; the job directory is
// never scanned for "everything that changed". A solver does not always write
// every optional file (no .bands without band lines, no .PDOS.xml without a
// PDOS block), so a pattern that matches nothing is skipped. Contents are
// not read here: solver outputs such as density grids and .DM files can be
// larger than memory.
type Harvester struct {
	// BaseDir is the job directory the outputs are relative to.
	BaseDir string
}

// NewHarvester creates a new Harvester with the given base directory.
func NewHarvester(baseDir string) *Harvester {
	return &Harvester{BaseDir: baseDir}
}

// Harvest collects artifacts from the declared output patterns.
//
//  1. Each pattern is globbed relative to BaseDir
//  2. Directories are walked recursively
//  3. Paths are made relative, slash-separated, sorted and de-duplicated
func (h *Harvester) Harvest(declaredOutputs []string) (*ArtifactSet, error) {
	if len(declaredOutputs) == 0 {
		return &ArtifactSet{Artifacts: []Artifact{}}, nil
	}

	var allPaths []string
	for _, output := range declaredOutputs {
		fullPattern := output
		if !filepath.IsAbs(output) {
			fullPattern = filepath.Join(h.BaseDir, output)
		}
		matches, err := filepath.Glob(fullPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid output pattern %q: %w", output, err)
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("stat output %q: %w", match, err)
			}
			if !info.IsDir() {
				allPaths = append(allPaths, match)
				continue
			}
			files, err := collectFilesFromDir(match)
			if err != nil {
				return nil, fmt.Errorf("collecting files from %q: %w", output, err)
			}
			allPaths = append(allPaths, files...)
		}
	}

	sort.Strings(allPaths)
	allPaths = deduplicateSorted(allPaths)

	artifacts := make([]Artifact, 0, len(allPaths))
	for _, path := range allPaths {
		rel, err := filepath.Rel(h.BaseDir, path)
		if err != nil {
			rel = path
		}
		artifacts = append(artifacts, Artifact{
			Path:   filepath.ToSlash(rel),
			Source: path,
		})
	}

	return &ArtifactSet{Artifacts: artifacts}, nil
}

// collectFilesFromDir recursively collects all files in a directory.
func collectFilesFromDir(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// deduplicateSorted removes duplicates from a sorted slice.
func deduplicateSorted(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}

	result := make([]string, 0, len(sorted))
	result = append(result, sorted[0])
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1] {
			result = append(result, sorted[i])
		}
	}

	return result
}
