package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// InputResolver resolves declared input patterns to a deterministic InputSet.
//
// Paths are recorded relative to BaseDir so that two job directories with
// identical inputs produce the same hash.
type InputResolver struct {
	// BaseDir is the job directory. All patterns are resolved against it.
	BaseDir string
}

// NewInputResolver creates a new InputResolver with the given base directory.
func NewInputResolver(baseDir string) *InputResolver {
	return &InputResolver{BaseDir: baseDir}
}

// Resolve expands all input patterns and returns a sorted InputSet.
//
// A literal path that does not exist is an error; a glob that matches
// nothing is not.
func (r *InputResolver) Resolve(patterns []string) (*InputSet, error) {
	if len(patterns) == 0 {
		return &InputSet{Inputs: []Input{}}, nil
	}

	pathSet := make(map[string]struct{})
	for _, pattern := range patterns {
		expanded, err := expandPattern(r.BaseDir, pattern)
		if err != nil {
			return nil, fmt.Errorf("expanding pattern %q: %w", pattern, err)
		}
		if len(expanded) == 0 && !containsGlobChar(pattern) {
			return nil, fmt.Errorf("input %q does not exist", pattern)
		}
		for _, p := range expanded {
			pathSet[p] = struct{}{}
		}
	}

	paths := make([]string, 0, len(pathSet))
	for p := range pathSet {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	inputs := make([]Input, 0, len(paths))
	for _, rel := range paths {
		content, err := os.ReadFile(filepath.Join(r.BaseDir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, fmt.Errorf("reading input %q: %w", rel, err)
		}
		inputs = append(inputs, Input{Path: rel, Content: content})
	}

	return &InputSet{Inputs: inputs}, nil
}

// expandPattern expands one glob pattern to regular files and returns their
// paths relative to baseDir, slash-separated and sorted. Symlinks are
// followed, so linked pseudopotentials count as inputs.
func expandPattern(baseDir, pattern string) ([]string, error) {
	fullPattern := pattern
	if !filepath.IsAbs(pattern) {
		fullPattern = filepath.Join(baseDir, pattern)
	}

	matches, err := filepath.Glob(fullPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern: %w", err)
	}

	out := make([]string, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", match, err)
		}
		if info.IsDir() {
			continue
		}
		rel, err := filepath.Rel(baseDir, match)
		if err != nil {
			rel = match
		}
		out = append(out, filepath.ToSlash(rel))
	}
	sort.Strings(out)

	return out, nil
}

// containsGlobChar returns true if the pattern contains glob special characters.
func containsGlobChar(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[', ']':
			return true
		}
	}
	return false
}
