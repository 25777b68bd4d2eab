package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"siestarunner/internal/atomicfile"
)

// ReplayResult contains the results of replaying a cached execution.
type ReplayResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Hash     JobHash

	// ArtifactsRestored is the number of artifacts written to the job
	// directory. Artifacts already present with identical content are not
	// rewritten.
	ArtifactsRestored int
}

// Replayer restores cached execution results to the job directory.
type Replayer struct {
	// WorkingDir is the directory where artifacts are restored.
	WorkingDir string
}

// NewReplayer creates a new Replayer with the given working directory.
func NewReplayer(workingDir string) *Replayer {
	return &Replayer{WorkingDir: workingDir}
}

// Replay restores a cached execution result to the job directory.
func (r *Replayer) Replay(entry *CacheEntry) (*ReplayResult, error) {
	if entry == nil {
		return nil, fmt.Errorf("cache entry is nil")
	}

	restored, err := r.RestoreArtifacts(entry)
	if err != nil {
		return nil, err
	}

	return &ReplayResult{
		Stdout:            entry.Stdout,
		Stderr:            entry.Stderr,
		ExitCode:          entry.ExitCode,
		Hash:              entry.Hash,
		ArtifactsRestored: restored,
	}, nil
}

// RestoreArtifacts writes every cached artifact whose on-disk content is
// missing or different, using an atomic replace.
func (r *Replayer) RestoreArtifacts(entry *CacheEntry) (int, error) {
	if r == nil {
		return 0, fmt.Errorf("replayer is nil")
	}
	if entry == nil {
		return 0, fmt.Errorf("cache entry is nil")
	}

	restored := 0
	for _, artifact := range entry.Artifacts {
		if artifact.Path == "" {
			return restored, fmt.Errorf("job %s: artifact path is empty", entry.Hash.Short())
		}
		if artifact.Content == nil && artifact.Source == "" {
			return restored, fmt.Errorf("job %s: artifact %q missing content in cache entry", entry.Hash.Short(), artifact.Path)
		}

		targetPath, err := r.targetPathForArtifact(artifact.Path)
		if err != nil {
			return restored, fmt.Errorf("job %s: resolving artifact %q target path: %w", entry.Hash.Short(), artifact.Path, err)
		}

		haveHash, ok, err := fileSHA256HexIfExists(targetPath)
		if err != nil {
			return restored, fmt.Errorf("job %s: hashing existing artifact %q: %w", entry.Hash.Short(), artifact.Path, err)
		}
		wantHash, err := artifactSHA256Hex(artifact)
		if err != nil {
			return restored, fmt.Errorf("job %s: hashing cached artifact %q: %w", entry.Hash.Short(), artifact.Path, err)
		}
		if ok && haveHash == wantHash {
			continue
		}

		if artifact.Content != nil {
			err = atomicfile.WriteFile(targetPath, artifact.Content, 0o644)
		} else {
			err = atomicfile.CopyFile(targetPath, artifact.Source, 0o644)
		}
		if err != nil {
			return restored, fmt.Errorf("job %s: restoring artifact %q: %w", entry.Hash.Short(), artifact.Path, err)
		}
		restored++
	}

	return restored, nil
}

func (r *Replayer) targetPathForArtifact(artifactPath string) (string, error) {
	targetPath := filepath.FromSlash(artifactPath)
	if !filepath.IsAbs(targetPath) {
		targetPath = filepath.Join(r.WorkingDir, targetPath)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return "", fmt.Errorf("creating parent directory: %w", err)
	}

	return targetPath, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func artifactSHA256Hex(a CachedArtifact) (string, error) {
	if a.Content != nil {
		return sha256Hex(a.Content), nil
	}
	hash, ok, err := fileSHA256HexIfExists(a.Source)
	if err == nil && !ok {
		err = fmt.Errorf("cached file %q is missing", a.Source)
	}
	return hash, err
}

func fileSHA256HexIfExists(path string) (hash string, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", true, err
	}
	return hex.EncodeToString(h.Sum(nil)), true, nil
}
