package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"siestarunner/internal/atomicfile"
)

// CacheEntry is the stored result of a successful job execution.
type CacheEntry struct {
	// Hash is the JobHash that identifies this cache entry.
	Hash JobHash `json:"hash"`

	Stdout   []byte `json:"stdout"`
	Stderr   []byte `json:"stderr"`
	ExitCode int    `json:"exit_code"`

	// Artifacts contains the harvested output files.
	Artifacts []CachedArtifact `json:"artifacts"`
}

// CachedArtifact is a single artifact stored in the cache. Its bytes are
// either held in Content or streamed from the file at Source.
type CachedArtifact struct {
	Path    string `json:"path"`
	Content []byte `json:"content,omitempty"`
	Source  string `json:"-"`
}

// Cache provides storage and retrieval of job execution results.
type Cache interface {
	// Has checks if a cache entry exists for the given hash.
	Has(hash JobHash) (bool, error)

	// Get retrieves a cache entry by hash.
	// Returns nil if the entry does not exist.
	Get(hash JobHash) (*CacheEntry, error)

	// Put stores a cache entry.
	Put(entry *CacheEntry) error
}

// FileCache implements Cache using the filesystem.
//
// Structure:
//
//	{CacheDir}/
//	  {hash[0:2]}/
//	    {hash}/
//	      metadata.json  (stdout, stderr, exit_code, artifact paths)
//	      artifacts/
//	        {index}.blob
type FileCache struct {
	// CacheDir is the root directory for cache storage.
	CacheDir string
}

// NewFileCache creates a new filesystem-based cache.
func NewFileCache(cacheDir string) *FileCache {
	return &FileCache{CacheDir: cacheDir}
}

// Has checks if a cache entry exists for the given hash.
func (c *FileCache) Has(hash JobHash) (bool, error) {
	metadataPath := filepath.Join(c.entryPath(hash), "metadata.json")

	_, err := os.Stat(metadataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking cache entry: %w", err)
	}

	return true, nil
}

// Get retrieves a cache entry by hash.
func (c *FileCache) Get(hash JobHash) (*CacheEntry, error) {
	entryDir := c.entryPath(hash)

	data, err := os.ReadFile(filepath.Join(entryDir, "metadata.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading cache metadata: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parsing cache metadata: %w", err)
	}

	artifactsDir := filepath.Join(entryDir, "artifacts")
	for i := range entry.Artifacts {
		blob := filepath.Join(artifactsDir, fmt.Sprintf("%d.blob", i))
		if _, err := os.Stat(blob); err != nil {
			return nil, fmt.Errorf("reading artifact %d: %w", i, err)
		}
		entry.Artifacts[i].Source = blob
	}

	return &entry, nil
}

// Put stores a cache entry.
//
// The entry is written into a temp directory and renamed into place, so a
// crash never leaves a metadata.json pointing at partial blobs.
func (c *FileCache) Put(entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}

	entryDir := c.entryPath(entry.Hash)
	parentDir := filepath.Dir(entryDir)

	if err := os.MkdirAll(parentDir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmpDir, err := os.MkdirTemp(parentDir, "tmp-entry-"+string(entry.Hash)+"-")
	if err != nil {
		return fmt.Errorf("creating temp cache entry dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmpDir)
		}
	}()

	artifactsDir := filepath.Join(tmpDir, "artifacts")
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return fmt.Errorf("creating cache artifacts dir: %w", err)
	}

	for i, artifact := range entry.Artifacts {
		blobPath := filepath.Join(artifactsDir, fmt.Sprintf("%d.blob", i))
		var err error
		if artifact.Content == nil && artifact.Source != "" {
			err = atomicfile.CopyFile(blobPath, artifact.Source, 0o644)
		} else {
			err = atomicfile.WriteFile(blobPath, artifact.Content, 0o644)
		}
		if err != nil {
			return fmt.Errorf("writing artifact %d: %w", i, err)
		}
	}

	metadata := CacheEntry{
		Hash:      entry.Hash,
		Stdout:    entry.Stdout,
		Stderr:    entry.Stderr,
		ExitCode:  entry.ExitCode,
		Artifacts: make([]CachedArtifact, len(entry.Artifacts)),
	}
	for i, a := range entry.Artifacts {
		metadata.Artifacts[i] = CachedArtifact{Path: a.Path}
	}

	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling cache metadata: %w", err)
	}
	if err := atomicfile.WriteFile(filepath.Join(tmpDir, "metadata.json"), data, 0o644); err != nil {
		return fmt.Errorf("writing cache metadata: %w", err)
	}

	// A crash between remove and rename yields a cache miss, not corruption.
	_ = os.RemoveAll(entryDir)
	if err := os.Rename(tmpDir, entryDir); err != nil {
		return fmt.Errorf("committing cache entry: %w", err)
	}
	committed = true
	return nil
}

// entryPath shards entries by the first two hash characters.
func (c *FileCache) entryPath(hash JobHash) string {
	hashStr := string(hash)
	if len(hashStr) < 2 {
		return filepath.Join(c.CacheDir, hashStr)
	}
	return filepath.Join(c.CacheDir, hashStr[:2], hashStr)
}

// MemoryCache implements Cache using in-memory storage.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[JobHash]*CacheEntry
}

// NewMemoryCache creates a new in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[JobHash]*CacheEntry)}
}

func (c *MemoryCache) Has(hash JobHash) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.entries[hash]
	return exists, nil
}

func (c *MemoryCache) Get(hash JobHash) (*CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, exists := c.entries[hash]
	if !exists {
		return nil, nil
	}
	return copyEntry(entry), nil
}

// Put stores a copy of entry. Artifacts given by Source are read into
// memory.
func (c *MemoryCache) Put(entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry is nil")
	}
	stored := copyEntry(entry)
	for i, a := range stored.Artifacts {
		if a.Content != nil || a.Source == "" {
			continue
		}
		content, err := os.ReadFile(a.Source)
		if err != nil {
			return fmt.Errorf("reading artifact %q: %w", a.Path, err)
		}
		stored.Artifacts[i].Content = content
		stored.Artifacts[i].Source = ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[entry.Hash] = stored
	return nil
}

func copyEntry(entry *CacheEntry) *CacheEntry {
	out := &CacheEntry{
		Hash:      entry.Hash,
		Stdout:    append([]byte(nil), entry.Stdout...),
		Stderr:    append([]byte(nil), entry.Stderr...),
		ExitCode:  entry.ExitCode,
		Artifacts: make([]CachedArtifact, len(entry.Artifacts)),
	}
	for i, a := range entry.Artifacts {
		out.Artifacts[i] = CachedArtifact{Path: a.Path, Source: a.Source}
		if a.Content != nil {
			out.Artifacts[i].Content = append([]byte{}, a.Content...)
		}
	}
	return out
}
