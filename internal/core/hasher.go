package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"sort"
)

// JobHash is a deterministic identifier for a job execution.
//
//	Includes: input paths and contents, command, declared env, declared outputs
//	Excludes: job directory location, forwarded host variables, timestamps
type JobHash string

// String returns the string representation of the JobHash.
func (h JobHash) String() string {
	return string(h)
}

// Short returns the first 12 hex characters, for log lines.
func (h JobHash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

// JobHasher computes deterministic hashes for job executions.
type JobHasher struct{}

// NewJobHasher creates a new JobHasher.
func NewJobHasher() *JobHasher {
	return &JobHasher{}
}

// HashInput contains all components that define a job's identity.
type HashInput struct {
	// Inputs is the resolved InputSet (already sorted by InputResolver).
	Inputs *InputSet

	Command string
	Env     map[string]string
	Outputs []string
}

// ComputeHash computes a JobHash from the given inputs.
//
// Components are written in a fixed order, each length-prefixed:
//  1. Command
//  2. Sorted environment variables (key, value)
//  3. Sorted declared outputs
//  4. For each input (already sorted): path + content
func (h *JobHasher) ComputeHash(input HashInput) JobHash {
	hasher := sha256.New()

	writeField(hasher, []byte(input.Command))

	envKeys := make([]string, 0, len(input.Env))
	for k := range input.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)

	writeCount(hasher, len(envKeys))
	for _, k := range envKeys {
		writeField(hasher, []byte(k))
		writeField(hasher, []byte(input.Env[k]))
	}

	sortedOutputs := make([]string, len(input.Outputs))
	copy(sortedOutputs, input.Outputs)
	sort.Strings(sortedOutputs)

	writeCount(hasher, len(sortedOutputs))
	for _, out := range sortedOutputs {
		writeField(hasher, []byte(out))
	}

	inputCount := 0
	if input.Inputs != nil {
		inputCount = len(input.Inputs.Inputs)
	}
	writeCount(hasher, inputCount)
	if input.Inputs != nil {
		for _, inp := range input.Inputs.Inputs {
			writeField(hasher, []byte(inp.Path))
			writeField(hasher, inp.Content)
		}
	}

	return JobHash(hex.EncodeToString(hasher.Sum(nil)))
}

func writeCount(w hash.Hash, n int) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	_, _ = w.Write(buf[:])
}

// writeField writes an 8-byte big-endian length prefix followed by data.
func writeField(w hash.Hash, data []byte) {
	writeCount(w, len(data))
	_, _ = w.Write(data)
}
