// Package core runs a calculation job as an external process inside a job
// directory.
//
// # Execution Model
//
// A Job declares the command to run, the files that define its identity
// (input deck, pseudopotentials) and the files it is expected to produce.
// The Runner resolves inputs, computes a content hash, optionally restores a
// previous successful result from the cache, and otherwise executes the
// command and harvests the declared outputs.
//
// # Core Types
//
// Job: a declarative definition of one solver invocation.
// Input: a resolved file whose content contributes to job identity.
// Artifact: a file produced by a job and matched by its declared outputs.
//
// Failed executions are never cached with artifacts, so a retried job always
// runs the solver again.
package core
