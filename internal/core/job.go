package core

// Job is a declarative definition of one solver invocation.
//
//	Required: name, run
//	Optional: inputs, env, pass_env, outputs
type Job struct {
	// Name is the logical identifier for the job.
	// Used only for logging; does not affect the job hash.
	Name string `json:"name" yaml:"name"`

	// Inputs is a list of file paths or glob patterns relative to the job
	// directory. Their contents define the job identity.
	Inputs []string `json:"inputs" yaml:"inputs"`

	// Run is the shell command string to execute.
	Run string `json:"run" yaml:"run"`

	// Env is a map of environment variables explicitly provided to the job.
	Env map[string]string `json:"env,omitempty" yaml:"env,omitempty"`

	// PassEnv names host variables forwarded to the job. A trailing '*'
	// matches a prefix (e.g. "SLURM_*"). Forwarded values do not affect the
	// job hash.
	PassEnv []string `json:"pass_env,omitempty" yaml:"pass_env,omitempty"`

	// Outputs is a list of file paths or glob patterns expected to be
	// produced. Patterns that match nothing are skipped.
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// Input is a resolved file whose content contributes to job identity.
type Input struct {
	// Path is relative to the job directory, with forward slashes.
	Path string

	// Content is the raw file content.
	Content []byte
}

// InputSet is the complete set of resolved inputs, sorted by Path.
type InputSet struct {
	Inputs []Input
}

// Artifact is a file produced by a job and matched by a declared output.
// Harvesting records where it lives; content is only read when it is cached.
type Artifact struct {
	// Path is relative to the job directory, with forward slashes.
	Path string

	// Source is the file on disk.
	Source string
}

// ArtifactSet is the set of harvested artifacts, sorted by Path.
type ArtifactSet struct {
	Artifacts []Artifact
}
