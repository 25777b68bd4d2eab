// Package report records which post-processing tasks ran and how they ended.
//
// A Report is deterministic: events are sorted after collection, so the
// order in which concurrent tasks finish never changes the encoded bytes or
// the hash. Error text is kept in Message, which is excluded from the hash.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"siestarunner/internal/atomicfile"
)

// EventKind is the stable discriminator for Event. The values are written
// to analysis_report.json; do not rename.
type EventKind string

const (
	EventTaskCompleted EventKind = "TaskCompleted"
	EventTaskFailed    EventKind = "TaskFailed"
	EventTaskSkipped   EventKind = "TaskSkipped"
)

// Stable reason codes.
const (
	ReasonMissingInput   = "MissingInput"
	ReasonUpstreamFailed = "UpstreamFailed"
	ReasonError          = "Error"
	ReasonCanceled       = "Canceled"
)

// Event is the outcome of one task.
type Event struct {
	Kind EventKind `json:"kind"`
	Task string    `json:"task"`

	// Reason is a stable code such as "MissingInput".
	Reason string `json:"reason,omitempty"`

	// CauseTask names the upstream task a skip depends on.
	CauseTask string `json:"causeTask,omitempty"`

	// Outputs are the files the task wrote, relative to the job directory.
	Outputs []string `json:"outputs,omitempty"`

	Message string `json:"message,omitempty"`
}

// Report is the canonical record of one analysis pass.
type Report struct {
	ProjectType string  `json:"projectType"`
	Events      []Event `json:"events"`
}

// Validate checks that every event names its kind and task.
func (r *Report) Validate() error {
	if r == nil {
		return errors.New("report is nil")
	}
	if r.ProjectType == "" {
		return errors.New("projectType is required")
	}
	for i, e := range r.Events {
		if e.Kind == "" {
			return fmt.Errorf("events[%d].kind is required", i)
		}
		if e.Task == "" {
			return fmt.Errorf("events[%d].task is required", i)
		}
		for j, o := range e.Outputs {
			if o == "" {
				return fmt.Errorf("events[%d].outputs[%d] is empty", i, j)
			}
		}
	}
	return nil
}

// Canonicalize sorts outputs and orders events by (task, kind).
func (r *Report) Canonicalize() {
	if r == nil {
		return
	}
	for i := range r.Events {
		if len(r.Events[i].Outputs) == 0 {
			r.Events[i].Outputs = nil
			continue
		}
		out := make([]string, len(r.Events[i].Outputs))
		copy(out, r.Events[i].Outputs)
		sort.Strings(out)
		r.Events[i].Outputs = out
	}
	sort.SliceStable(r.Events, func(i, j int) bool {
		a, b := r.Events[i], r.Events[j]
		if a.Task != b.Task {
			return a.Task < b.Task
		}
		return kindOrder(a.Kind) < kindOrder(b.Kind)
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventTaskCompleted:
		return 0
	case EventTaskSkipped:
		return 1
	case EventTaskFailed:
		return 2
	default:
		return 3
	}
}

// CanonicalJSON returns the compact encoding of a canonicalized copy of r.
func (r *Report) CanonicalJSON() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	c := r.clone()
	c.Canonicalize()
	return json.Marshal(c)
}

// Hash returns the hex sha256 of the canonical encoding with messages
// removed, so two passes that reach the same outcomes hash identically.
func (r *Report) Hash() (string, error) {
	c := r.clone()
	for i := range c.Events {
		c.Events[i].Message = ""
	}
	b, err := c.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// Failed returns the names of tasks that failed, in canonical order.
func (r *Report) Failed() []string {
	c := r.clone()
	c.Canonicalize()
	var names []string
	for _, e := range c.Events {
		if e.Kind == EventTaskFailed {
			names = append(names, e.Task)
		}
	}
	return names
}

// Counts returns the number of events per kind.
func (r *Report) Counts() map[EventKind]int {
	counts := make(map[EventKind]int, 3)
	for _, e := range r.Events {
		counts[e.Kind]++
	}
	return counts
}

// Save writes the canonical report, with its hash, as indented JSON.
func (r *Report) Save(path string) error {
	hash, err := r.Hash()
	if err != nil {
		return err
	}
	c := r.clone()
	c.Canonicalize()
	return atomicfile.WriteJSON(path, struct {
		*Report
		Hash string `json:"hash"`
	}{Report: c, Hash: hash})
}

// Load reads a report written by Save.
func Load(path string) (*Report, error) {
	var r Report
	if err := atomicfile.ReadJSON(path, &r); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &r, nil
}

func (r *Report) clone() *Report {
	c := &Report{ProjectType: r.ProjectType, Events: make([]Event, len(r.Events))}
	copy(c.Events, r.Events)
	return c
}
