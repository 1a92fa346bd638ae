// Package models defines the pipeline file format and the run-side records
// produced while executing it.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

type Variable map[string]string

// Duration wraps time.Duration so pipeline files can write timeouts as "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("models: invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Pipeline is the top-level structure of a pipeline file ( default gantry.yml ).
type Pipeline struct {
	Name       string         `yaml:"name" validate:"required"`
	WorkingDir string         `yaml:"working_dir"`
	Variables  []Variable     `yaml:"variables"`
	Steps      []Step         `yaml:"steps" validate:"required,dive"`
	Artifacts  []ArtifactSpec `yaml:"artifacts" validate:"dive"`
}

// Step is a single named external command. When Image is set the command runs
// inside a container instead of the host shell.
type Step struct {
	Name       string        `yaml:"name" validate:"required"`
	Command    string        `yaml:"command" validate:"required"`
	WorkingDir string        `yaml:"working_dir"`
	Image      string        `yaml:"image"`
	Variables  []Variable `yaml:"variables"`
	Timeout    Duration   `yaml:"timeout"`
}

// ArtifactSpec declares a path that must be captured after the run, success
// or failure. Source may be a doublestar glob relative to the working directory.
type ArtifactSpec struct {
	Name   string `yaml:"name" validate:"required"`
	Source string `yaml:"source" validate:"required"`
}

// StepResult records the outcome of one step. It is immutable once produced.
// Err is only set for engine-level failures (missing working directory, tool
// not found); a non-zero exit from a tool that ran is not an engine error.
type StepResult struct {
	Step      Step
	ExitCode  int
	Stdout    []byte
	Stderr    []byte
	Duration  time.Duration
	TimedOut  bool
	Cancelled bool
	Err       error
}

// Failed reports whether this result should stop the pipeline.
func (r StepResult) Failed() bool {
	return r.ExitCode != 0 || r.Err != nil
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

func allowedTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusRunning || to.Terminal()
	case StatusRunning:
		return to.Terminal()
	}
	return false
}

// ArtifactRecord references an artifact persisted in the blob store. The
// store owns the bytes; the run only keeps the handle for reporting.
type ArtifactRecord struct {
	Name      string
	Location  string
	SizeBytes int64
}

// Warning is a non-fatal problem surfaced alongside the run status, typically
// an artifact source that did not exist.
type Warning struct {
	Artifact string
	Reason   string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Artifact, w.Reason)
}

// Run is one end-to-end execution of a pipeline. It is owned exclusively by
// the executor driving it until Run returns, after which it is read-only.
type Run struct {
	ID         string
	Pipeline   string
	WorkingDir string
	Results    []StepResult
	Artifacts  []ArtifactRecord
	Warnings   []Warning
	Started    time.Time
	Finished   time.Time

	status Status
}

// NewRun creates a pending run with a unique, slug-safe identifier. Artifact
// keys are prefixed with this ID so concurrent runs never collide in the store.
func NewRun(pipelineName, workingDir string) *Run {
	return &Run{
		ID:         slug.Make(pipelineName + "-" + uuid.NewString()[:8]),
		Pipeline:   pipelineName,
		WorkingDir: workingDir,
		status:     StatusPending,
	}
}

func (r *Run) Status() Status {
	return r.status
}

// SetStatus applies a validated state transition. A terminal status is
// entered exactly once and never changes afterwards.
func (r *Run) SetStatus(to Status) error {
	if !allowedTransition(r.status, to) {
		return fmt.Errorf("models: invalid status transition %s -> %s for run %s", r.status, to, r.ID)
	}
	r.status = to
	return nil
}

// FirstFailure returns the result that stopped the pipeline, if any.
func (r *Run) FirstFailure() (StepResult, bool) {
	for _, res := range r.Results {
		if res.Failed() {
			return res, true
		}
	}
	return StepResult{}, false
}
