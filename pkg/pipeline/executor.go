// Package pipeline sequences steps for one run, enforcing fail-fast semantics
// and a guaranteed artifact-collection phase.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gantryci/gantry/pkg/artifacts"
	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/runner"
	"github.com/gantryci/gantry/pkg/utils"
)

// collectionGrace bounds artifact collection after a cancelled run so a hung
// store cannot keep the process alive.
const collectionGrace = 30 * time.Second

// Config carries the process-wide settings for an executor. It is immutable
// after construction; nothing here reads ambient global state.
type Config struct {
	// Env entries (KEY=VALUE) are forwarded to every step.
	Env            []string
	DefaultTimeout time.Duration
	WorkingDir     string
	Stdout         io.Writer
	Stderr         io.Writer
}

// Executor drives one pipeline run at a time. Independent executors may run
// concurrently; they share nothing but the blob store behind the collector,
// which is keyed per run.
type Executor struct {
	cfg       Config
	launcher  runner.Launcher
	collector artifacts.Collector
}

func NewExecutor(cfg Config, launcher runner.Launcher, collector artifacts.Collector) *Executor {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.WorkingDir == "" {
		cfg.WorkingDir = "."
	}
	return &Executor{cfg: cfg, launcher: launcher, collector: collector}
}

// Run executes the pipeline's steps in declared order and blocks until the
// terminal status is decided. The first non-zero exit or engine error stops
// further steps; artifact collection still runs on every exit path, because
// logs matter most when the build broke. The returned run always carries a
// terminal status.
func (e *Executor) Run(ctx context.Context, p models.Pipeline) *models.Run {
	workDir := p.WorkingDir
	if workDir == "" {
		workDir = e.cfg.WorkingDir
	}

	run := models.NewRun(p.Name, workDir)
	run.Started = time.Now()
	if err := run.SetStatus(models.StatusRunning); err != nil {
		slog.Error("could not mark run running", "run", run.ID, "err", err)
	}

	env := append([]string{}, e.cfg.Env...)
	for _, v := range p.Variables {
		for k, val := range v {
			env = append(env, fmt.Sprintf("%s=%s", k, val))
		}
	}

	terminal := models.StatusSucceeded
	defer func() {
		e.collect(ctx, run, p.Artifacts)
		if err := run.SetStatus(terminal); err != nil {
			slog.Error("could not finalize run status", "run", run.ID, "status", terminal, "err", err)
		}
		run.Finished = time.Now()
	}()

	for _, step := range p.Steps {
		if ctx.Err() != nil {
			terminal = models.StatusCancelled
			return run
		}

		slog.Info("running step", "run", run.ID, "step", step.Name)
		sr := runner.NewStepRunner(e.launcher, runner.Options{
			Env:            env,
			DefaultTimeout: e.cfg.DefaultTimeout,
			WorkingDir:     workDir,
			Stdout:         utils.NewColorLogger(step.Name, e.cfg.Stdout, true),
			Stderr:         utils.NewColorLogger(step.Name, e.cfg.Stderr, false),
		})

		result := sr.Execute(ctx, step)
		run.Results = append(run.Results, result)

		switch {
		case result.Cancelled:
			slog.Warn("step cancelled", "run", run.ID, "step", step.Name)
			terminal = models.StatusCancelled
			return run
		case result.Failed():
			slog.Error("step failed", "run", run.ID, "step", step.Name,
				"exit_code", result.ExitCode, "timed_out", result.TimedOut, "err", result.Err)
			terminal = models.StatusFailed
			return run
		default:
			slog.Info("step succeeded", "run", run.ID, "step", step.Name, "duration", result.Duration)
		}
	}
	return run
}

// collect is the guaranteed artifact phase. It runs exactly once per Run call
// regardless of outcome, on a context detached from cancellation so a
// cancelled run still gets its logs captured, within a bounded grace period.
func (e *Executor) collect(ctx context.Context, run *models.Run, specs []models.ArtifactSpec) {
	collectCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), collectionGrace)
	defer cancel()

	records, warnings := e.collector.Collect(collectCtx, run, specs)
	run.Artifacts = records
	run.Warnings = warnings

	// Full step output is always preserved, independent of declared specs.
	// Repeated step names get a numbered suffix so their log keys never
	// collide in the store.
	seen := make(map[string]int)
	for _, result := range run.Results {
		name := result.Step.Name
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s-%d", name, n)
		}
		e.putLog(collectCtx, run, name+"-stdout.log", result.Stdout)
		e.putLog(collectCtx, run, name+"-stderr.log", result.Stderr)
	}

	for _, w := range run.Warnings {
		slog.Warn("artifact not collected", "run", run.ID, "artifact", w.Artifact, "reason", w.Reason)
	}
}

func (e *Executor) putLog(ctx context.Context, run *models.Run, name string, data []byte) {
	if len(data) == 0 {
		return
	}
	record, err := e.collector.Put(ctx, run, name, bytes.NewReader(data))
	if err != nil {
		run.Warnings = append(run.Warnings, models.Warning{Artifact: name, Reason: err.Error()})
		return
	}
	run.Artifacts = append(run.Artifacts, record)
}
