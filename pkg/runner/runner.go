// Package runner executes single pipeline steps as external processes.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gantryci/gantry/pkg/models"
)

var (
	// ErrSetup marks steps whose working directory was missing; the command
	// was never launched.
	ErrSetup = errors.New("runner: step setup failed")
	// ErrLaunch marks steps whose command could not be started at all.
	ErrLaunch = errors.New("runner: could not launch step command")
)

// Handle is a running external process.
type Handle interface {
	// Wait blocks until the process exits and returns its exit code.
	Wait() (int, error)
	// Kill forcibly terminates the process.
	Kill() error
}

// Launcher starts a step command in a working directory with an environment.
// Keeping this narrow lets the executor swap the process mechanism, including
// an in-memory fake for tests.
type Launcher interface {
	Launch(ctx context.Context, step models.Step, dir string, env []string, stdout, stderr io.Writer) (Handle, error)
}

// Options configures a StepRunner. Env entries are KEY=VALUE pairs forwarded
// to every step on top of the process environment.
type Options struct {
	Env            []string
	DefaultTimeout time.Duration
	WorkingDir     string
	Stdout         io.Writer
	Stderr         io.Writer
}

// StepRunner runs one step at a time and never retries; retry policy belongs
// to the caller.
type StepRunner struct {
	launcher Launcher
	opts     Options
}

func NewStepRunner(launcher Launcher, opts Options) *StepRunner {
	if opts.DefaultTimeout <= 0 {
		// An unbounded wait on an external tool is a defect, not a default.
		opts.DefaultTimeout = time.Hour
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &StepRunner{launcher: launcher, opts: opts}
}

type waitOutcome struct {
	code int
	err  error
}

// Execute runs the step and blocks until it terminates, times out, or the
// context is cancelled. A non-zero exit from a tool that ran is reported in
// the result, not as an error; Err is reserved for setup and launch failures.
func (r *StepRunner) Execute(ctx context.Context, step models.Step) models.StepResult {
	result := models.StepResult{Step: step, ExitCode: -1}
	start := time.Now()

	dir := step.WorkingDir
	if dir == "" {
		dir = r.opts.WorkingDir
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		result.Err = fmt.Errorf("%w: working directory %s does not exist", ErrSetup, dir)
		result.Duration = time.Since(start)
		return result
	}

	timeout := step.Timeout.Std()
	if timeout <= 0 {
		timeout = r.opts.DefaultTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := io.MultiWriter(&stdoutBuf, r.opts.Stdout)
	stderr := io.MultiWriter(&stderrBuf, r.opts.Stderr)

	env := append([]string{}, r.opts.Env...)
	for _, v := range step.Variables {
		for k, val := range v {
			env = append(env, fmt.Sprintf("%s=%s", k, val))
		}
	}

	handle, err := r.launcher.Launch(stepCtx, step, dir, env, stdout, stderr)
	if err != nil {
		result.Err = fmt.Errorf("%w: %s: %v", ErrLaunch, step.Name, err)
		result.Duration = time.Since(start)
		return result
	}

	done := make(chan waitOutcome, 1)
	go func() {
		code, err := handle.Wait()
		done <- waitOutcome{code: code, err: err}
	}()

	select {
	case <-stepCtx.Done():
		handle.Kill()
		// Reap the process before reporting so no zombie outlives the step.
		<-done
		if ctx.Err() != nil {
			result.Cancelled = true
		} else {
			result.TimedOut = true
		}
	case out := <-done:
		result.ExitCode = out.code
		if out.err != nil {
			result.Err = fmt.Errorf("runner: waiting on step %s: %w", step.Name, out.err)
		}
	}

	result.Stdout = stdoutBuf.Bytes()
	result.Stderr = stderrBuf.Bytes()
	result.Duration = time.Since(start)
	return result
}
