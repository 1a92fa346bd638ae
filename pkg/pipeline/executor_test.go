package pipeline

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryci/gantry/pkg/artifacts"
	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/runner"
	"github.com/gantryci/gantry/pkg/store"
)

func newTestExecutor(workDir string) (*Executor, *store.MemStore) {
	blobs := store.NewMemStore()
	e := NewExecutor(Config{
		WorkingDir:     workDir,
		DefaultTimeout: time.Minute,
		Stdout:         io.Discard,
		Stderr:         io.Discard,
	}, runner.NewShellLauncher(), artifacts.NewStoreCollector(blobs))
	return e, blobs
}

func TestRunAllStepsSucceed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "log.txt"), []byte("logged"), 0o644))
	e, _ := newTestExecutor(dir)

	run := e.Run(context.Background(), models.Pipeline{
		Name: "demo",
		Steps: []models.Step{
			{Name: "build", Command: "echo build"},
			{Name: "test", Command: "echo test"},
		},
		Artifacts: []models.ArtifactSpec{{Name: "log", Source: "log.txt"}},
	})

	assert.Equal(t, models.StatusSucceeded, run.Status())
	require.Len(t, run.Results, 2)
	assert.Equal(t, "build", run.Results[0].Step.Name)
	assert.Equal(t, "test", run.Results[1].Step.Name)

	var declared []string
	for _, a := range run.Artifacts {
		declared = append(declared, a.Name)
	}
	assert.Contains(t, declared, "log")
}

func TestRunFailFast(t *testing.T) {
	dir := t.TempDir()
	e, _ := newTestExecutor(dir)

	run := e.Run(context.Background(), models.Pipeline{
		Name: "demo",
		Steps: []models.Step{
			{Name: "fail-build", Command: "exit 1"},
			{Name: "test", Command: "touch ran-anyway"},
		},
	})

	assert.Equal(t, models.StatusFailed, run.Status())
	require.Len(t, run.Results, 1)
	assert.Equal(t, "fail-build", run.Results[0].Step.Name)
	assert.Equal(t, 1, run.Results[0].ExitCode)

	_, err := os.Stat(filepath.Join(dir, "ran-anyway"))
	assert.True(t, os.IsNotExist(err), "later step must never run after a failure")

	failure, ok := run.FirstFailure()
	require.True(t, ok)
	assert.Equal(t, "fail-build", failure.Step.Name)
}

func TestRunCollectsArtifactsOnFailure(t *testing.T) {
	dir := t.TempDir()
	e, blobs := newTestExecutor(dir)

	run := e.Run(context.Background(), models.Pipeline{
		Name: "demo",
		Steps: []models.Step{
			{Name: "build", Command: "echo partial > build.log; exit 1"},
		},
		Artifacts: []models.ArtifactSpec{{Name: "build-log", Source: "build.log"}},
	})

	assert.Equal(t, models.StatusFailed, run.Status())
	require.NotEmpty(t, run.Artifacts)

	var found bool
	for _, a := range run.Artifacts {
		if a.Name == "build-log" {
			found = true
			r, err := blobs.Get(context.Background(), a.Location)
			require.NoError(t, err)
			data, err := io.ReadAll(r)
			r.Close()
			require.NoError(t, err)
			assert.Equal(t, "partial\n", string(data))
		}
	}
	assert.True(t, found, "declared artifact must be collected even on failure")
}

func TestRunMissingArtifactIsWarningNotFailure(t *testing.T) {
	e, _ := newTestExecutor(t.TempDir())

	run := e.Run(context.Background(), models.Pipeline{
		Name:      "demo",
		Steps:     []models.Step{{Name: "build", Command: "true"}},
		Artifacts: []models.ArtifactSpec{{Name: "report", Source: "report.xml"}},
	})

	assert.Equal(t, models.StatusSucceeded, run.Status())
	require.Len(t, run.Warnings, 1)
	assert.Equal(t, "report", run.Warnings[0].Artifact)
}

func TestRunEmptyStepList(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "log.txt"), []byte("x"), 0o644))
	e, _ := newTestExecutor(dir)

	run := e.Run(context.Background(), models.Pipeline{
		Name:      "empty",
		Artifacts: []models.ArtifactSpec{{Name: "log", Source: "log.txt"}},
	})

	assert.Equal(t, models.StatusSucceeded, run.Status())
	assert.Empty(t, run.Results)
	require.Len(t, run.Artifacts, 1, "collection still runs for an empty step list")
}

func TestRunStepTimeoutFailsFast(t *testing.T) {
	e, _ := newTestExecutor(t.TempDir())

	run := e.Run(context.Background(), models.Pipeline{
		Name: "demo",
		Steps: []models.Step{
			{Name: "slow", Command: "sleep 60", Timeout: models.Duration(50 * time.Millisecond)},
			{Name: "after", Command: "true"},
		},
	})

	assert.Equal(t, models.StatusFailed, run.Status())
	require.Len(t, run.Results, 1)
	assert.True(t, run.Results[0].TimedOut)
	assert.NotEqual(t, 0, run.Results[0].ExitCode)
}

func TestRunCancellation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "log.txt"), []byte("x"), 0o644))
	e, _ := newTestExecutor(dir)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	run := e.Run(ctx, models.Pipeline{
		Name: "demo",
		Steps: []models.Step{
			{Name: "slow", Command: "sleep 60"},
			{Name: "after", Command: "true"},
		},
		Artifacts: []models.ArtifactSpec{{Name: "log", Source: "log.txt"}},
	})

	assert.Less(t, time.Since(start), 10*time.Second, "cancellation must terminate the step promptly")
	assert.Equal(t, models.StatusCancelled, run.Status())
	require.Len(t, run.Results, 1)
	assert.True(t, run.Results[0].Cancelled)

	// Collection still happened despite cancellation.
	require.Len(t, run.Artifacts, 1)
}

func TestRunPersistsStepOutputLogs(t *testing.T) {
	e, blobs := newTestExecutor(t.TempDir())

	run := e.Run(context.Background(), models.Pipeline{
		Name:  "demo",
		Steps: []models.Step{{Name: "build", Command: "echo out; echo err >&2"}},
	})

	var names []string
	for _, a := range run.Artifacts {
		names = append(names, a.Name)
	}
	assert.Contains(t, names, "build-stdout.log")
	assert.Contains(t, names, "build-stderr.log")

	for _, a := range run.Artifacts {
		if a.Name == "build-stdout.log" {
			r, err := blobs.Get(context.Background(), a.Location)
			require.NoError(t, err)
			data, _ := io.ReadAll(r)
			r.Close()
			assert.Equal(t, "out\n", string(data))
		}
	}
}

func TestRunDuplicateStepNamesGetDistinctLogKeys(t *testing.T) {
	e, _ := newTestExecutor(t.TempDir())

	run := e.Run(context.Background(), models.Pipeline{
		Name: "demo",
		Steps: []models.Step{
			{Name: "build", Command: "echo first"},
			{Name: "build", Command: "echo second"},
		},
	})

	assert.Equal(t, models.StatusSucceeded, run.Status())
	assert.Empty(t, run.Warnings, "duplicate step names must not produce store collisions")

	var names []string
	for _, a := range run.Artifacts {
		names = append(names, a.Name)
	}
	assert.Contains(t, names, "build-stdout.log")
	assert.Contains(t, names, "build-2-stdout.log")
}

func TestWriteSummary(t *testing.T) {
	e, _ := newTestExecutor(t.TempDir())

	run := e.Run(context.Background(), models.Pipeline{
		Name: "demo",
		Steps: []models.Step{
			{Name: "build", Command: "true"},
			{Name: "test", Command: "exit 2"},
		},
		Artifacts: []models.ArtifactSpec{{Name: "report", Source: "missing.xml"}},
	})

	var buf bytes.Buffer
	WriteSummary(&buf, run)
	out := buf.String()

	assert.True(t, strings.Contains(out, "failed"))
	assert.True(t, strings.Contains(out, "first failing step: test"))
	assert.True(t, strings.Contains(out, "exit 2"))
	assert.True(t, strings.Contains(out, "report"))
}
