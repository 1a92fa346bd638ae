package pipeline

import (
	"fmt"
	"io"
	"time"

	"github.com/gantryci/gantry/pkg/models"
)

// WriteSummary renders the human-readable run report: terminal status, the
// first failing step if any, and which artifacts were and were not collected.
func WriteSummary(w io.Writer, run *models.Run) {
	fmt.Fprintf(w, "run %s (%s): %s in %s\n", run.ID, run.Pipeline, run.Status(), run.Finished.Sub(run.Started).Round(time.Millisecond))

	for _, result := range run.Results {
		outcome := "ok"
		switch {
		case result.Cancelled:
			outcome = "cancelled"
		case result.TimedOut:
			outcome = fmt.Sprintf("timed out after %s", result.Duration.Round(time.Millisecond))
		case result.Err != nil:
			outcome = result.Err.Error()
		case result.ExitCode != 0:
			outcome = fmt.Sprintf("exit %d", result.ExitCode)
		}
		fmt.Fprintf(w, "  step %-20s %s\n", result.Step.Name, outcome)
	}

	if failure, ok := run.FirstFailure(); ok {
		fmt.Fprintf(w, "first failing step: %s\n", failure.Step.Name)
	}

	if len(run.Artifacts) > 0 {
		fmt.Fprintln(w, "artifacts:")
		for _, a := range run.Artifacts {
			fmt.Fprintf(w, "  %s (%d bytes) -> %s\n", a.Name, a.SizeBytes, a.Location)
		}
	}
	if len(run.Warnings) > 0 {
		fmt.Fprintln(w, "artifact warnings:")
		for _, warn := range run.Warnings {
			fmt.Fprintf(w, "  %s\n", warn)
		}
	}
}
