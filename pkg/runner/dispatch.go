package runner

import (
	"context"
	"io"

	"github.com/gantryci/gantry/pkg/models"
)

// DispatchLauncher routes steps that declare an image to the container
// launcher and everything else to the shell.
type DispatchLauncher struct {
	Shell     Launcher
	Container Launcher
}

func (d *DispatchLauncher) Launch(ctx context.Context, step models.Step, dir string, env []string, stdout, stderr io.Writer) (Handle, error) {
	if step.Image != "" && d.Container != nil {
		return d.Container.Launch(ctx, step, dir, env, stdout, stderr)
	}
	return d.Shell.Launch(ctx, step, dir, env, stdout, stderr)
}
