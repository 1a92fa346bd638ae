package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/gantryci/gantry/pkg/models"
)

// ShellLauncher runs step commands on the host through /bin/sh.
type ShellLauncher struct{}

func NewShellLauncher() *ShellLauncher {
	return &ShellLauncher{}
}

func (s *ShellLauncher) Launch(ctx context.Context, step models.Step, dir string, env []string, stdout, stderr io.Writer) (Handle, error) {
	cmd := exec.Command("/bin/sh", "-c", step.Command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	// The shell gets its own process group so Kill reaches the whole step,
	// not just the sh parent; an orphaned child would otherwise hold the
	// output pipes open and block Wait indefinitely.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Stop waiting on the pipes once the process itself is gone, in case a
	// grandchild escaped the group.
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &shellHandle{cmd: cmd}, nil
}

type shellHandle struct {
	cmd *exec.Cmd
}

func (h *shellHandle) Wait() (int, error) {
	err := h.cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0, nil
	case errors.As(err, &exitErr):
		// The tool ran and failed; that is a result, not a wait error.
		return exitErr.ExitCode(), nil
	default:
		return -1, err
	}
}

func (h *shellHandle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	// Negative pid signals the whole process group.
	return syscall.Kill(-h.cmd.Process.Pid, syscall.SIGKILL)
}
