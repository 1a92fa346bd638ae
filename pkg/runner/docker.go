package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/gantryci/gantry/pkg/models"
)

const containerWorkDir = "/work"

// DockerLauncher runs step commands inside a container when the step declares
// an image. The step's working directory is bind-mounted so later steps see
// the files this one produced.
type DockerLauncher struct {
	// ShowImagePull streams pull progress to this writer when set.
	ShowImagePull io.Writer
}

func NewDockerLauncher() *DockerLauncher {
	return &DockerLauncher{}
}

func (d *DockerLauncher) Launch(ctx context.Context, step models.Step, dir string, env []string, stdout, stderr io.Writer) (Handle, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("unable to create docker client for step %s: %v", step.Name, err)
	}

	reader, err := cli.ImagePull(ctx, step.Image, types.ImagePullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("unable to pull image %s for step %s: %v", step.Image, step.Name, err)
	}
	if d.ShowImagePull != nil {
		if _, err := io.Copy(d.ShowImagePull, reader); err != nil {
			reader.Close()
			cli.Close()
			return nil, fmt.Errorf("unable to read image pull logs for %s: %v", step.Name, err)
		}
	} else {
		io.Copy(io.Discard, reader)
	}
	reader.Close()

	name := slug.Make(step.Name + "-" + uuid.NewString()[:8])
	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:      step.Image,
		Env:        env,
		Cmd:        []string{"/bin/sh", "-c", step.Command},
		WorkingDir: containerWorkDir,
	}, &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: dir,
				Target: containerWorkDir,
			},
		},
	}, nil, nil, name)
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("unable to create container for step %s: %v", step.Name, err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		cli.ContainerRemove(ctx, resp.ID, types.ContainerRemoveOptions{Force: true})
		cli.Close()
		return nil, fmt.Errorf("unable to start container for step %s: %v", step.Name, err)
	}

	logs, err := cli.ContainerLogs(ctx, resp.ID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		cli.ContainerRemove(ctx, resp.ID, types.ContainerRemoveOptions{Force: true})
		cli.Close()
		return nil, fmt.Errorf("unable to attach logs for step %s: %v", step.Name, err)
	}

	logsDone := make(chan struct{})
	go func() {
		defer close(logsDone)
		// Container log streams are multiplexed; split them back out.
		stdcopy.StdCopy(stdout, stderr, logs)
	}()

	return &dockerHandle{
		cli:      cli,
		id:       resp.ID,
		logs:     logs,
		logsDone: logsDone,
	}, nil
}

type dockerHandle struct {
	cli      *client.Client
	id       string
	logs     io.ReadCloser
	logsDone chan struct{}
}

func (h *dockerHandle) Wait() (int, error) {
	ctx := context.Background()
	defer h.cleanup(ctx)

	statusCh, errCh := h.cli.ContainerWait(ctx, h.id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, fmt.Errorf("error waiting for container %s to stop: %v", h.id, err)
	case status := <-statusCh:
		<-h.logsDone
		return int(status.StatusCode), nil
	}
}

func (h *dockerHandle) Kill() error {
	return h.cli.ContainerKill(context.Background(), h.id, "SIGKILL")
}

func (h *dockerHandle) cleanup(ctx context.Context) {
	h.logs.Close()
	h.cli.ContainerRemove(ctx, h.id, types.ContainerRemoveOptions{Force: true})
	h.cli.Close()
}
