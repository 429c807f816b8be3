package driver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/ciroach/ciroach/internal/cancel"
	"github.com/ciroach/ciroach/internal/logstream"
)

// DockerDriver is the concrete Driver backed by the local Docker daemon,
// grounded on original_source/src/engine.rs's DockerEngine (there built on
// the bollard client; here on the equivalent official Go SDK).
type DockerDriver struct {
	cli *client.Client
}

// NewDockerDriver connects to the daemon over its default local transport
// (spec §6.2), negotiating the API version.
func NewDockerDriver() (*DockerDriver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("connecting to container daemon: %w", err)
	}
	return &DockerDriver{cli: cli}, nil
}

func (d *DockerDriver) PullImage(ctx context.Context, img string) error {
	rc, err := d.cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %q: %w", img, err)
	}
	defer rc.Close()

	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("reading pull progress for %q: %w", img, err)
	}
	return nil
}

func (d *DockerDriver) RunContainer(ctx context.Context, spec ContainerSpec, cwd, user string) (string, error) {
	name := ContainerName(spec.ExplodedName)

	// Best effort: a prior container of this name must not block create.
	_ = d.ForceRemoveContainer(ctx, name)

	cfg := &container.Config{
		Image:      spec.Image,
		Cmd:        []string{"sh", "-c", spec.Command},
		Env:        spec.Env,
		WorkingDir: "/workspace",
		User:       user,
	}
	hostCfg := &container.HostConfig{
		Binds: []string{fmt.Sprintf("%s:/workspace", cwd)},
		Resources: container.Resources{
			Memory:     spec.MemoryBytes,
			MemorySwap: spec.MemoryBytes,
		},
	}

	created, err := d.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("creating container %q: %w", name, err)
	}

	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("starting container %q: %w", name, err)
	}

	return created.ID, nil
}

func (d *DockerDriver) StreamLogs(ctx context.Context, containerID, stepName string, emit logstream.Emitter, token *cancel.Token) error {
	rc, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		return fmt.Errorf("streaming logs for %q: %w", containerID, err)
	}

	// bufio.Scanner blocks on Read regardless of ctx/token; closing the
	// log stream is what actually unblocks it on cancellation.
	stop := make(chan struct{})
	go func() {
		select {
		case <-token.Done():
			rc.Close()
		case <-ctx.Done():
			rc.Close()
		case <-stop:
		}
	}()
	defer close(stop)
	defer rc.Close()

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()

	go func() {
		_, copyErr := stdcopy.StdCopy(outW, errW, rc)
		outW.CloseWithError(copyErr)
		errW.CloseWithError(copyErr)
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); scanAndEmit(outR, stepName, false, emit, token) }()
	go func() { defer wg.Done(); scanAndEmit(errR, stepName, true, emit, token) }()
	wg.Wait()

	return nil
}

// scanAndEmit reads newline-delimited log chunks from r and emits one
// LogEvent per line until r is exhausted or token fires.
func scanAndEmit(r io.Reader, stepName string, isError bool, emit logstream.Emitter, token *cancel.Token) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		emit.Emit(logstream.LogEvent{StepName: stepName, Line: scanner.Text(), IsError: isError}, token.Done())
	}
}

func (d *DockerDriver) GetExitState(ctx context.Context, containerID string) (ExitState, error) {
	inspect, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return ExitState{}, fmt.Errorf("inspecting container %q: %w", containerID, err)
	}

	var state ExitState
	if inspect.State != nil {
		state.ExitCode = int64(inspect.State.ExitCode)
		state.OOMKilled = inspect.State.OOMKilled
	}

	_ = d.ForceRemoveContainer(ctx, containerID)

	return state, nil
}

func (d *DockerDriver) ForceRemoveContainer(ctx context.Context, idOrName string) error {
	err := d.cli.ContainerRemove(ctx, idOrName, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("removing container %q: %w", idOrName, err)
	}
	return nil
}
