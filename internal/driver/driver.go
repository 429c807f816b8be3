// Package driver abstracts the container runtime operations the core
// depends on (C3, spec §4.3). The core only ever sees this interface;
// any implementation satisfying it is acceptable, per spec §1.
package driver

import (
	"context"

	"github.com/ciroach/ciroach/internal/cancel"
	"github.com/ciroach/ciroach/internal/logstream"
)

// ContainerSpec describes the container one step attempt needs run. It is
// deliberately independent of the compiled pipeline types so that Driver
// stays a narrow, swappable boundary.
type ContainerSpec struct {
	// ExplodedName is used to derive the container name: ciroach-<name>,
	// spaces replaced with '-'.
	ExplodedName string
	Image        string
	Command      string
	MemoryBytes  int64
	Env          []string
}

// ExitState is the terminal state of a finished container attempt.
type ExitState struct {
	ExitCode  int64
	OOMKilled bool
}

// Driver is the container runtime boundary (C3).
type Driver interface {
	// PullImage ensures image is present locally.
	PullImage(ctx context.Context, image string) error

	// RunContainer creates (force-removing any same-named prior
	// container first) and starts a container for spec, bind-mounting
	// cwd at /workspace and running as user. It returns the new
	// container's id.
	RunContainer(ctx context.Context, spec ContainerSpec, cwd, user string) (string, error)

	// StreamLogs subscribes to stdout/stderr of the running container
	// and emits a LogEvent per chunk until the stream ends or token
	// fires.
	StreamLogs(ctx context.Context, containerID, stepName string, emit logstream.Emitter, token *cancel.Token) error

	// GetExitState inspects a finished container and force-removes it
	// afterward; removal failure is swallowed.
	GetExitState(ctx context.Context, containerID string) (ExitState, error)

	// ForceRemoveContainer is an idempotent best-effort removal, keyed
	// by either container id or name.
	ForceRemoveContainer(ctx context.Context, idOrName string) error
}

// ContainerName derives the runtime container name for a step instance,
// per spec §6.2.
func ContainerName(explodedName string) string {
	out := make([]rune, 0, len(explodedName)+len("ciroach-"))
	out = append(out, []rune("ciroach-")...)
	for _, r := range explodedName {
		if r == ' ' {
			r = '-'
		}
		out = append(out, r)
	}
	return string(out)
}
