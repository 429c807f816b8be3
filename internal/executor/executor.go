// Package executor runs exactly one compiled pipeline.Step to completion:
// attempt, timeout, exponential-backoff retry, cancellation, container
// cleanup, per spec §4.4. This is the most state-machine-heavy piece of
// the core, grounded on the attempt/retry loop the teacher's Execer.exec
// (pipeline/runtime/execer.go) drives per step, generalized here to own
// its own timeout and backoff rather than delegating to the engine.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docker/go-units"

	"github.com/ciroach/ciroach/internal/cancel"
	"github.com/ciroach/ciroach/internal/driver"
	"github.com/ciroach/ciroach/internal/logstream"
	"github.com/ciroach/ciroach/internal/pipeline"
	"github.com/ciroach/ciroach/internal/report"
)

// cleanupTimeout bounds the force-remove call issued once a step's own
// context has already expired or been cancelled.
const cleanupTimeout = 10 * time.Second

// Execute runs step to a terminal StepReport. It never panics and never
// returns an error; every failure mode is represented in the report.
func Execute(
	ctx context.Context,
	step pipeline.Step,
	drv driver.Driver,
	cwd, user string,
	emit logstream.Emitter,
	token *cancel.Token,
) report.StepReport {
	start := time.Now()
	slot := &containerSlot{}

	retries := 0
	for {
		err := attempt(ctx, step, drv, cwd, user, emit, token, slot)
		elapsed := time.Since(start).Milliseconds()

		if token.IsCancelled() {
			return report.NewCancelled(step.ExplodedName, retries, elapsed)
		}
		if err == nil {
			return report.NewSuccess(step.ExplodedName, retries, elapsed)
		}
		if retries >= step.MaxRetries {
			token.Cancel()
			return report.NewFailed(step.ExplodedName, retries, elapsed)
		}

		retries++
		emit.Emit(logstream.LogEvent{
			StepName: step.ExplodedName,
			Line:     fmt.Sprintf("Retrying step (%d/%d) - Error: %s", retries, step.MaxRetries, err),
			IsError:  true,
		}, token.Done())

		if !sleepOrCancel(time.Duration(1<<uint(retries))*time.Second, token) {
			return report.NewCancelled(step.ExplodedName, retries, time.Since(start).Milliseconds())
		}
	}
}

// containerSlot tracks the currently running container id under mutual
// exclusion so the cancellation path and the normal completion path can
// both reach it safely (spec §4.4, §7).
type containerSlot struct {
	mu sync.Mutex
	id string
}

func (s *containerSlot) set(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

func (s *containerSlot) clear() {
	s.mu.Lock()
	s.id = ""
	s.mu.Unlock()
}

func (s *containerSlot) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// attempt runs one start/stream/inspect cycle under step.Timeout, watched
// by a reaper goroutine that force-removes the attempt's container the
// moment cancellation or the attempt's own deadline fires.
func attempt(
	ctx context.Context,
	step pipeline.Step,
	drv driver.Driver,
	cwd, user string,
	emit logstream.Emitter,
	token *cancel.Token,
	slot *containerSlot,
) error {
	attemptCtx, stop := context.WithTimeout(ctx, step.Timeout)
	stopReaper := make(chan struct{})
	reaperDone := make(chan struct{})
	go reap(attemptCtx, token, stopReaper, slot, drv, reaperDone)

	// Declared in this order so, in LIFO execution, stopReaper closes
	// first (waking a still-healthy reaper with nothing to clean up),
	// then we wait for it to exit, then the attempt's own timeout is
	// released.
	defer stop()
	defer func() { <-reaperDone }()
	defer close(stopReaper)

	spec := driver.ContainerSpec{
		ExplodedName: step.ExplodedName,
		Image:        step.Image,
		Command:      step.Command,
		MemoryBytes:  step.MemoryBytes,
		Env:          step.Env,
	}

	emit.Emit(logstream.LogEvent{
		StepName: step.ExplodedName,
		Line:     fmt.Sprintf("Preparing image: %s", step.Image),
	}, token.Done())

	id, err := drv.RunContainer(attemptCtx, spec, cwd, user)
	if err != nil {
		return fmt.Errorf("starting container: %w", err)
	}
	slot.set(id)

	if err := drv.StreamLogs(attemptCtx, id, step.ExplodedName, emit, token); err != nil {
		return fmt.Errorf("streaming logs: %w", err)
	}

	state, err := drv.GetExitState(attemptCtx, id)
	slot.clear()
	if err != nil {
		if attemptCtx.Err() != nil {
			emit.Emit(logstream.LogEvent{
				StepName: step.ExplodedName,
				Line:     fmt.Sprintf("step timed out after %s", step.Timeout),
				IsError:  true,
			}, token.Done())
		}
		return fmt.Errorf("inspecting container: %w", err)
	}

	if state.OOMKilled {
		emit.Emit(logstream.LogEvent{
			StepName: step.ExplodedName,
			Line:     fmt.Sprintf("System ran out of memory (limit: %s)", units.BytesSize(float64(step.MemoryBytes))),
			IsError:  true,
		}, token.Done())
		return fmt.Errorf("container was OOM-killed")
	}
	if state.ExitCode != 0 {
		emit.Emit(logstream.LogEvent{
			StepName: step.ExplodedName,
			Line:     fmt.Sprintf("Process exited with code %d", state.ExitCode),
			IsError:  true,
		}, token.Done())
		return fmt.Errorf("process exited with code %d", state.ExitCode)
	}

	return nil
}

// reap force-removes the attempt's container as soon as its context ends
// (timeout) or the pipeline-wide token fires, so a cancelled or
// timed-out attempt never leaves a container running. It uses a fresh
// background-derived context for the removal call itself since ctx may
// already be expired or cancelled.
func reap(ctx context.Context, token *cancel.Token, stop <-chan struct{}, slot *containerSlot, drv driver.Driver, done chan<- struct{}) {
	defer close(done)
	select {
	case <-ctx.Done():
	case <-token.Done():
	case <-stop:
		return
	}
	if id := slot.get(); id != "" {
		cleanupCtx, cancelFn := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancelFn()
		_ = drv.ForceRemoveContainer(cleanupCtx, id)
	}
}

func sleepOrCancel(d time.Duration, token *cancel.Token) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-token.Done():
		return false
	}
}
