package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ciroach/ciroach/internal/cancel"
	"github.com/ciroach/ciroach/internal/driver"
	"github.com/ciroach/ciroach/internal/logstream"
	"github.com/ciroach/ciroach/internal/pipeline"
	"github.com/ciroach/ciroach/internal/report"
)

// fakeDriver is an in-memory driver.Driver for exercising the executor's
// state machine without a real container daemon.
type fakeDriver struct {
	mu        sync.Mutex
	runCount  int32
	exitCodes []int64 // one per RunContainer call, in order; last value repeats if exhausted
	oom       bool
	hang      bool // if true, StreamLogs blocks until ctx is done
	removed   []string
}

func (f *fakeDriver) PullImage(ctx context.Context, image string) error { return nil }

func (f *fakeDriver) RunContainer(ctx context.Context, spec driver.ContainerSpec, cwd, user string) (string, error) {
	n := atomic.AddInt32(&f.runCount, 1)
	return fmt.Sprintf("container-%d", n), nil
}

func (f *fakeDriver) StreamLogs(ctx context.Context, containerID, stepName string, emit logstream.Emitter, token *cancel.Token) error {
	if f.hang {
		select {
		case <-ctx.Done():
		case <-token.Done():
		}
	}
	return nil
}

func (f *fakeDriver) GetExitState(ctx context.Context, containerID string) (driver.ExitState, error) {
	if f.hang && ctx.Err() != nil {
		return driver.ExitState{}, fmt.Errorf("context done: %w", ctx.Err())
	}
	f.mu.Lock()
	idx := int(atomic.LoadInt32(&f.runCount)) - 1
	var code int64
	if idx >= 0 && idx < len(f.exitCodes) {
		code = f.exitCodes[idx]
	} else if len(f.exitCodes) > 0 {
		code = f.exitCodes[len(f.exitCodes)-1]
	}
	f.mu.Unlock()
	return driver.ExitState{ExitCode: code, OOMKilled: f.oom}, nil
}

func (f *fakeDriver) ForceRemoveContainer(ctx context.Context, idOrName string) error {
	f.mu.Lock()
	f.removed = append(f.removed, idOrName)
	f.mu.Unlock()
	return nil
}

type discardEmitter struct{}

func (discardEmitter) Emit(evt logstream.LogEvent, done <-chan struct{}) {}

func testStep(maxRetries int, timeout time.Duration) pipeline.Step {
	return pipeline.Step{Name: "s", ExplodedName: "s", Image: "img", Command: "cmd", MaxRetries: maxRetries, Timeout: timeout}
}

func TestExecuteSuccess(t *testing.T) {
	drv := &fakeDriver{exitCodes: []int64{0}}
	token := cancel.New()

	got := Execute(context.Background(), testStep(0, time.Second), drv, "/tmp", "1000:1000", discardEmitter{}, token)

	if got.Status != report.Success {
		t.Fatalf("expected Success, got %v", got.Status)
	}
	if got.Retries != 0 {
		t.Errorf("expected 0 retries, got %d", got.Retries)
	}
}

func TestExecuteFailsAfterExhaustingRetries(t *testing.T) {
	drv := &fakeDriver{exitCodes: []int64{1, 1, 1}}
	token := cancel.New()

	got := Execute(context.Background(), testStep(2, 50*time.Millisecond), drv, "/tmp", "1000:1000", discardEmitter{}, token)

	if got.Status != report.Failed {
		t.Fatalf("expected Failed, got %v", got.Status)
	}
	if got.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", got.Retries)
	}
	if !token.IsCancelled() {
		t.Error("expected executor to request global cancellation after exhausting retries")
	}
}

func TestExecuteSucceedsAfterTransientFailure(t *testing.T) {
	drv := &fakeDriver{exitCodes: []int64{1, 0}}
	token := cancel.New()

	got := Execute(context.Background(), testStep(2, time.Second), drv, "/tmp", "1000:1000", discardEmitter{}, token)

	if got.Status != report.Success {
		t.Fatalf("expected Success, got %v", got.Status)
	}
	if got.Retries != 1 {
		t.Errorf("expected 1 retry before success, got %d", got.Retries)
	}
}

func TestExecuteOOMKillFails(t *testing.T) {
	drv := &fakeDriver{exitCodes: []int64{0}, oom: true}
	token := cancel.New()

	got := Execute(context.Background(), testStep(0, time.Second), drv, "/tmp", "1000:1000", discardEmitter{}, token)

	if got.Status != report.Failed {
		t.Fatalf("expected Failed on OOM kill, got %v", got.Status)
	}
}

func TestExecuteTimeoutIsRetriedThenFails(t *testing.T) {
	drv := &fakeDriver{hang: true}
	token := cancel.New()

	got := Execute(context.Background(), testStep(1, 20*time.Millisecond), drv, "/tmp", "1000:1000", discardEmitter{}, token)

	if got.Status != report.Failed {
		t.Fatalf("expected Failed on timeout once retries are exhausted, got %v", got.Status)
	}
	if got.Retries != 1 {
		t.Errorf("expected the timed-out attempt to be retried once, got %d retries", got.Retries)
	}
}

func TestExecuteCancelledDuringBackoffReportsCancelled(t *testing.T) {
	drv := &fakeDriver{exitCodes: []int64{1}}
	token := cancel.New()

	go func() {
		time.Sleep(20 * time.Millisecond)
		token.Cancel()
	}()

	got := Execute(context.Background(), testStep(3, time.Second), drv, "/tmp", "1000:1000", discardEmitter{}, token)

	if got.Status != report.Cancelled {
		t.Fatalf("expected Cancelled, got %v", got.Status)
	}
}

func TestExecuteAlreadyCancelledReportsCancelled(t *testing.T) {
	drv := &fakeDriver{hang: true}
	token := cancel.New()
	token.Cancel()

	got := Execute(context.Background(), testStep(0, time.Second), drv, "/tmp", "1000:1000", discardEmitter{}, token)

	if got.Status != report.Cancelled {
		t.Fatalf("expected Cancelled for a pre-cancelled token, got %v", got.Status)
	}
}
