// Package orchestrator sequences a compiled pipeline.Pipeline end to end:
// stage order, image pre-pull, scheduler dispatch, cancellation
// propagation on failure, and final report assembly (spec §4.6).
// Grounded on the teacher's Execer.Exec (pipeline/runtime/execer.go),
// which owns the analogous per-run setup/run/report/destroy sequence.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/ciroach/ciroach/internal/cancel"
	"github.com/ciroach/ciroach/internal/driver"
	"github.com/ciroach/ciroach/internal/logger"
	"github.com/ciroach/ciroach/internal/logstream"
	"github.com/ciroach/ciroach/internal/pipeline"
	"github.com/ciroach/ciroach/internal/report"
	"github.com/ciroach/ciroach/internal/scheduler"
	"github.com/ciroach/ciroach/internal/ui"
)

// Run executes pipe stage by stage and returns the assembled
// PipelineReport. It never returns an error for step-level failures —
// those are represented in the report — only for a deadlocked stage,
// which is an implementation-level fault rather than a pipeline outcome.
// A nil reporter is treated as ui.Noop{}.
func Run(
	ctx context.Context,
	pipe *pipeline.Pipeline,
	drv driver.Driver,
	cwd, user string,
	token *cancel.Token,
	reporter ui.Reporter,
) (report.PipelineReport, error) {
	if reporter == nil {
		reporter = ui.Noop{}
	}
	log := logger.FromContext(ctx)
	mux := logstream.New(logstream.DefaultBuffer)

	var stageReports []report.StageReport

	for _, stage := range pipe.Stages {
		if token.IsCancelled() {
			stageReports = append(stageReports, skipAll(stage))
			continue
		}

		if err := prePull(ctx, drv, stage, reporter); err != nil {
			log.WithField("stage", stage.Name).WithError(err).Errorln("image pre-pull failed")
			token.Cancel()
			stageReports = append(stageReports, failAll(stage))
			continue
		}

		stageReport, err := scheduler.Run(ctx, stage, drv, cwd, user, mux, token)
		if err != nil {
			mux.Close()
			return report.PipelineReport{}, fmt.Errorf("running stage %q: %w", stage.Name, err)
		}

		if !stageReport.Success() {
			token.Cancel()
		}

		stageReports = append(stageReports, stageReport)
	}

	logs := mux.Close()
	return report.PipelineReport{StageReports: stageReports, Logs: logs}, nil
}

// prePull pulls every distinct image referenced by stage's steps in
// parallel via an errgroup (the teacher's own module, the semaphore
// subpackage dropped — see DESIGN.md); every pull runs to completion
// regardless of siblings failing, and their errors are merged with
// go-multierror (the same aggregation the teacher applies to run-level
// errors in execer.go) before failing the whole stage (spec §4.6).
func prePull(ctx context.Context, drv driver.Driver, stage pipeline.Stage, reporter ui.Reporter) error {
	images := map[string]bool{}
	for _, step := range stage.Steps {
		images[step.Image] = true
	}

	var (
		g      errgroup.Group
		mu     sync.Mutex
		merged *multierror.Error
	)
	for img := range images {
		img := img
		reporter.Start(img)
		g.Go(func() error {
			if err := drv.PullImage(ctx, img); err != nil {
				reporter.Fail(img, err)
				mu.Lock()
				merged = multierror.Append(merged, fmt.Errorf("pulling %q: %w", img, err))
				mu.Unlock()
				return nil
			}
			reporter.Succeed(img)
			return nil
		})
	}
	g.Wait()

	return merged.ErrorOrNil()
}

func skipAll(stage pipeline.Stage) report.StageReport {
	var sr report.StageReport
	for _, step := range stage.Steps {
		sr.StepReports = append(sr.StepReports, report.NewSkipped(step.ExplodedName))
	}
	return sr
}

func failAll(stage pipeline.Stage) report.StageReport {
	var sr report.StageReport
	for _, step := range stage.Steps {
		sr.StepReports = append(sr.StepReports, report.NewFailed(step.ExplodedName, 0, 0))
	}
	return sr
}
