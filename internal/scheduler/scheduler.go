// Package scheduler runs one compiled pipeline.Stage: it starts step
// instances as they become ready under the stage's intra-stage `needs`
// graph and collects their StepReports, per spec §4.5. Grounded on the
// started/completed bookkeeping original_source/src/runner/stage.rs
// performs explicitly, since the teacher's own dag.Runner executes a
// graph outright rather than exposing a readiness-driven loop.
//
// This is also the sole place a cyclic needs graph is detected: a stage
// built from a cycle never has a ready, un-started step once the
// in-flight count drops to zero, which Run reports as ErrDeadlock (spec
// §7) rather than rejecting the cycle earlier at compile time.
package scheduler

import (
	"context"
	"fmt"

	"github.com/ciroach/ciroach/internal/cancel"
	"github.com/ciroach/ciroach/internal/configerr"
	"github.com/ciroach/ciroach/internal/driver"
	"github.com/ciroach/ciroach/internal/executor"
	"github.com/ciroach/ciroach/internal/logstream"
	"github.com/ciroach/ciroach/internal/pipeline"
	"github.com/ciroach/ciroach/internal/report"
)

// Run schedules stage's step instances, honoring their base-name needs,
// and returns a StageReport covering every declared step exactly once.
func Run(
	ctx context.Context,
	stage pipeline.Stage,
	drv driver.Driver,
	cwd, user string,
	emit logstream.Emitter,
	token *cancel.Token,
) (report.StageReport, error) {
	started := map[string]bool{}
	completedByBaseName := map[string]int{}
	totalByBaseName := map[string]int{}
	reportsByName := map[string]report.StepReport{}

	for _, step := range stage.Steps {
		totalByBaseName[step.Name]++
	}

	results := make(chan report.StepReport)
	inFlight := 0

	for {
		if !token.IsCancelled() {
			for _, step := range stage.Steps {
				if started[step.ExplodedName] {
					continue
				}
				if !ready(step, completedByBaseName, totalByBaseName) {
					continue
				}
				started[step.ExplodedName] = true
				inFlight++
				go func(s pipeline.Step) {
					results <- executor.Execute(ctx, s, drv, cwd, user, emit, token)
				}(step)
			}
		}

		if inFlight == 0 {
			if token.IsCancelled() || len(started) == len(stage.Steps) {
				break
			}
			return report.StageReport{}, fmt.Errorf("%w: stage %q: no step is ready and none is running", configerr.ErrDeadlock, stage.Name)
		}

		r := <-results
		inFlight--
		reportsByName[r.Name] = r
		completedByBaseName[baseNameOf(stage, r.Name)]++
	}

	var stageReport report.StageReport
	for _, step := range stage.Steps {
		if r, ok := reportsByName[step.ExplodedName]; ok {
			stageReport.StepReports = append(stageReport.StepReports, r)
			continue
		}
		if started[step.ExplodedName] {
			stageReport.StepReports = append(stageReport.StepReports, report.StepReport{Name: step.ExplodedName, Status: report.Failed})
			continue
		}
		stageReport.StepReports = append(stageReport.StepReports, report.NewSkipped(step.ExplodedName))
	}

	return stageReport, nil
}

// ready reports whether every base name step needs has every one of its
// exploded instances accounted for as completed.
func ready(step pipeline.Step, completedByBaseName, totalByBaseName map[string]int) bool {
	for _, need := range step.Needs {
		if completedByBaseName[need] < totalByBaseName[need] {
			return false
		}
	}
	return true
}

func baseNameOf(stage pipeline.Stage, explodedName string) string {
	for _, step := range stage.Steps {
		if step.ExplodedName == explodedName {
			return step.Name
		}
	}
	return explodedName
}
