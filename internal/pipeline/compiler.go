package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ciroach/ciroach/internal/configerr"
	"github.com/ciroach/ciroach/internal/logger"
	"github.com/ciroach/ciroach/internal/rawpipeline"
)

// Compile turns a decoded rawpipeline.RawPipeline into an executable
// Pipeline: it expands matrix steps, resolves memory strings, defaults
// unset timeouts, and validates every needs reference names a step that
// actually exists (spec §4.1). It does not itself reject a cyclic needs
// graph — a stage that can never become ready is a DeadlockError, not a
// ConfigError (spec §7), and the scheduler's own readiness loop is the
// single place that already detects and classifies it at runtime
// (internal/scheduler.Run); duplicating that check here would just give
// the same fault two different error classes depending on which layer
// happened to notice it first.
//
// A stage named in StagesOrder but absent from Stages (or with no steps)
// is skipped with a warning rather than failing the whole compile; this
// mirrors the teacher's tolerance of a stage block declared but left
// empty during authoring.
func Compile(ctx context.Context, raw *rawpipeline.RawPipeline, order rawpipeline.StepOrder) (*Pipeline, error) {
	log := logger.FromContext(ctx)

	out := &Pipeline{}

	for _, stageName := range raw.StagesOrder {
		rawStage, ok := raw.Stages[stageName]
		if !ok || len(rawStage.Steps) == 0 {
			log.WithField("stage", stageName).Warnln("skipping stage: not declared or has no steps")
			continue
		}

		stage, err := compileStage(stageName, rawStage, order[stageName])
		if err != nil {
			return nil, err
		}

		out.Stages = append(out.Stages, stage)
	}

	if len(out.Stages) == 0 {
		return nil, fmt.Errorf("%w: no runnable stages", configerr.ErrConfig)
	}

	return out, nil
}

func compileStage(stageName string, raw rawpipeline.RawStage, stepNames []string) (Stage, error) {
	stage := Stage{Name: stageName}

	for _, name := range stepNames {
		rawStep, ok := raw.Steps[name]
		if !ok {
			continue
		}

		memBytes, err := rawStep.MemoryBytes()
		if err != nil {
			return Stage{}, fmt.Errorf("%w: stage %q step %q: %v", configerr.ErrConfig, stageName, name, err)
		}

		timeout := DefaultTimeout
		if rawStep.Timeout > 0 {
			timeout = time.Duration(rawStep.Timeout) * time.Second
		}

		instances := expandMatrix(name, rawStep)
		for _, inst := range instances {
			stage.Steps = append(stage.Steps, Step{
				Name:         name,
				ExplodedName: inst.explodedName,
				Image:        inst.image,
				Command:      inst.command,
				MemoryBytes:  memBytes,
				Needs:        rawStep.Needs,
				Env:          rawStep.Env,
				MaxRetries:   rawStep.MaxRetries,
				Timeout:      timeout,
			})
		}
	}

	for _, name := range stage.needsReferences() {
		if !stage.hasBaseStep(name) {
			return Stage{}, fmt.Errorf("%w: stage %q: needs %q but no such step is declared", configerr.ErrConfig, stageName, name)
		}
	}

	return stage, nil
}

type stepInstance struct {
	explodedName string
	image        string
	command      string
}

// expandMatrix fans a step with a matrix declaration out into one
// instance per value, substituting ${{ VAR }} into image and command; a
// step without a matrix yields exactly one instance, named after itself.
func expandMatrix(name string, raw rawpipeline.RawStep) []stepInstance {
	if raw.Matrix == nil || len(raw.Matrix.Values) == 0 {
		return []stepInstance{{explodedName: name, image: raw.Image, command: raw.Command}}
	}

	varPattern := regexp.MustCompile(`\$\{\{\s*` + regexp.QuoteMeta(raw.Matrix.Variable) + `\s*\}\}`)

	instances := make([]stepInstance, 0, len(raw.Matrix.Values))
	for _, value := range raw.Matrix.Values {
		instances = append(instances, stepInstance{
			explodedName: fmt.Sprintf("%s-%s", name, value),
			image:        varPattern.ReplaceAllString(raw.Image, value),
			command:      varPattern.ReplaceAllString(raw.Command, value),
		})
	}
	return instances
}

// needsReferences returns the distinct set of base step names any step in
// the stage declares as a dependency.
func (s Stage) needsReferences() []string {
	seen := map[string]bool{}
	var out []string
	for _, step := range s.Steps {
		for _, need := range step.Needs {
			if !seen[need] {
				seen[need] = true
				out = append(out, need)
			}
		}
	}
	return out
}

func (s Stage) hasBaseStep(name string) bool {
	for _, step := range s.Steps {
		if step.Name == name {
			return true
		}
	}
	return false
}
