package reportrender

import (
	"fmt"
	"os"
	"strings"

	"github.com/ciroach/ciroach/internal/report"
)

// File writes a plain-text rendering of rep to path: per-stage status
// lines followed by the full per-step log archive, grounded on
// original_source/src/reporter/file.rs.
func File(path string, rep report.PipelineReport) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating build log %q: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	b.WriteString("--- Pipeline Report ---\n\n")

	for i, stage := range rep.StageReports {
		for _, step := range stage.StepReports {
			fmt.Fprintf(&b, "Stage %d | Step: %s | Status: %s | Retries: %d | Elapsed: %dms\n",
				i+1, step.Name, step.Status, step.Retries, step.ElapsedMs)
		}
	}

	b.WriteString("\n--- Logs ---\n")
	for stepName, lines := range rep.Logs {
		fmt.Fprintf(&b, "\n=== %s ===\n", strings.ToUpper(stepName))
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	if _, err := f.WriteString(b.String()); err != nil {
		return fmt.Errorf("writing build log %q: %w", path, err)
	}
	return nil
}
