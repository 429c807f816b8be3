// Package reportrender renders a report.PipelineReport for a human
// (console) and for a timestamped build log file, grounded on
// original_source/src/reporter/console.rs and file.rs.
package reportrender

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ciroach/ciroach/internal/report"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	headingStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	stepNameStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
)

// Console writes a human-readable rendering of rep to w: the full
// per-step log archive followed by a per-stage status summary.
func Console(w io.Writer, rep report.PipelineReport) {
	fmt.Fprintln(w, headingStyle.Render("Pipeline Execution Logs"))
	for stepName, lines := range rep.Logs {
		fmt.Fprintf(w, "\n=== %s ===\n", strings.ToUpper(stepName))
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
	}

	fmt.Fprintln(w, "\n"+headingStyle.Render("Summary"))
	for i, stage := range rep.StageReports {
		fmt.Fprintf(w, "Stage %d:\n", i+1)
		for _, step := range stage.StepReports {
			fmt.Fprintf(w, "  %s %s: %dms (retries %d)\n", statusLabel(step.Status), stepNameStyle.Render(step.Name), step.ElapsedMs, step.Retries)
		}
	}

	if rep.Success() {
		fmt.Fprintln(w, "\n"+successStyle.Render("BUILD SUCCEEDED"))
	} else {
		fmt.Fprintln(w, "\n"+failedStyle.Render("BUILD FAILED"))
	}
}

func statusLabel(status report.StepStatus) string {
	switch status {
	case report.Success:
		return successStyle.Render("[OK]")
	case report.Failed:
		return failedStyle.Render("[FAIL]")
	case report.Cancelled:
		return failedStyle.Render("[CANCELLED]")
	case report.Skipped:
		return skippedStyle.Render("[SKIP]")
	default:
		return "[?]"
	}
}
