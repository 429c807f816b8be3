package report

import "testing"

func TestPipelineReportSuccess(t *testing.T) {
	cases := []struct {
		name string
		pr   PipelineReport
		want bool
	}{
		{
			name: "all success",
			pr: PipelineReport{StageReports: []StageReport{
				{StepReports: []StepReport{NewSuccess("a", 0, 10), NewSuccess("b", 1, 20)}},
			}},
			want: true,
		},
		{
			name: "one failed step fails the pipeline",
			pr: PipelineReport{StageReports: []StageReport{
				{StepReports: []StepReport{NewSuccess("a", 0, 10)}},
				{StepReports: []StepReport{NewFailed("b", 2, 30)}},
			}},
			want: false,
		},
		{
			name: "cancelled and skipped do not fail the pipeline",
			pr: PipelineReport{StageReports: []StageReport{
				{StepReports: []StepReport{NewCancelled("a", 0, 5)}},
				{StepReports: []StepReport{NewSkipped("b")}},
			}},
			want: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pr.Success(); got != tc.want {
				t.Errorf("Success() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestStepStatusString(t *testing.T) {
	if Failed.String() != "Failed" {
		t.Errorf("Failed.String() = %q, want %q", Failed.String(), "Failed")
	}
}
