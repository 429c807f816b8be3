package rawpipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMemoryBytes(t *testing.T) {
	cases := []struct {
		name string
		mem  string
		want int64
	}{
		{"gigabytes", "1gb", 1073741824},
		{"megabytes", "512mb", 536870912},
		{"kilobytes", "1024kb", 1048576},
		{"raw bytes", "2048", 2048},
		{"default", "", DefaultMemoryBytes},
		{"uppercase suffix", "1GB", 1073741824},
		{"whitespace", "  512mb  ", 536870912},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			step := RawStep{Memory: tc.mem}
			got, err := step.MemoryBytes()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("MemoryBytes(%q) = %d, want %d", tc.mem, got, tc.want)
			}
		})
	}
}

func TestMemoryBytesMalformed(t *testing.T) {
	step := RawStep{Memory: "lots"}
	if _, err := step.MemoryBytes(); err == nil {
		t.Error("expected an error for malformed memory string, got nil")
	}
}

func TestParseStepOrder(t *testing.T) {
	doc := `
stages_order = ["build"]

[stages.build.steps.third]
image = "alpine"
command = "echo 3"

[stages.build.steps.first]
image = "alpine"
command = "echo 1"

[stages.build.steps.second]
image = "alpine"
command = "echo 2"
`
	raw, order, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(raw.Stages["build"].Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(raw.Stages["build"].Steps))
	}

	want := []string{"third", "first", "second"}
	if diff := cmp.Diff(want, order["build"]); diff != "" {
		t.Errorf("step order mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMatrixAndNeeds(t *testing.T) {
	doc := `
stages_order = ["test"]

[stages.test.steps.unit]
image = "golang:${{ VERSION }}"
command = "go test ./..."
needs = ["lint"]

[stages.test.steps.unit.matrix]
variable = "VERSION"
values = ["1.22", "1.23"]
`
	raw, _, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	step := raw.Stages["test"].Steps["unit"]
	if step.Matrix == nil || step.Matrix.Variable != "VERSION" {
		t.Fatalf("expected matrix with variable VERSION, got %+v", step.Matrix)
	}
	if diff := cmp.Diff([]string{"1.22", "1.23"}, step.Matrix.Values); diff != "" {
		t.Errorf("matrix values mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"lint"}, step.Needs); diff != "" {
		t.Errorf("needs mismatch (-want +got):\n%s", diff)
	}
}
