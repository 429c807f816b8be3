// Package rawpipeline decodes the declarative TOML pipeline description
// into the uncompiled shape the compiler consumes. This is the boundary
// named in spec §6.1; nothing downstream of Parse sees TOML.
package rawpipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultMemoryBytes is applied to a step when no memory string is given.
const DefaultMemoryBytes int64 = 512 * 1024 * 1024

// RawPipeline is the direct TOML decoding target for a pipeline.toml file.
type RawPipeline struct {
	StagesOrder []string            `toml:"stages_order"`
	Stages      map[string]RawStage `toml:"stages"`
}

// RawStage holds one stage's steps, keyed by step identifier.
type RawStage struct {
	Steps map[string]RawStep `toml:"steps"`
}

// RawStep is one declared step before matrix expansion or memory parsing.
type RawStep struct {
	Image      string        `toml:"image"`
	Command    string        `toml:"command"`
	Memory     string        `toml:"memory"`
	Needs      []string      `toml:"needs"`
	Env        []string      `toml:"env"`
	Matrix     *MatrixConfig `toml:"matrix"`
	MaxRetries int           `toml:"max_retries"`
	Timeout    int           `toml:"timeout"` // seconds; 0 means "use the default"
}

// MatrixConfig fans a step out into one instance per value.
type MatrixConfig struct {
	Variable string   `toml:"variable"`
	Values   []string `toml:"values"`
}

// MemoryBytes parses the step's memory string per spec §4.1's decoder:
// lowercase, trim, strip a gb/mb/kb suffix and scale accordingly, else
// treat the remainder as raw bytes. An empty string yields the default.
func (s RawStep) MemoryBytes() (int64, error) {
	if strings.TrimSpace(s.Memory) == "" {
		return DefaultMemoryBytes, nil
	}

	mem := strings.ToLower(strings.TrimSpace(s.Memory))

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(mem, "gb"):
		multiplier = 1024 * 1024 * 1024
		mem = strings.TrimSuffix(mem, "gb")
	case strings.HasSuffix(mem, "mb"):
		multiplier = 1024 * 1024
		mem = strings.TrimSuffix(mem, "mb")
	case strings.HasSuffix(mem, "kb"):
		multiplier = 1024
		mem = strings.TrimSuffix(mem, "kb")
	}

	digits := strings.TrimSpace(mem)
	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid memory format %q: use e.g. %q or %q", s.Memory, "512mb", "1gb")
	}

	return value * multiplier, nil
}

// StepOrder returns, for every stage, the declaration order of its step
// identifiers as they appeared in the source TOML. Go maps have no
// intrinsic order, so Parse derives this from the decoder's key metadata
// rather than from RawStage.Steps itself.
type StepOrder map[string][]string

// Parse decodes TOML bytes into a RawPipeline plus the per-stage step
// declaration order recovered from the document's key metadata.
func Parse(data []byte) (*RawPipeline, StepOrder, error) {
	var raw RawPipeline
	meta, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing pipeline TOML: %w", err)
	}

	order := StepOrder{}
	seen := map[string]map[string]bool{}
	for _, key := range meta.Keys() {
		parts := []string(key)
		if len(parts) < 4 || parts[0] != "stages" || parts[2] != "steps" {
			continue
		}
		stage, step := parts[1], parts[3]
		if seen[stage] == nil {
			seen[stage] = map[string]bool{}
		}
		if seen[stage][step] {
			continue
		}
		seen[stage][step] = true
		order[stage] = append(order[stage], step)
	}

	return &raw, order, nil
}
