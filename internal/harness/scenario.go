package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/asidbench/internal/config"
	"github.com/roach88/asidbench/internal/report"
)

// Scenario defines one declarative stress scenario: a configuration plus
// expectations about the aggregate outcome.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description"`

	// Config is the run configuration, overlaid on the defaults.
	Config config.Config `yaml:"config"`

	// Expect holds outcome expectations.
	Expect Expect `yaml:"expect"`
}

// Expect specifies the expected aggregate outcome of a scenario.
// Only specified fields are validated.
type Expect struct {
	// Verdict is "pass" or "fail".
	Verdict string `yaml:"verdict"`

	// MinOperations is a lower bound on the total operation count.
	MinOperations uint64 `yaml:"min_operations,omitempty"`

	// Succeeded, when set, is the exact expected count of successful units.
	Succeeded *int `yaml:"succeeded,omitempty"`

	// Mismatches, when set, is the exact expected aggregate mismatch count.
	Mismatches *uint64 `yaml:"mismatches,omitempty"`
}

// LoadScenario reads and validates one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	s := &Scenario{Config: config.Default()}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s: missing name", path)
	}
	switch s.Expect.Verdict {
	case "pass", "fail":
	default:
		return nil, fmt.Errorf("scenario %s: expect.verdict must be \"pass\" or \"fail\", got %q", path, s.Expect.Verdict)
	}
	if err := s.Config.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// Evaluate checks the aggregate result against the scenario's expectations
// and returns one message per violated expectation.
func (s *Scenario) Evaluate(res *report.AggregateResult) []string {
	var errs []string

	wantPass := s.Expect.Verdict == "pass"
	if res.Passed != wantPass {
		errs = append(errs, fmt.Sprintf("verdict: expected %s, got passed=%v", s.Expect.Verdict, res.Passed))
	}
	if res.TotalOperations < s.Expect.MinOperations {
		errs = append(errs, fmt.Sprintf("operations: expected >= %d, got %d", s.Expect.MinOperations, res.TotalOperations))
	}
	if s.Expect.Succeeded != nil && res.Succeeded != *s.Expect.Succeeded {
		errs = append(errs, fmt.Sprintf("succeeded units: expected %d, got %d", *s.Expect.Succeeded, res.Succeeded))
	}
	if s.Expect.Mismatches != nil && res.TotalMismatches != *s.Expect.Mismatches {
		errs = append(errs, fmt.Sprintf("mismatches: expected %d, got %d", *s.Expect.Mismatches, res.TotalMismatches))
	}
	return errs
}
