package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asidbench/internal/report"
)

// TestLoadScenario reads a scenario file and overlays its config on the
// defaults.
func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/smoke.yaml")
	require.NoError(t, err)

	assert.Equal(t, "smoke", s.Name)
	assert.Equal(t, "pass", s.Expect.Verdict)
	assert.Equal(t, 4, s.Config.ThreadsPerProcess)
	assert.Equal(t, 64*1024, s.Config.RegionBytes)
	// Unspecified fields keep their defaults.
	assert.Equal(t, 10, s.Config.Intensity)
	require.NotNil(t, s.Expect.Mismatches)
	assert.Zero(t, *s.Expect.Mismatches)
}

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// TestLoadScenario_Validation rejects malformed scenario files.
func TestLoadScenario_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing name", "expect:\n  verdict: pass\n"},
		{"bad verdict", "name: x\nexpect:\n  verdict: maybe\n"},
		{"invalid config", "name: x\nconfig:\n  processes: -1\nexpect:\n  verdict: pass\n"},
		{"not yaml", "{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			assert.Error(t, err)
		})
	}
}

// TestScenario_Evaluate reports one message per violated expectation.
func TestScenario_Evaluate(t *testing.T) {
	succeeded := 4
	mismatches := uint64(0)
	s := &Scenario{
		Name: "eval",
		Expect: Expect{
			Verdict:       "pass",
			MinOperations: 1000,
			Succeeded:     &succeeded,
			Mismatches:    &mismatches,
		},
	}

	good := &report.AggregateResult{
		Passed:          true,
		TotalOperations: 5000,
		Succeeded:       4,
	}
	assert.Empty(t, s.Evaluate(good))

	bad := &report.AggregateResult{
		Passed:          false,
		TotalOperations: 10,
		Succeeded:       3,
		TotalMismatches: 2,
	}
	assert.Len(t, s.Evaluate(bad), 4)
}

// TestScenario_Evaluate_FailVerdict: a scenario can expect the run to fail.
func TestScenario_Evaluate_FailVerdict(t *testing.T) {
	s := &Scenario{Name: "expect-fail", Expect: Expect{Verdict: "fail"}}

	assert.Empty(t, s.Evaluate(&report.AggregateResult{Passed: false}))
	assert.Len(t, s.Evaluate(&report.AggregateResult{Passed: true}), 1)
}
