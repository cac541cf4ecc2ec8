package harness

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asidbench/internal/config"
	"github.com/roach88/asidbench/internal/profiling"
	"github.com/roach88/asidbench/internal/testutil"
)

func harnessConfig() config.Config {
	cfg := config.Default()
	cfg.ThreadsPerProcess = 2
	cfg.RegionBytes = 64 * 1024
	cfg.Cycles = 5
	cfg.AccessesPerCycle = 100
	cfg.StaggerDelay = 0
	cfg.BatchPause = 0
	cfg.SampleInterval = 20 * time.Millisecond
	return cfg
}

// TestHarness_ThreadMode runs an in-process two-thread population against a
// scripted counter source and expects a passing result with full
// diagnostics.
func TestHarness_ThreadMode(t *testing.T) {
	src := &testutil.FakeSource{Script: []profiling.Stats{
		{AllocationsTotal: 100},
		{AllocationsTotal: 500},
	}}
	h := New(harnessConfig(), WithSource(src), WithRunID("run-thread"))

	res, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-thread", res.RunID)
	assert.True(t, res.Passed)
	assert.Equal(t, 2, res.ExpectedUnits)
	assert.Equal(t, 2, res.Succeeded)
	assert.Zero(t, res.FailedUnits)
	assert.Zero(t, res.TotalMismatches)
	assert.NotZero(t, res.TotalOperations)
	assert.True(t, res.DiagnosticsAvailable)
	assert.GreaterOrEqual(t, res.SampleCount, 2)
	// Counters are monotonic non-decreasing across the run.
	require.NotNil(t, res.FirstSample)
	require.NotNil(t, res.LastSample)
	assert.GreaterOrEqual(t,
		res.LastSample.Stats.AllocationsTotal,
		res.FirstSample.Stats.AllocationsTotal)
}

// TestHarness_DiagnosticsUnavailable: a failing counter source degrades
// reporting but never the verdict.
func TestHarness_DiagnosticsUnavailable(t *testing.T) {
	src := &testutil.FakeSource{Err: errors.New("no such syscall")}
	h := New(harnessConfig(), WithSource(src))

	res, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Passed)
	assert.False(t, res.DiagnosticsAvailable)
	assert.Nil(t, res.Rates)
}

// TestHarness_NoSampler: a zero sample interval disables sampling entirely.
func TestHarness_NoSampler(t *testing.T) {
	cfg := harnessConfig()
	cfg.SampleInterval = 0
	src := &testutil.FakeSource{}
	h := New(cfg, WithSource(src))

	res, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Passed)
	assert.False(t, res.DiagnosticsAvailable)
	assert.Zero(t, res.SampleCount)
	// The availability pre-flight is the only counter query.
	assert.Equal(t, 1, src.StatsCalls)
}

// TestHarness_ResetCounters forwards the reset request to the source before
// the run starts.
func TestHarness_ResetCounters(t *testing.T) {
	cfg := harnessConfig()
	cfg.ResetCounters = true
	src := &testutil.FakeSource{}
	h := New(cfg, WithSource(src))

	_, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.ResetCalls)
}

// TestHarness_MultiProcessRequiresWorker is the orchestration precondition.
func TestHarness_MultiProcessRequiresWorker(t *testing.T) {
	cfg := harnessConfig()
	cfg.Processes = 2
	h := New(cfg, WithSource(&testutil.FakeSource{}))

	_, err := h.Run(context.Background())
	assert.Error(t, err)
}

// TestHarness_ProcessMode collects worker tallies through the result channel
// file. The workers here are stand-ins that append a fixed tally line.
func TestHarness_ProcessMode(t *testing.T) {
	cfg := harnessConfig()
	cfg.Processes = 3
	cfg.ThreadsPerProcess = 2
	path := filepath.Join(t.TempDir(), "run.tally")

	worker := func(index int, resultPath string) *exec.Cmd {
		return exec.Command("/bin/sh", "-c",
			fmt.Sprintf("echo '2 0 %d 0' >> %s", (index+1)*100, resultPath))
	}
	h := New(cfg,
		WithSource(&testutil.FakeSource{}),
		WithWorkerCommand(worker),
		WithResultPath(path))

	res, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Passed)
	assert.Equal(t, 6, res.ExpectedUnits)
	assert.Equal(t, 6, res.Succeeded)
	assert.Equal(t, uint64(600), res.TotalOperations)
	assert.Zero(t, res.SpawnFailures)
}

// TestHarness_ProcessMode_SpawnFailure: a worker that cannot start fails the
// run through the missing-units rule, without an orchestration error.
func TestHarness_ProcessMode_SpawnFailure(t *testing.T) {
	cfg := harnessConfig()
	cfg.Processes = 2
	path := filepath.Join(t.TempDir(), "run.tally")

	worker := func(index int, resultPath string) *exec.Cmd {
		if index == 1 {
			return exec.Command("/nonexistent/asidbench-worker")
		}
		return exec.Command("/bin/sh", "-c",
			fmt.Sprintf("echo '2 0 100 0' >> %s", resultPath))
	}
	h := New(cfg,
		WithSource(&testutil.FakeSource{}),
		WithWorkerCommand(worker),
		WithResultPath(path))

	res, err := h.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Passed)
	assert.Equal(t, 1, res.SpawnFailures)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 4, res.ExpectedUnits)
}

// TestHarness_GeneratesRunID assigns a fresh ID when none is fixed.
func TestHarness_GeneratesRunID(t *testing.T) {
	cfg := harnessConfig()
	cfg.SampleInterval = 0
	h := New(cfg, WithSource(&testutil.FakeSource{}))

	res, err := h.Run(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
}
