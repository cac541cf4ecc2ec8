package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asidbench/internal/config"
	"github.com/roach88/asidbench/internal/profiling"
	"github.com/roach88/asidbench/internal/sampler"
	"github.com/roach88/asidbench/internal/spawn"
	"github.com/roach88/asidbench/internal/workload"
)

func aggConfig() config.Config {
	cfg := config.Default()
	cfg.Processes = 2
	cfg.ThreadsPerProcess = 4
	return cfg
}

// TestAggregate_Verdict covers the pass/fail rule: every expected unit must
// succeed and the mismatch total must be exactly zero.
func TestAggregate_Verdict(t *testing.T) {
	started := time.Now()
	finished := started.Add(time.Second)

	tests := []struct {
		name    string
		tallies []workload.Tally
		sum     spawn.Summary
		passed  bool
	}{
		{
			"all units succeed",
			[]workload.Tally{{Completed: 4, Operations: 100}, {Completed: 4, Operations: 100}},
			spawn.Summary{Spawned: 2},
			true,
		},
		{
			"single mismatch fails",
			[]workload.Tally{{Completed: 7, Failed: 1, Operations: 200, Mismatches: 1}},
			spawn.Summary{Spawned: 2},
			false,
		},
		{
			"spawn failure fails",
			[]workload.Tally{{Completed: 4, Operations: 100}},
			spawn.Summary{Spawned: 1, SpawnFailures: 1},
			false,
		},
		{
			"missing units fail",
			[]workload.Tally{{Completed: 6, Operations: 100}},
			spawn.Summary{Spawned: 2},
			false,
		},
		{
			"failed unit with zero mismatches fails",
			[]workload.Tally{{Completed: 7, Failed: 1, Operations: 200}},
			spawn.Summary{Spawned: 2},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Aggregate(aggConfig(), "run", tt.tallies, tt.sum, nil, true, started, finished)
			assert.Equal(t, tt.passed, res.Passed)
		})
	}
}

// TestAggregate_FoldsTallies sums per-worker tallies into run totals.
func TestAggregate_FoldsTallies(t *testing.T) {
	tallies := []workload.Tally{
		{Completed: 4, Operations: 100, Mismatches: 1},
		{Completed: 3, Failed: 1, Operations: 250, Mismatches: 2},
	}
	res := Aggregate(aggConfig(), "run", tallies, spawn.Summary{Spawned: 2}, nil, true, time.Now(), time.Now())

	assert.Equal(t, 8, res.ExpectedUnits)
	assert.Equal(t, 7, res.Succeeded)
	assert.Equal(t, 1, res.FailedUnits)
	assert.Equal(t, uint64(350), res.TotalOperations)
	assert.Equal(t, uint64(3), res.TotalMismatches)
}

func validSample(taken time.Time, s profiling.Stats) sampler.Sample {
	return sampler.Sample{Taken: taken, Valid: true, Stats: s}
}

// TestAggregate_Rates derives per-second rates from the first/last valid
// sample delta.
func TestAggregate_Rates(t *testing.T) {
	started := time.Now()
	samples := []sampler.Sample{
		validSample(started, profiling.Stats{
			AllocationsTotal:         100,
			TLBFullFlushes:           50,
			ContextSwitches:          1000,
			ContextSwitchesWithFlush: 100,
		}),
		validSample(started.Add(2*time.Second), profiling.Stats{
			AllocationsTotal:         500,
			TLBFullFlushes:           250,
			ContextSwitches:          2000,
			ContextSwitchesWithFlush: 350,
		}),
	}

	tallies := []workload.Tally{{Completed: 8, Operations: 100}}
	res := Aggregate(aggConfig(), "run", tallies, spawn.Summary{Spawned: 2}, samples, false, started, started.Add(2*time.Second))

	assert.True(t, res.DiagnosticsAvailable)
	require.NotNil(t, res.Rates)
	assert.InDelta(t, 200.0, res.Rates.AllocationsPerSec, 0.01)
	assert.InDelta(t, 100.0, res.Rates.FlushesPerSec, 0.01)
	assert.InDelta(t, 25.0, res.Rates.FlushSwitchPercent, 0.01)
	assert.Equal(t, 2, res.SampleCount)
}

// TestAggregate_SkipsInvalidSamples: rates come from the first and last
// valid samples, ignoring invalid cadence points between them.
func TestAggregate_SkipsInvalidSamples(t *testing.T) {
	started := time.Now()
	samples := []sampler.Sample{
		{Taken: started, Valid: false},
		validSample(started.Add(time.Second), profiling.Stats{AllocationsTotal: 10}),
		{Taken: started.Add(2 * time.Second), Valid: false},
		validSample(started.Add(3*time.Second), profiling.Stats{AllocationsTotal: 30}),
	}

	res := Aggregate(aggConfig(), "run", nil, spawn.Summary{}, samples, false, started, started.Add(3*time.Second))

	require.NotNil(t, res.FirstSample)
	assert.Equal(t, uint64(10), res.FirstSample.Stats.AllocationsTotal)
	require.NotNil(t, res.LastSample)
	assert.Equal(t, uint64(30), res.LastSample.Stats.AllocationsTotal)
}

// TestAggregate_DiagnosticsUnavailable: an unavailable interface degrades
// reporting but the verdict still comes from the workload outcome alone.
func TestAggregate_DiagnosticsUnavailable(t *testing.T) {
	tallies := []workload.Tally{{Completed: 8, Operations: 100}}
	res := Aggregate(aggConfig(), "run", tallies, spawn.Summary{Spawned: 2}, nil, true, time.Now(), time.Now())

	assert.False(t, res.DiagnosticsAvailable)
	assert.Nil(t, res.FirstSample)
	assert.Nil(t, res.Rates)
	assert.True(t, res.Passed)
}

// TestAggregate_AllSamplesInvalid behaves like an unavailable interface even
// when the sticky flag was not raised.
func TestAggregate_AllSamplesInvalid(t *testing.T) {
	samples := []sampler.Sample{{Valid: false}, {Valid: false}}
	res := Aggregate(aggConfig(), "run", nil, spawn.Summary{}, samples, false, time.Now(), time.Now())

	assert.False(t, res.DiagnosticsAvailable)
	assert.Nil(t, res.Rates)
}

// TestAggregate_CounterResetGuard clamps a counter that went backwards to a
// zero delta instead of underflowing.
func TestAggregate_CounterResetGuard(t *testing.T) {
	started := time.Now()
	samples := []sampler.Sample{
		validSample(started, profiling.Stats{AllocationsTotal: 500}),
		validSample(started.Add(time.Second), profiling.Stats{AllocationsTotal: 100}),
	}

	res := Aggregate(aggConfig(), "run", nil, spawn.Summary{}, samples, false, started, started.Add(time.Second))

	require.NotNil(t, res.Rates)
	assert.Zero(t, res.Rates.AllocationsPerSec)
}
