// Package report aggregates unit outcomes and counter samples into the final
// run verdict and renders it.
//
// Aggregation is a pure function of the terminal unit records, the sample
// sequence and the configuration. It runs strictly after every worker has
// been reaped and the sampler has stopped; that barrier is the only ordering
// requirement in the harness.
package report

import (
	"time"

	"github.com/roach88/asidbench/internal/config"
	"github.com/roach88/asidbench/internal/sampler"
	"github.com/roach88/asidbench/internal/spawn"
	"github.com/roach88/asidbench/internal/workload"
)

// Rates are derived from the first and last valid counter samples. They are
// only computed when the counter interface was available for the whole run;
// a partially-available interface would give the deltas a mismatched
// baseline.
type Rates struct {
	AllocationsPerSec  float64 `json:"allocations_per_sec"`
	FlushesPerSec      float64 `json:"flushes_per_sec"`
	FlushSwitchPercent float64 `json:"flush_switch_percent"`
}

// AggregateResult is the immutable final outcome of one run.
type AggregateResult struct {
	RunID    string        `json:"run_id"`
	Config   config.Config `json:"config"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`

	ExpectedUnits int `json:"expected_units"`
	Succeeded     int `json:"succeeded"`
	FailedUnits   int `json:"failed_units"`
	SpawnFailures int `json:"spawn_failures"`
	ForcedReaps   int `json:"forced_reaps"`

	TotalOperations uint64 `json:"total_operations"`
	TotalMismatches uint64 `json:"total_mismatches"`

	DiagnosticsAvailable bool            `json:"diagnostics_available"`
	SampleCount          int             `json:"sample_count"`
	FirstSample          *sampler.Sample `json:"first_sample,omitempty"`
	LastSample           *sampler.Sample `json:"last_sample,omitempty"`
	Rates                *Rates          `json:"rates,omitempty"`

	// Samples is the full captured sequence, handed over by the sampler at
	// test end. Omitted from JSON output; the store persists it.
	Samples []sampler.Sample `json:"-"`

	Passed bool `json:"passed"`
}

// Duration returns the run's wall-clock time.
func (r *AggregateResult) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Aggregate folds worker tallies, spawn outcomes and counter samples into
// the final result.
//
// Verdict rule: PASS iff every expected unit terminated Success and the
// total mismatch count is exactly zero. Spawn failures and forced reaps fail
// the run through the same rule: their units never reached Success.
func Aggregate(
	cfg config.Config,
	runID string,
	tallies []workload.Tally,
	sum spawn.Summary,
	samples []sampler.Sample,
	diagnosticsUnavailable bool,
	started, finished time.Time,
) *AggregateResult {
	var total workload.Tally
	for _, t := range tallies {
		total.Add(t)
	}

	res := &AggregateResult{
		RunID:    runID,
		Config:   cfg,
		Started:  started,
		Finished: finished,

		ExpectedUnits: cfg.TotalUnits(),
		Succeeded:     total.Completed,
		FailedUnits:   total.Failed,
		SpawnFailures: sum.SpawnFailures,
		ForcedReaps:   sum.ForceKilled,

		TotalOperations: total.Operations,
		TotalMismatches: total.Mismatches,

		SampleCount: len(samples),
		Samples:     samples,
	}

	first, last := firstLastValid(samples)
	res.DiagnosticsAvailable = !diagnosticsUnavailable && first != nil
	if res.DiagnosticsAvailable {
		res.FirstSample = first
		res.LastSample = last
		res.Rates = computeRates(first, last)
	}

	res.Passed = res.TotalMismatches == 0 &&
		res.FailedUnits == 0 &&
		res.SpawnFailures == 0 &&
		res.Succeeded == res.ExpectedUnits

	return res
}

// firstLastValid picks the first and last valid samples of the sequence.
func firstLastValid(samples []sampler.Sample) (first, last *sampler.Sample) {
	for i := range samples {
		if !samples[i].Valid {
			continue
		}
		if first == nil {
			first = &samples[i]
		}
		last = &samples[i]
	}
	return first, last
}

// computeRates derives per-second rates from the first/last sample delta.
func computeRates(first, last *sampler.Sample) *Rates {
	elapsed := last.Taken.Sub(first.Taken).Seconds()
	if elapsed <= 0 {
		return nil
	}

	r := &Rates{
		AllocationsPerSec: float64(delta(last.Stats.AllocationsTotal, first.Stats.AllocationsTotal)) / elapsed,
		FlushesPerSec:     float64(delta(last.Stats.TotalFlushes(), first.Stats.TotalFlushes())) / elapsed,
	}

	switches := delta(last.Stats.ContextSwitches, first.Stats.ContextSwitches)
	withFlush := delta(last.Stats.ContextSwitchesWithFlush, first.Stats.ContextSwitchesWithFlush)
	if switches > 0 {
		r.FlushSwitchPercent = float64(withFlush) / float64(switches) * 100
	}
	return r
}

// delta guards against a counter reset between samples; the counters are
// expected to be monotonic non-decreasing.
func delta(last, first uint64) uint64 {
	if last < first {
		return 0
	}
	return last - first
}
