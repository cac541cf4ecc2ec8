package report

import (
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Render writes the human-readable run report.
//
// Counter metrics appear only when the interface was available for the whole
// run; otherwise the report downgrades to basic metrics with a warning, per
// the graceful-degradation contract.
func Render(w io.Writer, res *AggregateResult) error {
	p := message.NewPrinter(language.English)

	p.Fprintf(w, "=== ASID Stress Test Report ===\n")
	p.Fprintf(w, "Run ID:               %s\n", res.RunID)
	p.Fprintf(w, "Duration:             %s\n", res.Duration().Round(0))
	p.Fprintf(w, "\n")

	cfg := res.Config
	p.Fprintf(w, "Configuration:\n")
	p.Fprintf(w, "  Processes:          %d\n", cfg.Processes)
	p.Fprintf(w, "  Threads/process:    %d\n", cfg.ThreadsPerProcess)
	p.Fprintf(w, "  Region size:        %d KB\n", cfg.RegionBytes/1024)
	p.Fprintf(w, "  Workload:           %d cycles x %d accesses (intensity %d)\n",
		cfg.Cycles, cfg.AccessesPerCycle, cfg.Intensity)
	p.Fprintf(w, "  Batch size:         %d\n", cfg.BatchSize)
	p.Fprintf(w, "\n")

	p.Fprintf(w, "Results:\n")
	p.Fprintf(w, "  Units expected:     %d\n", res.ExpectedUnits)
	p.Fprintf(w, "  Units succeeded:    %d\n", res.Succeeded)
	p.Fprintf(w, "  Units failed:       %d\n", res.FailedUnits)
	if res.SpawnFailures > 0 {
		p.Fprintf(w, "  Spawn failures:     %d\n", res.SpawnFailures)
	}
	if res.ForcedReaps > 0 {
		p.Fprintf(w, "  Forced reaps:       %d\n", res.ForcedReaps)
	}
	p.Fprintf(w, "  Total memory ops:   %d\n", res.TotalOperations)
	p.Fprintf(w, "  Total mismatches:   %d\n", res.TotalMismatches)
	if res.TotalOperations > 0 && res.TotalMismatches > 0 {
		p.Fprintf(w, "  Mismatch rate:      %.2e\n",
			float64(res.TotalMismatches)/float64(res.TotalOperations))
	}
	p.Fprintf(w, "\n")

	if res.DiagnosticsAvailable && res.FirstSample != nil && res.LastSample != nil {
		first, last := res.FirstSample.Stats, res.LastSample.Stats
		p.Fprintf(w, "ASID counters (first -> last of %d samples):\n", res.SampleCount)
		p.Fprintf(w, "  Allocations:        %d -> %d\n", first.AllocationsTotal, last.AllocationsTotal)
		p.Fprintf(w, "  Alloc failures:     %d -> %d\n", first.AllocationFailures, last.AllocationFailures)
		p.Fprintf(w, "  Rollovers:          %d -> %d\n", first.GenerationRollovers, last.GenerationRollovers)
		p.Fprintf(w, "  TLB flushes:        %d -> %d\n", first.TotalFlushes(), last.TotalFlushes())
		p.Fprintf(w, "  Context switches:   %d -> %d\n", first.ContextSwitches, last.ContextSwitches)
		p.Fprintf(w, "  Active ASIDs:       %d\n", last.ActiveASIDs)
		p.Fprintf(w, "  Generation:         %d\n", last.CurrentGeneration)
		p.Fprintf(w, "  PCID enabled:       %v\n", last.PCIDEnabled)
		if res.Rates != nil {
			p.Fprintf(w, "  Allocations/sec:    %.1f\n", res.Rates.AllocationsPerSec)
			p.Fprintf(w, "  Flushes/sec:        %.1f\n", res.Rates.FlushesPerSec)
			p.Fprintf(w, "  Flush-switch:       %.1f%%\n", res.Rates.FlushSwitchPercent)
		}
		p.Fprintf(w, "\n")
	} else {
		p.Fprintf(w, "Warning: counter diagnostics unavailable, basic metrics only\n\n")
	}

	verdict := "FAIL"
	if res.Passed {
		verdict = "PASS"
	}
	if _, err := fmt.Fprintf(w, "Verdict: %s\n", verdict); err != nil {
		return err
	}
	return nil
}
