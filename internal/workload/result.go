package workload

import "time"

// Status is the terminal outcome of a workload unit.
type Status int

const (
	// StatusSuccess means the unit completed with zero mismatches.
	StatusSuccess Status = iota + 1
	// StatusFailed means the unit observed at least one integrity mismatch.
	StatusFailed
	// StatusAllocationFailed means the unit could not acquire its region.
	// Allocation failures are expected under extreme stress configurations
	// and are never retried.
	StatusAllocationFailed
)

// String returns the human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusFailed:
		return "Failed"
	case StatusAllocationFailed:
		return "AllocationFailed"
	default:
		return "Unknown"
	}
}

// Result is the self-contained terminal record of one workload unit.
// A Result is written exactly once, by the unit itself, and never mutated
// afterwards.
type Result struct {
	Identity   Identity
	Status     Status
	Operations uint64
	Mismatches uint64
	Started    time.Time
	Finished   time.Time
}

// Duration returns the unit's wall-clock run time.
func (r Result) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Tally is the four-number summary a worker process reports upward through
// the cross-process result channel: completed units, failed units, total
// operations, total mismatches.
type Tally struct {
	Completed  int
	Failed     int
	Operations uint64
	Mismatches uint64
}

// Add accumulates another tally into t.
func (t *Tally) Add(o Tally) {
	t.Completed += o.Completed
	t.Failed += o.Failed
	t.Operations += o.Operations
	t.Mismatches += o.Mismatches
}

// TallyResults folds a set of unit results into a single tally.
// AllocationFailed counts as failed: the unit did not complete its workload.
func TallyResults(results []Result) Tally {
	var t Tally
	for _, r := range results {
		if r.Status == StatusSuccess {
			t.Completed++
		} else {
			t.Failed++
		}
		t.Operations += r.Operations
		t.Mismatches += r.Mismatches
	}
	return t
}
