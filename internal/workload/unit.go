// Package workload implements the isolated workload unit: one execution
// context that owns a private memory region and runs a deterministic
// fill/verify/mutate/restore loop against it.
//
// The unit is the leaf of the harness. It depends only on the shared
// read-only configuration and a shared stop flag; its region is never
// observed by any other unit. If the kernel's ASID/TLB management is broken,
// stale translations leak writes between isolated contexts and show up as
// mismatches inside a unit's own verification, despite no legitimate
// cross-unit access path.
package workload

import (
	"io"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/roach88/asidbench/internal/config"
)

// Unit runs one workload lifecycle and produces exactly one Result.
type Unit struct {
	cfg    config.Config
	id     Identity
	stop   *StopFlag
	logger *slog.Logger

	// Seed overrides the per-unit RNG seed when non-zero. Tests use this for
	// reproducible access sequences; production runs derive a seed from
	// identity and wall clock so runs are not globally correlated.
	Seed int64

	// afterFill, when set, runs between the initial fill and the cycle loop.
	// Package tests use it to inject corruption; nothing else touches it.
	afterFill func(*Region)
}

// NewUnit creates a unit for the given identity.
// A nil stop flag means the unit runs its full cycle budget; a nil logger
// discards output.
func NewUnit(cfg config.Config, id Identity, stop *StopFlag, logger *slog.Logger) *Unit {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Unit{cfg: cfg, id: id, stop: stop, logger: logger}
}

// Run executes the full lifecycle: acquire, fill, cycle, final verify,
// release, report. It never panics on degenerate configurations (zero-size
// region, zero cycles, zero accesses) and always reaches a terminal status.
func (u *Unit) Run() Result {
	res := Result{Identity: u.id, Started: time.Now()}
	log := u.logger.With("proc", u.id.Proc, "thread", u.id.Thread)

	region, err := AcquireRegion(u.cfg.RegionBytes)
	if err != nil {
		res.Status = StatusAllocationFailed
		res.Finished = time.Now()
		uerr := &UnitError{Code: ErrCodeAllocationFailed, Identity: u.id, Message: "acquiring region", Err: err}
		log.Error("allocation failed", "error", uerr)
		return res
	}

	words := region.Words()

	// Fill every word with the deterministic pattern.
	for i := 0; i < words; i++ {
		region.SetWord(i, PatternWord(u.id, i))
		res.Operations++
	}

	if u.afterFill != nil {
		u.afterFill(region)
	}

	rng := rand.New(rand.NewSource(u.seed()))
	accesses := u.cfg.EffectiveAccesses()
	reported := 0
	aborted := false

	// note records a mismatch and reports whether the unit should self-abort.
	// Reporting is capped; the recorded total is not.
	note := func(offset int, expected, observed uint32) bool {
		res.Mismatches++
		if reported < u.cfg.MismatchReportCap {
			reported++
			log.Error("integrity mismatch", "error", &MismatchError{
				Identity: u.id, Offset: offset, Expected: expected, Observed: observed,
			})
		}
		return res.Mismatches > uint64(u.cfg.MismatchReportCap)
	}

cycles:
	for cycle := 0; cycle < u.cfg.Cycles; cycle++ {
		// Stop requests are honored only at cycle boundaries: the current
		// cycle and the final verification pass always complete.
		if u.stop != nil && u.stop.Stopped() {
			log.Debug("stop requested, ending cycles early", "cycle", cycle)
			break
		}

		for access := 0; access < accesses && words > 0; access++ {
			offset := rng.Intn(words)
			expected := PatternWord(u.id, offset)

			// Verify the resident value.
			observed := region.Word(offset)
			res.Operations++
			abort := false
			if observed != expected {
				abort = note(offset, expected, observed)
			}

			// Mutate with a cycle/position-derived value and verify the
			// write landed.
			next := expected ^ uint32(cycle) ^ uint32(access)
			region.SetWord(offset, next)
			res.Operations++
			if got := region.Word(offset); got != next {
				abort = note(offset, next, got) || abort
			}

			// Restore so the region is self-consistent between cycles.
			region.SetWord(offset, expected)
			res.Operations++
			if got := region.Word(offset); got != expected {
				abort = note(offset, expected, got) || abort
			}

			if abort {
				aborted = true
				break cycles
			}
		}

		if u.cfg.YieldEvery > 0 && cycle%u.cfg.YieldEvery == 0 {
			osYield()
		}
	}

	if aborted {
		log.Warn("self-aborted after mismatch report cap", "mismatches", res.Mismatches)
	}

	// Mandatory final full-region verification, on every path that holds a
	// region.
	for i := 0; i < words; i++ {
		expected := PatternWord(u.id, i)
		res.Operations++
		if got := region.Word(i); got != expected {
			res.Mismatches++
			if reported < u.cfg.MismatchReportCap {
				reported++
				log.Error("final verification mismatch", "error", &MismatchError{
					Identity: u.id, Offset: i, Expected: expected, Observed: got,
				})
			}
		}
	}

	if err := region.Release(); err != nil {
		log.Warn("region release failed", "error", err)
	}

	if res.Mismatches == 0 {
		res.Status = StatusSuccess
	} else {
		res.Status = StatusFailed
	}
	res.Finished = time.Now()

	log.Debug("unit finished",
		"status", res.Status.String(),
		"operations", res.Operations,
		"mismatches", res.Mismatches,
		"duration", res.Duration())
	return res
}

// seed derives the per-unit RNG seed from identity and wall clock.
func (u *Unit) seed() int64 {
	if u.Seed != 0 {
		return u.Seed
	}
	return time.Now().UnixNano() ^
		int64(os.Getpid())<<16 ^
		int64(hash32(u.id.Proc))<<32 ^
		int64(hash32(u.id.Thread))
}
