// Package sampler periodically snapshots the kernel's ASID counters for the
// life of a stress run.
//
// The sampler is strictly observational: a failing counter interface flips a
// sticky "unavailable" flag and downgrades downstream reporting, but never
// affects the workload units or the pass/fail verdict.
package sampler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/asidbench/internal/profiling"
)

// Sample is one timestamped counter snapshot. Invalid samples mark cadence
// points where the interface query failed; their stats are zeroed.
type Sample struct {
	Taken time.Time       `json:"taken"`
	Valid bool            `json:"valid"`
	Stats profiling.Stats `json:"stats"`
}

// Sampler runs one independent sampling task on a fixed cadence.
//
// The sample sequence is owned exclusively by the sampler until Stop
// returns; afterwards Samples hands an insertion-ordered copy to the
// aggregator.
type Sampler struct {
	src      profiling.Source
	interval time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	samples     []Sample
	unavailable bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a sampler over the given counter source.
func New(src profiling.Source, interval time.Duration, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Sampler{src: src, interval: interval, logger: logger}
}

// Start begins sampling in a background task. One sample is taken
// immediately so even very short runs have a baseline.
func (s *Sampler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.take()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.take()
			}
		}
	}()
}

// Stop ends sampling and blocks until the sampling task has finished. The
// final sample is taken before returning so the last snapshot covers the
// whole run.
func (s *Sampler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.take()
}

// take queries the source and appends one sample. Query failure records a
// zeroed invalid sample at the same cadence and marks the interface
// unavailable for the rest of the run.
func (s *Sampler) take() {
	stats, err := s.src.Stats()
	sample := Sample{Taken: time.Now()}
	if err != nil {
		s.mu.Lock()
		first := !s.unavailable
		s.unavailable = true
		s.samples = append(s.samples, sample)
		s.mu.Unlock()
		if first {
			s.logger.Warn("counter interface unavailable, continuing with basic metrics", "error", err)
		}
		return
	}
	sample.Valid = true
	sample.Stats = stats

	s.mu.Lock()
	s.samples = append(s.samples, sample)
	s.mu.Unlock()
}

// Samples returns a copy of the captured sequence, in insertion order.
func (s *Sampler) Samples() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Unavailable reports whether any query failed during the run.
func (s *Sampler) Unavailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unavailable
}
