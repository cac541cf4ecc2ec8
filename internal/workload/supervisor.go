package workload

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/roach88/asidbench/internal/config"
)

// Supervisor runs one process's population of workload units, each pinned to
// its own OS thread, and owns that process's stop flag.
//
// Thread starts are staggered so the initial region allocations do not land
// as a single burst, which would make allocation-failure attribution
// ambiguous. The stop flag is set exactly once: when the configured duration
// elapses or the context is cancelled, whichever comes first.
type Supervisor struct {
	cfg    config.Config
	proc   int
	logger *slog.Logger
	stop   StopFlag
}

// NewSupervisor creates a supervisor for process index proc.
func NewSupervisor(cfg config.Config, proc int, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Supervisor{cfg: cfg, proc: proc, logger: logger}
}

// Stop requests a cooperative stop of all units.
func (s *Supervisor) Stop() {
	s.stop.Set()
}

// Run starts the configured thread population and blocks until every unit
// has reached a terminal state. The returned slice is indexed by thread.
func (s *Supervisor) Run(ctx context.Context) []Result {
	threads := s.cfg.ThreadsPerProcess
	results := make([]Result, threads)

	var wg sync.WaitGroup
	for t := 0; t < threads; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			// Pin to an OS thread: the point of the exercise is genuine
			// OS-level parallelism across isolated contexts.
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			unit := NewUnit(s.cfg, Identity{Proc: s.proc, Thread: t}, &s.stop, s.logger)
			results[t] = unit.Run()
		}(t)

		if s.cfg.StaggerDelay > 0 && t < threads-1 {
			time.Sleep(s.cfg.StaggerDelay)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var deadline <-chan time.Time
	if s.cfg.Duration > 0 {
		timer := time.NewTimer(s.cfg.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	ctxDone := ctx.Done()
	for {
		select {
		case <-done:
			return results
		case <-deadline:
			s.logger.Info("run duration elapsed, signaling stop", "proc", s.proc)
			s.stop.Set()
			deadline = nil
		case <-ctxDone:
			s.logger.Info("interrupt received, signaling stop", "proc", s.proc)
			s.stop.Set()
			ctxDone = nil
		}
	}
}
