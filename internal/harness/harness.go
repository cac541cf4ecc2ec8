// Package harness orchestrates a full stress run: it starts the concurrency
// group and the statistics sampler, waits for bounded-time completion of all
// workers, stops the sampler, and aggregates the result.
//
// The aggregation step runs strictly after every worker has been reaped and
// the sampler has stopped; that happens-after barrier is the only ordering
// requirement in the whole harness.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/asidbench/internal/config"
	"github.com/roach88/asidbench/internal/profiling"
	"github.com/roach88/asidbench/internal/report"
	"github.com/roach88/asidbench/internal/resultfile"
	"github.com/roach88/asidbench/internal/sampler"
	"github.com/roach88/asidbench/internal/spawn"
	"github.com/roach88/asidbench/internal/workload"
)

// WorkerCommand builds the command for worker process index, which must
// append its tally to resultPath before exiting.
type WorkerCommand func(index int, resultPath string) *exec.Cmd

// Harness drives one stress run end to end.
type Harness struct {
	cfg        config.Config
	src        profiling.Source
	worker     WorkerCommand
	logger     *slog.Logger
	resultPath string
	runID      string
}

// Option configures a Harness.
type Option func(*Harness)

// WithSource overrides the counter source (tests use a scripted fake).
func WithSource(src profiling.Source) Option {
	return func(h *Harness) { h.src = src }
}

// WithWorkerCommand sets the builder for worker processes. Required when the
// configuration asks for more than one process.
func WithWorkerCommand(w WorkerCommand) Option {
	return func(h *Harness) { h.worker = w }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) { h.logger = logger }
}

// WithResultPath overrides the cross-process result channel path.
func WithResultPath(path string) Option {
	return func(h *Harness) { h.resultPath = path }
}

// WithRunID fixes the run ID (for deterministic tests and golden files).
func WithRunID(id string) Option {
	return func(h *Harness) { h.runID = id }
}

// New creates a harness for the given configuration.
func New(cfg config.Config, opts ...Option) *Harness {
	h := &Harness{
		cfg:    cfg,
		src:    profiling.KernelSource{},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes the full orchestration and returns the aggregate result.
//
// Errors are returned only for orchestration preconditions (e.g. a
// multi-process configuration without a worker command). Workload failures,
// spawn failures and diagnostics unavailability are all captured inside the
// result, never as errors.
func (h *Harness) Run(ctx context.Context) (*report.AggregateResult, error) {
	if h.cfg.Processes > 1 && h.worker == nil {
		return nil, fmt.Errorf("multi-process run requires a worker command")
	}

	runID := h.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	started := time.Now()
	h.logger.Info("run starting",
		"run_id", runID,
		"processes", h.cfg.Processes,
		"threads_per_process", h.cfg.ThreadsPerProcess,
		"region_bytes", h.cfg.RegionBytes)

	// Pre-flight probe: absence only downgrades reporting, but surfacing it
	// up front beats discovering it in the final report.
	if !profiling.Available(h.src) {
		h.logger.Warn("counter interface unavailable, reporting will degrade to basic metrics")
	}

	if h.cfg.ResetCounters {
		if err := h.src.Reset(); err != nil {
			h.logger.Warn("counter reset failed", "error", err)
		}
	}

	var smp *sampler.Sampler
	if h.cfg.SampleInterval > 0 {
		smp = sampler.New(h.src, h.cfg.SampleInterval, h.logger)
		smp.Start(ctx)
	}

	var tallies []workload.Tally
	var sum spawn.Summary
	if h.cfg.Processes == 1 {
		sup := workload.NewSupervisor(h.cfg, 0, h.logger)
		results := sup.Run(ctx)
		tallies = []workload.Tally{workload.TallyResults(results)}
		sum = spawn.Summary{Spawned: 1}
	} else {
		var err error
		tallies, sum, err = h.runProcesses(ctx)
		if err != nil {
			if smp != nil {
				smp.Stop()
			}
			return nil, err
		}
	}

	var samples []sampler.Sample
	diagnosticsUnavailable := true
	if smp != nil {
		smp.Stop()
		samples = smp.Samples()
		diagnosticsUnavailable = smp.Unavailable()
	}

	finished := time.Now()
	res := report.Aggregate(h.cfg, runID, tallies, sum, samples, diagnosticsUnavailable, started, finished)
	h.logger.Info("run finished",
		"run_id", runID,
		"passed", res.Passed,
		"succeeded", res.Succeeded,
		"failed", res.FailedUnits,
		"mismatches", res.TotalMismatches,
		"duration", res.Duration())
	return res, nil
}

// runProcesses spawns the worker population and collects tallies through the
// cross-process result channel. The channel file is read back only after
// every member has been reaped, then deleted.
func (h *Harness) runProcesses(ctx context.Context) ([]workload.Tally, spawn.Summary, error) {
	path := h.resultPath
	if path == "" {
		path = resultfile.DefaultPath()
	}
	if err := resultfile.Remove(path); err != nil {
		return nil, spawn.Summary{}, fmt.Errorf("clearing result file: %w", err)
	}
	defer func() {
		if err := resultfile.Remove(path); err != nil {
			h.logger.Warn("failed to remove result file", "path", path, "error", err)
		}
	}()

	group := spawn.NewGroup(h.cfg, func(i int) *exec.Cmd { return h.worker(i, path) }, h.logger)
	members := group.Run(ctx)
	sum := spawn.Summarize(members)

	tallies, err := resultfile.Read(path)
	if err != nil {
		return nil, spawn.Summary{}, fmt.Errorf("reading worker tallies: %w", err)
	}
	return tallies, sum, nil
}
