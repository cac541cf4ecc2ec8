package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/asidbench/internal/config"
	"github.com/roach88/asidbench/internal/harness"
	"github.com/roach88/asidbench/internal/profiling"
	"github.com/roach88/asidbench/internal/report"
	"github.com/roach88/asidbench/internal/store"
)

// StressOptions holds flags for the stress command.
type StressOptions struct {
	*RootOptions
	ConfigFile string
	Database   string

	Processes      int
	Threads        int
	MemoryKB       int
	Cycles         int
	Accesses       int
	Intensity      int
	BatchSize      int
	BatchPause     time.Duration
	Duration       time.Duration
	SampleInterval time.Duration
	ReapTimeout    time.Duration
	YieldEvery     int
	ShowCounters   bool
	ResetCounters  bool

	// Source allows overriding the counter source (for testing).
	// If nil, defaults to the kernel interface.
	Source profiling.Source

	// RunID fixes the run ID (for testing). If empty, a UUID is generated.
	RunID string
}

// NewStressCommand creates the stress command.
func NewStressCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StressOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run the ASID stress and correctness test",
		Long: `Run the full orchestrated stress test.

With --processes 1 the configured thread population runs in-process. With
more processes the harness re-execs itself in batches of worker processes,
each running its own thread population, and collects results through a
temporary result file.

Exit codes:
  0 - All units succeeded with zero mismatches
  1 - Mismatches, failed units, allocation errors or spawn failures detected
  2 - Command error (invalid configuration, etc.)

Examples:
  asidbench stress -n 1 --threads 16 -m 1024 -a 5000
  asidbench stress -n 100 -b 20 --reset-counters --show-counters
  asidbench stress --config scenarios/heavy.yaml --db ./history.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record the run in this SQLite history database")
	cmd.Flags().IntVarP(&opts.Processes, "processes", "n", 1, "number of worker processes")
	cmd.Flags().IntVarP(&opts.Threads, "threads", "t", 1, "threads per process")
	cmd.Flags().IntVarP(&opts.MemoryKB, "memory-kb", "m", 1024, "region size per unit in KB")
	cmd.Flags().IntVar(&opts.Cycles, "cycles", 20, "verify/mutate cycles per unit")
	cmd.Flags().IntVarP(&opts.Accesses, "accesses", "a", 2000, "random accesses per cycle")
	cmd.Flags().IntVar(&opts.Intensity, "intensity", 10, "workload intensity, 1-10")
	cmd.Flags().IntVarP(&opts.BatchSize, "batch-size", "b", 100, "processes spawned per batch")
	cmd.Flags().DurationVar(&opts.BatchPause, "batch-pause", 2*time.Second, "pause between spawn batches")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "wall-clock bound per worker group (0 = full cycle budget)")
	cmd.Flags().DurationVar(&opts.SampleInterval, "sample-interval", 100*time.Millisecond, "counter sampling cadence (0 disables)")
	cmd.Flags().DurationVar(&opts.ReapTimeout, "reap-timeout", 60*time.Second, "bounded wait per process before forced termination")
	cmd.Flags().IntVar(&opts.YieldEvery, "yield-every", 10, "yield at every N-th cycle boundary (0 disables)")
	cmd.Flags().BoolVarP(&opts.ShowCounters, "show-counters", "s", false, "print counter snapshots before and after the run")
	cmd.Flags().BoolVarP(&opts.ResetCounters, "reset-counters", "r", false, "reset kernel counters before the run")

	return cmd
}

// buildConfig merges the config file (if any) with explicitly-set flags.
// Flags win over the file, the file wins over defaults.
func buildConfig(opts *StressOptions, cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigFile != "" {
		data, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("read config file: %w", err)
		}
		cfg, err = config.Load(data)
		if err != nil {
			return config.Config{}, err
		}
	}

	fl := cmd.Flags()
	if fl.Changed("processes") {
		cfg.Processes = opts.Processes
	}
	if fl.Changed("threads") {
		cfg.ThreadsPerProcess = opts.Threads
	}
	if fl.Changed("memory-kb") {
		cfg.RegionBytes = opts.MemoryKB * 1024
	}
	if fl.Changed("cycles") {
		cfg.Cycles = opts.Cycles
	}
	if fl.Changed("accesses") {
		cfg.AccessesPerCycle = opts.Accesses
	}
	if fl.Changed("intensity") {
		cfg.Intensity = opts.Intensity
	}
	if fl.Changed("batch-size") {
		cfg.BatchSize = opts.BatchSize
	}
	if fl.Changed("batch-pause") {
		cfg.BatchPause = opts.BatchPause
	}
	if fl.Changed("duration") {
		cfg.Duration = opts.Duration
	}
	if fl.Changed("sample-interval") {
		cfg.SampleInterval = opts.SampleInterval
	}
	if fl.Changed("reap-timeout") {
		cfg.ReapTimeout = opts.ReapTimeout
	}
	if fl.Changed("yield-every") {
		cfg.YieldEvery = opts.YieldEvery
	}
	if fl.Changed("show-counters") {
		cfg.ShowCounters = opts.ShowCounters
	}
	if fl.Changed("reset-counters") {
		cfg.ResetCounters = opts.ResetCounters
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runStress(opts *StressOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.Verbose)

	cfg, err := buildConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	src := opts.Source
	if src == nil {
		src = profiling.KernelSource{}
	}

	hopts := []harness.Option{
		harness.WithSource(src),
		harness.WithLogger(logger),
	}
	if opts.RunID != "" {
		hopts = append(hopts, harness.WithRunID(opts.RunID))
	}
	if cfg.Processes > 1 {
		worker, err := selfWorkerCommand(cfg)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot build worker command", err)
		}
		hopts = append(hopts, harness.WithWorkerCommand(worker))
	}
	h := harness.New(cfg, hopts...)

	// Interrupts propagate as an advisory stop to every worker group;
	// processes exceeding the reap timeout are still forcibly terminated.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	if cfg.ShowCounters && opts.Format == "text" {
		printStatsSnapshot(out, src, "Initial")
	}

	res, err := h.Run(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "stress run failed to start", err)
	}

	if cfg.ShowCounters && opts.Format == "text" {
		printStatsSnapshot(out, src, "Final")
	}

	if opts.Database != "" {
		if err := recordRun(ctx, opts.Database, res); err != nil {
			logger.Error("failed to record run history", "error", err)
		}
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: out, Verbose: opts.Verbose}
		if err := formatter.Success(res); err != nil {
			return err
		}
	} else {
		if err := report.Render(out, res); err != nil {
			return err
		}
	}

	if !res.Passed {
		return NewExitError(ExitFailure, fmt.Sprintf(
			"stress test failed: %d failed units, %d spawn failures, %d mismatches",
			res.FailedUnits, res.SpawnFailures, res.TotalMismatches))
	}
	return nil
}

// selfWorkerCommand re-execs the running binary with the hidden worker
// subcommand. The immutable configuration travels through the environment so
// every worker group owns an identical copy.
func selfWorkerCommand(cfg config.Config) (harness.WorkerCommand, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	cfgYAML, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return func(index int, resultPath string) *exec.Cmd {
		c := exec.Command(exe, "worker",
			"--proc-index", strconv.Itoa(index),
			"--result-file", resultPath)
		c.Env = append(os.Environ(), workerConfigEnv+"="+string(cfgYAML))
		c.Stderr = os.Stderr
		return c
	}, nil
}

// recordRun persists the run in the history database.
func recordRun(ctx context.Context, path string, res *report.AggregateResult) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.RecordRun(ctx, res, res.Samples)
}

// newLogger configures slog on stderr, gated by the verbose flag.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
