package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/asidbench/internal/config"
	"github.com/roach88/asidbench/internal/resultfile"
	"github.com/roach88/asidbench/internal/workload"
)

// workerConfigEnv carries the YAML-encoded run configuration from the
// orchestrator into worker processes.
const workerConfigEnv = "ASIDBENCH_WORKER_CONFIG"

// WorkerOptions holds flags for the hidden worker command.
type WorkerOptions struct {
	*RootOptions
	ProcIndex  int
	ResultFile string
}

// NewWorkerCommand creates the hidden worker command, the re-exec target for
// process-mode runs. It runs one process's thread population and appends one
// tally line to the shared result file before exiting.
func NewWorkerCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WorkerOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "worker",
		Short:         "Internal worker process entry point",
		Hidden:        true,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.ProcIndex, "proc-index", 0, "process index within the run")
	cmd.Flags().StringVar(&opts.ResultFile, "result-file", "", "path of the shared result file (required)")
	_ = cmd.MarkFlagRequired("result-file")

	return cmd
}

func runWorker(opts *WorkerOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.Verbose)

	cfgYAML := os.Getenv(workerConfigEnv)
	if cfgYAML == "" {
		return NewExitError(ExitCommandError, fmt.Sprintf("%s not set: worker must be spawned by the harness", workerConfigEnv))
	}
	cfg, err := config.Load([]byte(cfgYAML))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid worker configuration", err)
	}

	// SIGTERM from the orchestrator is the graceful termination request: the
	// supervisor sets the stop flag and units finish their current cycle and
	// final verification pass.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := workload.NewSupervisor(cfg, opts.ProcIndex, logger)
	results := sup.Run(ctx)
	tally := workload.TallyResults(results)

	if err := resultfile.Append(opts.ResultFile, tally); err != nil {
		return WrapExitError(ExitCommandError, "failed to report results", err)
	}

	if tally.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf(
			"worker %d: %d of %d units failed, %d mismatches",
			opts.ProcIndex, tally.Failed, cfg.ThreadsPerProcess, tally.Mismatches))
	}
	logger.Debug("worker finished",
		"proc", opts.ProcIndex,
		"completed", tally.Completed,
		"operations", tally.Operations)
	return nil
}
