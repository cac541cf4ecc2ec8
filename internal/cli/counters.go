package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/asidbench/internal/profiling"
)

// CountersOptions holds flags for the counters command group.
type CountersOptions struct {
	*RootOptions

	// Source allows overriding the counter source (for testing).
	// If nil, defaults to the kernel interface.
	Source profiling.Source
}

// NewCountersCommand creates the counters command group, a thin surface over
// the kernel's profiling interface.
func NewCountersCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CountersOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "counters",
		Short: "Query or manage the kernel ASID profiling counters",
		Long: `Query or manage the kernel's ASID profiling counters.

The counter interface is an optional diagnostic surface; on kernels without
it every subcommand reports "counter interface unavailable".`,
	}

	cmd.AddCommand(newCountersShowCommand(opts))
	cmd.AddCommand(newCountersEfficiencyCommand(opts))
	cmd.AddCommand(newCountersResetCommand(opts))
	cmd.AddCommand(newCountersKernelLogCommand(opts))

	return cmd
}

func (o *CountersOptions) source() profiling.Source {
	if o.Source != nil {
		return o.Source
	}
	return profiling.KernelSource{}
}

func newCountersShowCommand(opts *CountersOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the current counter snapshot",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := opts.source().Stats()
			if err != nil {
				return unavailableError(err)
			}
			if opts.Format == "json" {
				f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return f.Success(stats)
			}
			writeStats(cmd.OutOrStdout(), "Current", stats)
			return nil
		},
	}
}

func newCountersEfficiencyCommand(opts *CountersOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "efficiency",
		Short:         "Print the kernel's derived efficiency ratios",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eff, err := opts.source().Efficiency()
			if err != nil {
				return unavailableError(err)
			}
			if opts.Format == "json" {
				f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
				return f.Success(eff)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "=== ASID Efficiency ===\n")
			fmt.Fprintf(w, "Allocation success:   %.4f%%\n", ppmPercent(eff.AllocationSuccessPPM))
			fmt.Fprintf(w, "Reuse efficiency:     %.4f%%\n", ppmPercent(eff.ReuseEfficiencyPPM))
			fmt.Fprintf(w, "Flush efficiency:     %.4f%%\n", ppmPercent(eff.FlushEfficiencyPPM))
			fmt.Fprintf(w, "Cycles/allocation:    %d\n", eff.AvgCyclesPerAllocation)
			fmt.Fprintf(w, "Cycles/ctx switch:    %d\n", eff.AvgCyclesPerContextSwitch)
			return nil
		},
	}
}

func newCountersResetCommand(opts *CountersOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "reset",
		Short:         "Zero all kernel counters",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.source().Reset(); err != nil {
				return unavailableError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ASID counters reset")
			return nil
		},
	}
}

func newCountersKernelLogCommand(opts *CountersOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "kernel-log",
		Short:         "Ask the kernel to print its detailed report to the kernel log",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.source().PrintKernelLog(); err != nil {
				return unavailableError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Detailed report written to kernel log")
			return nil
		},
	}
}

// unavailableError maps interface failures to a command error. For the
// counters commands the interface is the whole point, so absence is an
// error here, unlike during stress runs where it only downgrades reporting.
func unavailableError(err error) error {
	if errors.Is(err, profiling.ErrUnavailable) {
		return NewExitError(ExitCommandError, "counter interface unavailable on this kernel")
	}
	return WrapExitError(ExitCommandError, "counter query failed", err)
}

// ppmPercent converts a parts-per-million ratio to a percentage.
func ppmPercent(ppm uint64) float64 {
	return float64(ppm) / 10000
}

// writeStats prints a labeled snapshot in the classic text layout.
func writeStats(w io.Writer, label string, s profiling.Stats) {
	fmt.Fprintf(w, "=== %s ASID Statistics ===\n", label)
	fmt.Fprintf(w, "Active ASIDs:         %d\n", s.ActiveASIDs)
	fmt.Fprintf(w, "Current generation:   %d\n", s.CurrentGeneration)
	fmt.Fprintf(w, "Total ASIDs used:     %d\n", s.TotalASIDsUsed)
	fmt.Fprintf(w, "Allocations:          %d\n", s.AllocationsTotal)
	fmt.Fprintf(w, "Deallocations:        %d\n", s.DeallocationsTotal)
	fmt.Fprintf(w, "Allocation failures:  %d\n", s.AllocationFailures)
	fmt.Fprintf(w, "Generation rollovers: %d\n", s.GenerationRollovers)
	fmt.Fprintf(w, "ASID reuse count:     %d\n", s.ReuseCount)
	fmt.Fprintf(w, "Context switches:     %d\n", s.ContextSwitches)
	fmt.Fprintf(w, "  with flush:         %d\n", s.ContextSwitchesWithFlush)
	fmt.Fprintf(w, "TLB flushes:          %d\n", s.TotalFlushes())
	fmt.Fprintf(w, "PCID enabled:         %v\n", s.PCIDEnabled)
	fmt.Fprintln(w)
}

// printStatsSnapshot prints a labeled snapshot, degrading to a warning when
// the interface is unavailable.
func printStatsSnapshot(w io.Writer, src profiling.Source, label string) {
	stats, err := src.Stats()
	if err != nil {
		fmt.Fprintf(w, "Warning: %s counter snapshot unavailable: %v\n\n", label, err)
		return
	}
	writeStats(w, label, stats)
}
