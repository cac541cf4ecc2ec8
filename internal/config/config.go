// Package config defines the immutable test configuration shared by every
// component of the harness.
//
// A Config is created once at startup (from flags or a scenario file),
// validated, and then passed by value into each execution context. Nothing
// mutates it afterwards, so no synchronization is needed to read it from
// worker threads or child processes.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Safety limits, matching the bounds the harness is willing to drive.
const (
	MaxProcesses   = 8192
	MaxBatchSize   = 1000
	MaxRegionBytes = 100 * 1024 * 1024
)

// Config holds every knob for a stress run.
//
// Zero values are not useful on their own; start from Default() and override.
type Config struct {
	// Processes is the number of worker processes to spawn. 1 means the run
	// stays in-process (thread mode).
	Processes int `yaml:"processes"`

	// ThreadsPerProcess is the number of workload units per process, each on
	// its own OS thread.
	ThreadsPerProcess int `yaml:"threads_per_process"`

	// RegionBytes is the size of each unit's private memory region.
	RegionBytes int `yaml:"region_bytes"`

	// Cycles is the number of verify/mutate cycles each unit runs.
	Cycles int `yaml:"cycles"`

	// AccessesPerCycle is the number of random accesses within one cycle.
	AccessesPerCycle int `yaml:"accesses_per_cycle"`

	// Intensity scales the access workload on a 1-10 scale. 10 runs the full
	// configured access count, 1 runs a tenth. Used to derive reduced
	// workloads for large multi-process runs.
	Intensity int `yaml:"intensity"`

	// BatchSize is the number of processes spawned per batch.
	BatchSize int `yaml:"batch_size"`

	// BatchPause is the pacing delay between spawn batches.
	BatchPause time.Duration `yaml:"batch_pause"`

	// StaggerDelay separates thread starts within one process so that the
	// initial region allocations do not land in a single burst.
	StaggerDelay time.Duration `yaml:"stagger_delay"`

	// YieldEvery makes a unit yield the CPU at every N-th cycle boundary.
	// 0 disables voluntary yielding.
	YieldEvery int `yaml:"yield_every"`

	// SampleInterval is the counter sampling cadence. 0 disables sampling.
	SampleInterval time.Duration `yaml:"sample_interval"`

	// Duration bounds the wall-clock run time of each worker group. 0 means
	// run the full cycle budget.
	Duration time.Duration `yaml:"duration"`

	// ReapTimeout is the per-process bounded wait before escalating to
	// graceful and then forced termination.
	ReapTimeout time.Duration `yaml:"reap_timeout"`

	// ReapGrace is the wait after a termination request before the final
	// forced reap.
	ReapGrace time.Duration `yaml:"reap_grace"`

	// MismatchReportCap bounds how many mismatches a unit reports in detail
	// before self-aborting. The recorded mismatch total is not capped.
	MismatchReportCap int `yaml:"mismatch_report_cap"`

	// ShowCounters prints counter snapshots before and after the run.
	ShowCounters bool `yaml:"show_counters"`

	// ResetCounters zeroes the kernel counters before the run.
	ResetCounters bool `yaml:"reset_counters"`
}

// Default returns the baseline configuration, mirroring the defaults the
// harness has always shipped with.
func Default() Config {
	return Config{
		Processes:         1,
		ThreadsPerProcess: 1,
		RegionBytes:       1024 * 1024,
		Cycles:            20,
		AccessesPerCycle:  2000,
		Intensity:         10,
		BatchSize:         100,
		BatchPause:        2 * time.Second,
		StaggerDelay:      10 * time.Millisecond,
		YieldEvery:        10,
		SampleInterval:    100 * time.Millisecond,
		ReapTimeout:       60 * time.Second,
		ReapGrace:         2 * time.Second,
		MismatchReportCap: 10,
	}
}

// Validate checks the configuration bounds.
//
// Zero cycles, zero accesses and a zero-byte region are all legal degenerate
// configurations: the unit still runs its lifecycle and reaches a terminal
// state without touching memory.
func (c Config) Validate() error {
	if c.Processes < 1 || c.Processes > MaxProcesses {
		return fmt.Errorf("invalid process count %d: must be 1-%d", c.Processes, MaxProcesses)
	}
	if c.ThreadsPerProcess < 1 {
		return fmt.Errorf("invalid thread count %d: must be >= 1", c.ThreadsPerProcess)
	}
	if c.RegionBytes < 0 || c.RegionBytes > MaxRegionBytes {
		return fmt.Errorf("invalid region size %d bytes: must be 0-%d", c.RegionBytes, MaxRegionBytes)
	}
	if c.Cycles < 0 {
		return fmt.Errorf("invalid cycle count %d: must be >= 0", c.Cycles)
	}
	if c.AccessesPerCycle < 0 {
		return fmt.Errorf("invalid access count %d: must be >= 0", c.AccessesPerCycle)
	}
	if c.Intensity < 1 || c.Intensity > 10 {
		return fmt.Errorf("invalid intensity %d: must be 1-10", c.Intensity)
	}
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		return fmt.Errorf("invalid batch size %d: must be 1-%d", c.BatchSize, MaxBatchSize)
	}
	if c.ReapTimeout <= 0 {
		return fmt.Errorf("invalid reap timeout %v: must be > 0", c.ReapTimeout)
	}
	if c.MismatchReportCap < 1 {
		return fmt.Errorf("invalid mismatch report cap %d: must be >= 1", c.MismatchReportCap)
	}
	return nil
}

// EffectiveAccesses returns the per-cycle access count scaled by intensity.
func (c Config) EffectiveAccesses() int {
	return c.AccessesPerCycle * c.Intensity / 10
}

// TotalUnits returns the configured population size.
func (c Config) TotalUnits() int {
	return c.Processes * c.ThreadsPerProcess
}

// Load reads a YAML configuration file and overlays it on the defaults.
func Load(data []byte) (Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
