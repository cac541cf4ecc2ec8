// Package spawn materializes the configured population of worker processes
// and guarantees every member reaches a terminal state without indefinite
// blocking.
//
// Processes are spawned in batches with a pacing delay between batches: the
// subsystem under test is specifically stressed by population growth, and
// bounding the spawn rate keeps peak transient resource usage attributable.
// Reaping is bounded: a poll wait up to the configured timeout, a graceful
// termination request, a short grace, then a forced kill followed by a final
// blocking wait so no process is ever left unaccounted for.
package spawn

import (
	"context"
	"io"
	"log/slog"
	"os/exec"
	"syscall"
	"time"

	"github.com/roach88/asidbench/internal/config"
)

// MemberStatus is the orchestrator-side terminal state of one spawned
// process. It is independent of the workload verdict the member reported
// through the result channel.
type MemberStatus int

const (
	// MemberReaped means the process exited and was waited on within the
	// bounded reap path (possibly after a graceful termination request).
	MemberReaped MemberStatus = iota + 1
	// MemberForceKilled means the process exceeded the reap timeout and the
	// grace period and was forcibly terminated.
	MemberForceKilled
	// MemberSpawnFailed means the process never started. The remaining
	// population proceeds; the failure is recorded per member.
	MemberSpawnFailed
)

// String returns the status name.
func (s MemberStatus) String() string {
	switch s {
	case MemberReaped:
		return "Reaped"
	case MemberForceKilled:
		return "ForceKilled"
	case MemberSpawnFailed:
		return "SpawnFailed"
	default:
		return "Unknown"
	}
}

// Member records the fate of one spawned process.
type Member struct {
	Index    int
	PID      int
	Status   MemberStatus
	ExitCode int
	Err      error
}

// CommandBuilder constructs the exec.Cmd for worker process index. The
// harness binary re-execs itself with a hidden worker subcommand; tests
// substitute arbitrary commands.
type CommandBuilder func(index int) *exec.Cmd

// Group spawns and reaps one process population.
type Group struct {
	cfg    config.Config
	build  CommandBuilder
	logger *slog.Logger
}

// NewGroup creates a group builder for the given configuration.
func NewGroup(cfg config.Config, build CommandBuilder, logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Group{cfg: cfg, build: build, logger: logger}
}

// Run spawns the full population in batches, then reaps every member.
// It returns one Member per configured process, indexed by process index.
//
// Context cancellation accelerates the run (workers receive SIGTERM early)
// but never skips the reap: Run does not return until every started process
// has been waited on.
func (g *Group) Run(ctx context.Context) []Member {
	members := make([]Member, g.cfg.Processes)
	running := make([]*exec.Cmd, g.cfg.Processes)

	batch := 0
	for start := 0; start < g.cfg.Processes; start += g.cfg.BatchSize {
		end := start + g.cfg.BatchSize
		if end > g.cfg.Processes {
			end = g.cfg.Processes
		}
		g.logger.Info("spawning batch", "batch", batch, "first", start, "last", end-1)

		for i := start; i < end; i++ {
			cmd := g.build(i)
			if err := cmd.Start(); err != nil {
				members[i] = Member{Index: i, Status: MemberSpawnFailed, ExitCode: -1, Err: err}
				g.logger.Error("spawn failed", "index", i, "error", err)
				continue
			}
			running[i] = cmd
			members[i] = Member{Index: i, PID: cmd.Process.Pid}
		}
		batch++

		// Pace between batches. An interrupt skips the remaining pause but
		// spawned members are still reaped below.
		if end < g.cfg.Processes && g.cfg.BatchPause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(g.cfg.BatchPause):
			}
		}
	}

	g.logger.Info("population spawned, reaping", "processes", g.cfg.Processes)
	for i, cmd := range running {
		if cmd == nil {
			continue
		}
		members[i] = g.reap(ctx, members[i], cmd)
	}
	return members
}

// reap waits for one member within the bounded-reap contract.
func (g *Group) reap(ctx context.Context, m Member, cmd *exec.Cmd) Member {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	wait := func(d time.Duration) (error, bool) {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case err := <-done:
			return err, true
		case <-timer.C:
			return nil, false
		}
	}

	// On interrupt, ask the member to stop early; it still gets the full
	// bounded wait to finish its final verification pass.
	if ctx.Err() != nil {
		_ = cmd.Process.Signal(syscall.SIGTERM)
	}

	if err, ok := wait(g.cfg.ReapTimeout); ok {
		m.Status = MemberReaped
		m.ExitCode = exitCode(err)
		m.Err = err
		return m
	}

	g.logger.Warn("reap timeout, requesting termination", "index", m.Index, "pid", m.PID)
	_ = cmd.Process.Signal(syscall.SIGTERM)
	if err, ok := wait(g.cfg.ReapGrace); ok {
		m.Status = MemberReaped
		m.ExitCode = exitCode(err)
		m.Err = err
		return m
	}

	g.logger.Error("member unresponsive, forcing termination", "index", m.Index, "pid", m.PID)
	_ = cmd.Process.Kill()
	err := <-done // final blocking reap: no zombie leakage
	m.Status = MemberForceKilled
	m.ExitCode = exitCode(err)
	m.Err = err
	return m
}

// exitCode extracts the process exit code from a Wait error.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}

// Summary tallies member outcomes.
type Summary struct {
	Spawned       int
	SpawnFailures int
	ForceKilled   int
}

// Summarize counts member terminal states.
func Summarize(members []Member) Summary {
	var s Summary
	for _, m := range members {
		switch m.Status {
		case MemberSpawnFailed:
			s.SpawnFailures++
		case MemberForceKilled:
			s.Spawned++
			s.ForceKilled++
		default:
			s.Spawned++
		}
	}
	return s
}
