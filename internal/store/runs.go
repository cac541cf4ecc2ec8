package store

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/asidbench/internal/report"
	"github.com/roach88/asidbench/internal/sampler"
)

// timeFormat is the canonical timestamp encoding for run rows.
const timeFormat = time.RFC3339Nano

// RunSummary is one row of the run history listing.
type RunSummary struct {
	ID            string    `json:"id"`
	Started       time.Time `json:"started"`
	ExpectedUnits int       `json:"expected_units"`
	Succeeded     int       `json:"succeeded"`
	FailedUnits   int       `json:"failed_units"`
	Mismatches    uint64    `json:"mismatches"`
	Passed        bool      `json:"passed"`
}

// RecordRun persists one aggregate result and its sample sequence in a
// single transaction.
func (s *Store) RecordRun(ctx context.Context, res *report.AggregateResult, samples []sampler.Sample) error {
	cfgYAML, err := yaml.Marshal(res.Config)
	if err != nil {
		return fmt.Errorf("record run: marshal config: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("record run: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, started, finished, config, expected_units, succeeded, failed_units,
		 spawn_failures, forced_reaps, operations, mismatches, diagnostics, passed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		res.RunID,
		res.Started.UTC().Format(timeFormat),
		res.Finished.UTC().Format(timeFormat),
		string(cfgYAML),
		res.ExpectedUnits,
		res.Succeeded,
		res.FailedUnits,
		res.SpawnFailures,
		res.ForcedReaps,
		res.TotalOperations,
		res.TotalMismatches,
		boolInt(res.DiagnosticsAvailable),
		boolInt(res.Passed),
	)
	if err != nil {
		return fmt.Errorf("record run: insert run: %w", err)
	}

	for i, sm := range samples {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO samples
			(run_id, seq, taken, valid, allocations, failures, rollovers,
			 flushes, switches, switches_with_flush, active_asids, generation)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			res.RunID,
			i,
			sm.Taken.UTC().Format(timeFormat),
			boolInt(sm.Valid),
			sm.Stats.AllocationsTotal,
			sm.Stats.AllocationFailures,
			sm.Stats.GenerationRollovers,
			sm.Stats.TotalFlushes(),
			sm.Stats.ContextSwitches,
			sm.Stats.ContextSwitchesWithFlush,
			sm.Stats.ActiveASIDs,
			sm.Stats.CurrentGeneration,
		)
		if err != nil {
			return fmt.Errorf("record run: insert sample %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("record run: commit: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started, expected_units, succeeded, failed_units, mismatches, passed
		FROM runs
		ORDER BY started DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var started string
		var passed int
		if err := rows.Scan(&r.ID, &started, &r.ExpectedUnits, &r.Succeeded,
			&r.FailedUnits, &r.Mismatches, &passed); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		r.Started, err = time.Parse(timeFormat, started)
		if err != nil {
			return nil, fmt.Errorf("list runs: parse time %q: %w", started, err)
		}
		r.Passed = passed != 0
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
