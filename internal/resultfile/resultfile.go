// Package resultfile implements the persisted cross-process result channel.
//
// Worker processes cannot share in-memory aggregate state with the
// orchestrator, so each appends exactly one line of four numbers (completed
// units, failed units, total operations, total mismatches) to a well-known
// temporary file. The orchestrator reads the file back only after every
// worker has been reaped, then deletes it.
package resultfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/roach88/asidbench/internal/workload"
)

// DefaultPath returns a fresh per-run result file path under the system
// temporary directory. A UUID keeps concurrent harness invocations from
// colliding on the channel file.
func DefaultPath() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("asidbench-%s.tally", uuid.NewString()))
}

// Append writes one worker's tally as a single line.
//
// The write is a single O_APPEND write syscall, so concurrent workers never
// interleave within a line.
func Append(path string, t workload.Tally) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open result file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("%d %d %d %d\n", t.Completed, t.Failed, t.Operations, t.Mismatches)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append result line: %w", err)
	}
	return nil
}

// Read parses every tally line from the file. A missing file yields an empty
// slice: a run whose every worker failed to spawn reports nothing.
func Read(path string) ([]workload.Tally, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open result file: %w", err)
	}
	defer f.Close()

	var tallies []workload.Tally
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var t workload.Tally
		if _, err := fmt.Sscanf(line, "%d %d %d %d", &t.Completed, &t.Failed, &t.Operations, &t.Mismatches); err != nil {
			return nil, fmt.Errorf("malformed result line %q: %w", line, err)
		}
		tallies = append(tallies, t)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read result file: %w", err)
	}
	return tallies, nil
}

// Remove deletes the channel file. Missing files are not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
