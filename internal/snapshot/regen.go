package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CycleFailure records a cycle that could not be rebuilt during a
// regeneration run.
type CycleFailure struct {
	Cycle int
	Err   error
}

// RegenReport summarizes a regeneration run. Failed cycles do not abort the
// run; they are collected so an operator can retry just those.
type RegenReport struct {
	JobID    uuid.UUID
	Rebuilt  []int
	Failures []CycleFailure
	Elapsed  time.Duration
}

func (r RegenReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("cycle %d: %w", f.Cycle, f.Err))
	}
	return fmt.Errorf("snapshot: regeneration %s: %d of %d cycles failed: %w",
		r.JobID, len(r.Failures), len(r.Failures)+len(r.Rebuilt), errors.Join(errs...))
}

// Regenerate rebuilds snapshots for cycles [from, to] in ascending order,
// replacing any existing rows. Aggregation is deterministic, so rebuilding
// an unchanged cycle is a no-op in content even though the row is rewritten.
func (b *Builder) Regenerate(ctx context.Context, from, to int) (RegenReport, error) {
	if from < 0 || to < from {
		return RegenReport{}, fmt.Errorf("snapshot: invalid regeneration range [%d, %d]", from, to)
	}

	report := RegenReport{JobID: uuid.New()}
	start := time.Now()
	b.logger.Info("snapshot regeneration started", "job_id", report.JobID, "from", from, "to", to)

	for cycle := from; cycle <= to; cycle++ {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("snapshot: regeneration %s interrupted at cycle %d: %w", report.JobID, cycle, err)
		}
		if _, err := b.Replace(ctx, cycle); err != nil {
			b.logger.Error("snapshot rebuild failed", "job_id", report.JobID, "cycle", cycle, "error", err)
			report.Failures = append(report.Failures, CycleFailure{Cycle: cycle, Err: err})
			continue
		}
		report.Rebuilt = append(report.Rebuilt, cycle)
	}

	report.Elapsed = time.Since(start)
	b.logger.Info("snapshot regeneration finished",
		"job_id", report.JobID,
		"rebuilt", len(report.Rebuilt),
		"failed", len(report.Failures),
		"elapsed", report.Elapsed)
	return report, nil
}
