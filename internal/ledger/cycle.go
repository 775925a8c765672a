package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voltarena/tally/internal/model"
	"github.com/voltarena/tally/internal/storage"
)

// StartCycle appends a cycle_start event and moves the cycle counter, in
// one transaction. The metadata row is locked for the duration so boundary
// transitions serialize.
func (l *Logger) StartCycle(ctx context.Context, cycleNumber int, triggerType string) error {
	err := l.Run(ctx, func(tx pgx.Tx) error {
		meta, err := storage.GetCycleMetadataForUpdate(ctx, tx)
		if err != nil {
			return err
		}
		if cycleNumber <= meta.TotalCycles {
			return fmt.Errorf("ledger: cycle %d already completed (total %d)", cycleNumber, meta.TotalCycles)
		}
		if _, err := l.append(ctx, tx, cycleNumber, model.EventCycleStart, time.Now().UTC(), nil, nil, nil,
			model.CycleStartPayload{TriggerType: triggerType}); err != nil {
			return err
		}
		return storage.SetCycleMetadata(ctx, tx, cycleNumber, meta.TotalCycles)
	})
	if err != nil {
		return fmt.Errorf("ledger: start cycle %d: %w", cycleNumber, err)
	}
	l.logger.Info("cycle started", "cycle", cycleNumber, "trigger", triggerType)
	return nil
}

// CompleteCycle appends a cycle_complete event and marks the cycle counted,
// in one transaction. After this commits the cycle is closed for writes and
// safe to snapshot.
func (l *Logger) CompleteCycle(ctx context.Context, cycleNumber int, totalDuration time.Duration) error {
	err := l.Run(ctx, func(tx pgx.Tx) error {
		meta, err := storage.GetCycleMetadataForUpdate(ctx, tx)
		if err != nil {
			return err
		}
		if meta.CurrentCycleNumber != cycleNumber {
			return fmt.Errorf("ledger: cycle %d is not the current cycle (current %d)", cycleNumber, meta.CurrentCycleNumber)
		}
		if _, err := l.append(ctx, tx, cycleNumber, model.EventCycleComplete, time.Now().UTC(), nil, nil, nil,
			model.CycleCompletePayload{TotalDurationMs: totalDuration.Milliseconds()}); err != nil {
			return err
		}
		return storage.SetCycleMetadata(ctx, tx, cycleNumber, cycleNumber)
	})
	if err != nil {
		return fmt.Errorf("ledger: complete cycle %d: %w", cycleNumber, err)
	}
	l.logger.Info("cycle completed", "cycle", cycleNumber, "duration", totalDuration)
	return nil
}
