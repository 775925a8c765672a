package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voltarena/tally/internal/model"
)

// GetCycleMetadata reads the singleton cycle record.
func (db *DB) GetCycleMetadata(ctx context.Context) (model.CycleMetadata, error) {
	var m model.CycleMetadata
	err := db.pool.QueryRow(ctx,
		`SELECT current_cycle_number, total_cycles, updated_at FROM cycle_metadata WHERE id = 1`,
	).Scan(&m.CurrentCycleNumber, &m.TotalCycles, &m.UpdatedAt)
	if err != nil {
		return model.CycleMetadata{}, fmt.Errorf("storage: get cycle metadata: %w", err)
	}
	return m, nil
}

// GetCycleMetadataTx reads the singleton cycle record on the caller's
// transaction without locking it. The append path uses this to refuse
// writes into cycles that are already counted.
func GetCycleMetadataTx(ctx context.Context, tx pgx.Tx) (model.CycleMetadata, error) {
	var m model.CycleMetadata
	err := tx.QueryRow(ctx,
		`SELECT current_cycle_number, total_cycles, updated_at FROM cycle_metadata WHERE id = 1`,
	).Scan(&m.CurrentCycleNumber, &m.TotalCycles, &m.UpdatedAt)
	if err != nil {
		return model.CycleMetadata{}, fmt.Errorf("storage: get cycle metadata: %w", err)
	}
	return m, nil
}

// GetCycleMetadataForUpdate reads the singleton cycle record with a row
// lock, serializing cycle-boundary transitions against each other.
func GetCycleMetadataForUpdate(ctx context.Context, tx pgx.Tx) (model.CycleMetadata, error) {
	var m model.CycleMetadata
	err := tx.QueryRow(ctx,
		`SELECT current_cycle_number, total_cycles, updated_at FROM cycle_metadata WHERE id = 1 FOR UPDATE`,
	).Scan(&m.CurrentCycleNumber, &m.TotalCycles, &m.UpdatedAt)
	if err != nil {
		return model.CycleMetadata{}, fmt.Errorf("storage: lock cycle metadata: %w", err)
	}
	return m, nil
}

// SetCycleMetadata updates the singleton cycle record inside the caller's
// transaction, so boundary events and the counter move together.
func SetCycleMetadata(ctx context.Context, tx pgx.Tx, currentCycle, totalCycles int) error {
	_, err := tx.Exec(ctx,
		`UPDATE cycle_metadata SET current_cycle_number = $1, total_cycles = $2, updated_at = now() WHERE id = 1`,
		currentCycle, totalCycles,
	)
	if err != nil {
		return fmt.Errorf("storage: set cycle metadata: %w", err)
	}
	return nil
}
