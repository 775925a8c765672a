package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/voltarena/tally/internal/model"
)

// InsertSnapshot persists a snapshot row. Returns ErrSnapshotExists if the
// cycle already has one — the builder must either refuse or go through
// ReplaceSnapshot explicitly.
func (db *DB) InsertSnapshot(ctx context.Context, s model.CycleSnapshot) error {
	userMetrics, robotMetrics, err := marshalMetrics(s)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO cycle_snapshots (cycle_number, start_time, end_time, total_battles, total_credits_transacted, user_metrics, robot_metrics)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.CycleNumber, s.StartTime, s.EndTime, s.TotalBattles, s.TotalCreditsTransacted,
		userMetrics, robotMetrics,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: cycle %d", ErrSnapshotExists, s.CycleNumber)
		}
		return fmt.Errorf("storage: insert snapshot: %w", err)
	}
	return nil
}

// ReplaceSnapshot atomically swaps the whole snapshot row for a cycle.
// Snapshots are never patched in place; regeneration always rewrites the
// entire row from the current event store state.
func (db *DB) ReplaceSnapshot(ctx context.Context, s model.CycleSnapshot) error {
	userMetrics, robotMetrics, err := marshalMetrics(s)
	if err != nil {
		return err
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("storage: begin replace snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM cycle_snapshots WHERE cycle_number = $1`, s.CycleNumber,
	); err != nil {
		return fmt.Errorf("storage: delete snapshot for replace: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO cycle_snapshots (cycle_number, start_time, end_time, total_battles, total_credits_transacted, user_metrics, robot_metrics)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.CycleNumber, s.StartTime, s.EndTime, s.TotalBattles, s.TotalCreditsTransacted,
		userMetrics, robotMetrics,
	); err != nil {
		return fmt.Errorf("storage: insert replacement snapshot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("storage: commit replace snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves the snapshot for a cycle, or ErrNotFound.
func (db *DB) GetSnapshot(ctx context.Context, cycleNumber int) (model.CycleSnapshot, error) {
	var (
		s            model.CycleSnapshot
		userMetrics  []byte
		robotMetrics []byte
	)
	err := db.pool.QueryRow(ctx,
		`SELECT cycle_number, start_time, end_time, total_battles, total_credits_transacted, user_metrics, robot_metrics, created_at
		 FROM cycle_snapshots WHERE cycle_number = $1`, cycleNumber,
	).Scan(&s.CycleNumber, &s.StartTime, &s.EndTime, &s.TotalBattles, &s.TotalCreditsTransacted,
		&userMetrics, &robotMetrics, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.CycleSnapshot{}, fmt.Errorf("%w: snapshot for cycle %d", ErrNotFound, cycleNumber)
		}
		return model.CycleSnapshot{}, fmt.Errorf("storage: get snapshot: %w", err)
	}
	if err := json.Unmarshal(userMetrics, &s.UserMetrics); err != nil {
		return model.CycleSnapshot{}, fmt.Errorf("storage: decode user metrics: %w", err)
	}
	if err := json.Unmarshal(robotMetrics, &s.RobotMetrics); err != nil {
		return model.CycleSnapshot{}, fmt.Errorf("storage: decode robot metrics: %w", err)
	}
	return s, nil
}

// DeleteSnapshots removes snapshot rows for cycles in [from, to].
// Returns the number of rows deleted.
func (db *DB) DeleteSnapshots(ctx context.Context, from, to int) (int64, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM cycle_snapshots WHERE cycle_number BETWEEN $1 AND $2`, from, to,
	)
	if err != nil {
		return 0, fmt.Errorf("storage: delete snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func marshalMetrics(s model.CycleSnapshot) (userMetrics, robotMetrics []byte, err error) {
	userMetrics, err = json.Marshal(s.UserMetrics)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: encode user metrics: %w", err)
	}
	robotMetrics, err = json.Marshal(s.RobotMetrics)
	if err != nil {
		return nil, nil, fmt.Errorf("storage: encode robot metrics: %w", err)
	}
	return userMetrics, robotMetrics, nil
}
