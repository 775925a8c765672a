package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/voltarena/tally/internal/model"
)

// NextSequence returns the next free sequence number for a cycle, read
// inside the caller's transaction. The read is a plain MAX+1: the unique
// constraint on (cycle_number, sequence_number) is the final arbiter, and
// the ledger transaction runner retries the whole transaction when two
// appenders race on the same slot.
func NextSequence(ctx context.Context, tx pgx.Tx, cycleNumber int) (int, error) {
	var next int
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) + 1 FROM audit_events WHERE cycle_number = $1`,
		cycleNumber,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("storage: next sequence for cycle %d: %w", cycleNumber, err)
	}
	return next, nil
}

// InsertEvent appends one event inside the caller's transaction and returns
// the store-assigned id. Sequence conflicts surface as unique violations;
// see IsSequenceConflict.
func InsertEvent(ctx context.Context, tx pgx.Tx, e model.Event) (int64, error) {
	if !model.ValidEventTypes[e.EventType] {
		return 0, fmt.Errorf("storage: invalid event type %q", e.EventType)
	}
	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO audit_events (cycle_number, sequence_number, event_type, event_timestamp, user_id, robot_id, battle_id, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 RETURNING id`,
		e.CycleNumber, e.SequenceNumber, string(e.EventType), e.EventTimestamp,
		e.UserID, e.RobotID, e.BattleID, e.Payload,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("storage: insert event: %w", err)
	}
	return id, nil
}

const eventColumns = `id, cycle_number, sequence_number, event_type, event_timestamp, user_id, robot_id, battle_id, payload, created_at`

// GetEventsByCycle retrieves all events for a cycle in sequence order.
func (db *DB) GetEventsByCycle(ctx context.Context, cycleNumber int) ([]model.Event, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM audit_events
		 WHERE cycle_number = $1
		 ORDER BY sequence_number ASC`, cycleNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get events by cycle: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEventsByUser retrieves all events for a user across all cycles, in
// commit order. Used by balance reconciliation.
func (db *DB) GetEventsByUser(ctx context.Context, userID int64) ([]model.Event, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM audit_events
		 WHERE user_id = $1
		 ORDER BY cycle_number ASC, sequence_number ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get events by user: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEventsByRobot retrieves all events referencing a robot across all
// cycles, in commit order.
func (db *DB) GetEventsByRobot(ctx context.Context, robotID int64) ([]model.Event, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM audit_events
		 WHERE robot_id = $1
		 ORDER BY cycle_number ASC, sequence_number ASC`, robotID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get events by robot: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetEventsByCycleAndType retrieves a cycle's events of one type in
// sequence order.
func (db *DB) GetEventsByCycleAndType(ctx context.Context, cycleNumber int, eventType model.EventType) ([]model.Event, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM audit_events
		 WHERE cycle_number = $1 AND event_type = $2
		 ORDER BY sequence_number ASC`, cycleNumber, string(eventType),
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get events by cycle and type: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// HasCreditChangeNear reports whether a credit_change event with the given
// user, amount and source exists inside the [from, to] window. Backfill
// uses this to detect facts that were already recorded.
func (db *DB) HasCreditChangeNear(ctx context.Context, userID, amount int64, source string, from, to time.Time) (bool, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_events
		 WHERE user_id = $1
		   AND event_type = 'credit_change'
		   AND (payload->>'amount')::bigint = $2
		   AND payload->>'source' = $3
		   AND event_timestamp BETWEEN $4 AND $5`,
		userID, amount, source, from, to,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage: credit_change lookup: %w", err)
	}
	return n > 0, nil
}

func scanEvents(rows pgx.Rows) ([]model.Event, error) {
	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(
			&e.ID, &e.CycleNumber, &e.SequenceNumber, &e.EventType, &e.EventTimestamp,
			&e.UserID, &e.RobotID, &e.BattleID, &e.Payload, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
