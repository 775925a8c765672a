package storage

import (
	"context"
	"fmt"

	"github.com/voltarena/tally/internal/model"
)

// GetBattlesByCycle reads the combat resolver's battle records for a cycle.
// The ledger never writes this table.
func (db *DB) GetBattlesByCycle(ctx context.Context, cycleNumber int) ([]model.BattleRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, cycle_number, robot1_id, robot2_id, winner_id, winner_reward, loser_reward, created_at
		 FROM battles WHERE cycle_number = $1
		 ORDER BY id ASC`, cycleNumber,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get battles by cycle: %w", err)
	}
	defer rows.Close()

	var battles []model.BattleRecord
	for rows.Next() {
		var b model.BattleRecord
		if err := rows.Scan(
			&b.ID, &b.CycleNumber, &b.Robot1ID, &b.Robot2ID, &b.WinnerID,
			&b.WinnerReward, &b.LoserReward, &b.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan battle: %w", err)
		}
		battles = append(battles, b)
	}
	return battles, rows.Err()
}

// GetRobotOwners resolves robot ids to their owning user ids.
func (db *DB) GetRobotOwners(ctx context.Context, robotIDs []int64) (map[int64]int64, error) {
	if len(robotIDs) == 0 {
		return map[int64]int64{}, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id FROM robots WHERE id = ANY($1)`, robotIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get robot owners: %w", err)
	}
	defer rows.Close()

	owners := make(map[int64]int64, len(robotIDs))
	for rows.Next() {
		var robotID, userID int64
		if err := rows.Scan(&robotID, &userID); err != nil {
			return nil, fmt.Errorf("storage: scan robot owner: %w", err)
		}
		owners[robotID] = userID
	}
	return owners, rows.Err()
}

// GetRobots lists every robot on the roster, oldest first. Backfill walks
// this to reconstruct pre-ledger creation debits.
func (db *DB) GetRobots(ctx context.Context) ([]model.Robot, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, name, attribute_sum, max_hp, current_hp, total_battles, fame, created_at
		 FROM robots ORDER BY created_at ASC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get robots: %w", err)
	}
	defer rows.Close()

	var robots []model.Robot
	for rows.Next() {
		var r model.Robot
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.Name, &r.AttributeSum, &r.MaxHP, &r.CurrentHP,
			&r.TotalBattles, &r.Fame, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan robot: %w", err)
		}
		robots = append(robots, r)
	}
	return robots, rows.Err()
}

// GetRobotsByUser lists one user's roster. The passive-income producer
// sums battle and fame totals from here.
func (db *DB) GetRobotsByUser(ctx context.Context, userID int64) ([]model.Robot, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, name, attribute_sum, max_hp, current_hp, total_battles, fame, created_at
		 FROM robots WHERE user_id = $1 ORDER BY id ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get robots by user: %w", err)
	}
	defer rows.Close()

	var robots []model.Robot
	for rows.Next() {
		var r model.Robot
		if err := rows.Scan(
			&r.ID, &r.UserID, &r.Name, &r.AttributeSum, &r.MaxHP, &r.CurrentHP,
			&r.TotalBattles, &r.Fame, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan robot: %w", err)
		}
		robots = append(robots, r)
	}
	return robots, rows.Err()
}

// GetFacilities reads a user's facilities. The repair calculator and the
// operating-cost producer consume these read-only.
func (db *DB) GetFacilities(ctx context.Context, userID int64) ([]model.Facility, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, user_id, facility_type, level, active_coach FROM facilities WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get facilities: %w", err)
	}
	defer rows.Close()

	var facilities []model.Facility
	for rows.Next() {
		var f model.Facility
		if err := rows.Scan(&f.ID, &f.UserID, &f.FacilityType, &f.Level, &f.ActiveCoach); err != nil {
			return nil, fmt.Errorf("storage: scan facility: %w", err)
		}
		facilities = append(facilities, f)
	}
	return facilities, rows.Err()
}

// CountRobotsByUser returns the user's active roster size.
func (db *DB) CountRobotsByUser(ctx context.Context, userID int64) (int, error) {
	var n int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM robots WHERE user_id = $1`, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("storage: count robots: %w", err)
	}
	return n, nil
}
