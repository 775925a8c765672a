package model

import "time"

// BattleRecord is a resolved battle as recorded by the combat resolver.
// The ledger core reads these rows but never writes them; per-robot
// win/loss counts in snapshots come from here because battle_complete
// events don't carry outcome per participant redundantly.
type BattleRecord struct {
	ID           int64     `json:"id"`
	CycleNumber  int       `json:"cycle_number"`
	Robot1ID     int64     `json:"robot1_id"`
	Robot2ID     int64     `json:"robot2_id"`
	WinnerID     *int64    `json:"winner_id"` // nil means a draw
	WinnerReward int64     `json:"winner_reward"`
	LoserReward  int64     `json:"loser_reward"`
	CreatedAt    time.Time `json:"created_at"`
}

// Robot is the roster service's view of a robot, as much of it as the
// ledger needs: ownership for aggregation, attributes and HP for repair
// pricing, creation time for historical backfill.
type Robot struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"user_id"`
	Name         string    `json:"name"`
	AttributeSum int       `json:"attribute_sum"`
	MaxHP        int       `json:"max_hp"`
	CurrentHP    int       `json:"current_hp"`
	TotalBattles int       `json:"total_battles"`
	Fame         int64     `json:"fame"`
	CreatedAt    time.Time `json:"created_at"`
}

// Facility is the facility service's view of one owned facility.
type Facility struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	FacilityType string `json:"facility_type"`
	Level        int    `json:"level"`
	ActiveCoach  bool   `json:"active_coach"`
}

// Account is the currency service's view of a user's balance. The ledger
// never owns the row; it reads and adjusts currency inside the same
// transaction as the corresponding event append.
type Account struct {
	UserID          int64 `json:"user_id"`
	Currency        int64 `json:"currency"`
	StartingBalance int64 `json:"starting_balance"`
	Prestige        int64 `json:"prestige"`
}
