package model

import "time"

// UserMetrics is the per-user aggregate stored inside a cycle snapshot.
// NetProfit excludes purchases: capital outflow is tracked separately in
// TotalPurchases so a player buying a facility doesn't look unprofitable.
// TotalCreditsEarned sums the positive side of credit_change events;
// negative amounts (robot creation and other capital debits) land in
// CapitalDebits and roll into TotalPurchases instead.
type UserMetrics struct {
	UserID              int64 `json:"userId"`
	BattlesParticipated int   `json:"battlesParticipated"`
	TotalCreditsEarned  int64 `json:"totalCreditsEarned"`
	TotalRepairCosts    int64 `json:"totalRepairCosts"`
	MerchandisingIncome int64 `json:"merchandisingIncome"`
	StreamingIncome     int64 `json:"streamingIncome"`
	OperatingCosts      int64 `json:"operatingCosts"`
	WeaponPurchases     int64 `json:"weaponPurchases"`
	FacilityPurchases   int64 `json:"facilityPurchases"`
	AttributeUpgrades   int64 `json:"attributeUpgrades"`
	CapitalDebits       int64 `json:"capitalDebits"`
	TotalPurchases      int64 `json:"totalPurchases"`
	NetProfit           int64 `json:"netProfit"`
}

// RobotMetrics is the per-robot aggregate stored inside a cycle snapshot.
type RobotMetrics struct {
	RobotID             int64 `json:"robotId"`
	BattlesParticipated int   `json:"battlesParticipated"`
	Wins                int   `json:"wins"`
	Losses              int   `json:"losses"`
	Draws               int   `json:"draws"`
	RepairCosts         int64 `json:"repairCosts"`
}

// CycleSnapshot is the derived per-cycle summary. It is a cache of a pure
// function over the event store: deleting and rebuilding it must always
// reproduce the same row.
type CycleSnapshot struct {
	CycleNumber            int            `json:"cycle_number"`
	StartTime              time.Time      `json:"start_time"`
	EndTime                time.Time      `json:"end_time"`
	TotalBattles           int            `json:"total_battles"`
	TotalCreditsTransacted int64          `json:"total_credits_transacted"`
	UserMetrics            []UserMetrics  `json:"user_metrics"`
	RobotMetrics           []RobotMetrics `json:"robot_metrics"`
	CreatedAt              time.Time      `json:"created_at"`
}

// CycleMetadata is the singleton record tracking cycle progression.
// Mutated only at cycle-boundary transitions, in the same transaction as
// the boundary event append.
type CycleMetadata struct {
	CurrentCycleNumber int       `json:"current_cycle_number"`
	TotalCycles        int       `json:"total_cycles"`
	UpdatedAt          time.Time `json:"updated_at"`
}
