package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType is the category of a ledger event.
type EventType string

const (
	// Balance-affecting events.
	EventCreditChange     EventType = "credit_change"
	EventRobotRepair      EventType = "robot_repair"
	EventOperatingCosts   EventType = "operating_costs"
	EventPassiveIncome    EventType = "passive_income"
	EventWeaponPurchase   EventType = "weapon_purchase"
	EventFacilityPurchase EventType = "facility_purchase"
	EventFacilityUpgrade  EventType = "facility_upgrade"
	EventAttributeUpgrade EventType = "attribute_upgrade"

	// Informational events.
	EventBattleComplete EventType = "battle_complete"

	// Cycle boundary events.
	EventCycleStart    EventType = "cycle_start"
	EventCycleComplete EventType = "cycle_complete"
)

// PurchaseKinds maps the purchase-style event types to true. All of them
// carry a Cost field and count as capital outflow in snapshots.
var PurchaseKinds = map[EventType]bool{
	EventWeaponPurchase:   true,
	EventFacilityPurchase: true,
	EventFacilityUpgrade:  true,
	EventAttributeUpgrade: true,
}

// ValidEventTypes is the closed set of types the store accepts.
var ValidEventTypes = map[EventType]bool{
	EventCreditChange:     true,
	EventRobotRepair:      true,
	EventOperatingCosts:   true,
	EventPassiveIncome:    true,
	EventWeaponPurchase:   true,
	EventFacilityPurchase: true,
	EventFacilityUpgrade:  true,
	EventAttributeUpgrade: true,
	EventBattleComplete:   true,
	EventCycleStart:       true,
	EventCycleComplete:    true,
}

// Event is an append-only entry in the economy ledger.
// Source of truth. Never mutated or deleted; corrections are appended.
type Event struct {
	ID             int64           `json:"id"`
	CycleNumber    int             `json:"cycle_number"`
	SequenceNumber int             `json:"sequence_number"`
	EventType      EventType       `json:"event_type"`
	EventTimestamp time.Time       `json:"event_timestamp"`
	UserID         *int64          `json:"user_id,omitempty"`
	RobotID        *int64          `json:"robot_id,omitempty"`
	BattleID       *int64          `json:"battle_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
}

// CreditChangePayload is the payload for credit_change events.
// Amount is signed: positive for income (battle rewards), negative for
// debits that are not covered by a more specific event type (robot creation,
// administrative adjustments).
type CreditChangePayload struct {
	Amount     int64  `json:"amount"`
	Source     string `json:"source"`
	NewBalance int64  `json:"newBalance"`
	Note       string `json:"note,omitempty"`
}

// Credit change sources.
const (
	SourceBattle        = "battle"
	SourceRobotCreation = "robot_creation"
	SourceAdmin         = "admin"
)

// RobotRepairPayload is the payload for robot_repair events. Cost is the
// authoritative figure from the repair calculator; any estimate carried in a
// battle_complete payload is provisional and never settled against.
type RobotRepairPayload struct {
	Cost            int64   `json:"cost"`
	DamageRepaired  int     `json:"damageRepaired"`
	DiscountPercent float64 `json:"discountPercent"`
}

// FacilityCost is one line of an operating-costs breakdown.
type FacilityCost struct {
	FacilityType string `json:"facilityType"`
	Level        int    `json:"level"`
	Cost         int64  `json:"cost"`
}

// OperatingCostsPayload is the payload for operating_costs events.
type OperatingCostsPayload struct {
	Costs     []FacilityCost `json:"costs"`
	TotalCost int64          `json:"totalCost"`
}

// PassiveIncomePayload is the payload for passive_income events.
type PassiveIncomePayload struct {
	Merchandising int64 `json:"merchandising"`
	Streaming     int64 `json:"streaming"`
	TotalIncome   int64 `json:"totalIncome"`
}

// PurchasePayload is the payload shared by weapon_purchase,
// facility_purchase, facility_upgrade and attribute_upgrade events.
type PurchasePayload struct {
	Cost    int64          `json:"cost"`
	Details map[string]any `json:"details,omitempty"`
}

// BattleCompletePayload is the payload for battle_complete events, logged
// verbatim from the combat resolver. Repair costs here are battle-time
// estimates, informational only.
type BattleCompletePayload struct {
	BattleID         int64  `json:"battleId"`
	Robot1ID         int64  `json:"robot1Id"`
	Robot2ID         int64  `json:"robot2Id"`
	WinnerID         *int64 `json:"winnerId"`
	League           string `json:"league,omitempty"`
	WinnerReward     int64  `json:"winnerReward"`
	LoserReward      int64  `json:"loserReward"`
	Robot1RepairCost int64  `json:"robot1RepairCost"`
	Robot2RepairCost int64  `json:"robot2RepairCost"`
}

// CycleStartPayload is the payload for cycle_start events.
type CycleStartPayload struct {
	TriggerType string `json:"triggerType"` // manual | scheduled
}

// CycleCompletePayload is the payload for cycle_complete events.
type CycleCompletePayload struct {
	TotalDurationMs int64 `json:"totalDuration"`
}

// SignedEffect returns the event's signed contribution to its user's
// balance. Informational and cycle-boundary events contribute zero.
// This is the definition the balance reconciliation invariant sums over.
func SignedEffect(e Event) (int64, error) {
	switch e.EventType {
	case EventCreditChange:
		var p CreditChangePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return 0, fmt.Errorf("model: decode credit_change payload: %w", err)
		}
		return p.Amount, nil
	case EventPassiveIncome:
		var p PassiveIncomePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return 0, fmt.Errorf("model: decode passive_income payload: %w", err)
		}
		return p.Merchandising + p.Streaming, nil
	case EventRobotRepair:
		var p RobotRepairPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return 0, fmt.Errorf("model: decode robot_repair payload: %w", err)
		}
		return -p.Cost, nil
	case EventOperatingCosts:
		var p OperatingCostsPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return 0, fmt.Errorf("model: decode operating_costs payload: %w", err)
		}
		return -p.TotalCost, nil
	case EventWeaponPurchase, EventFacilityPurchase, EventFacilityUpgrade, EventAttributeUpgrade:
		var p PurchasePayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return 0, fmt.Errorf("model: decode %s payload: %w", e.EventType, err)
		}
		return -p.Cost, nil
	case EventBattleComplete, EventCycleStart, EventCycleComplete:
		return 0, nil
	default:
		return 0, fmt.Errorf("model: unknown event type %q", e.EventType)
	}
}
