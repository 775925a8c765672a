package snapshot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltarena/tally/internal/model"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func mkEvent(t *testing.T, cycle, seq int, typ model.EventType, userID, robotID *int64, offset time.Duration, payload any) model.Event {
	t.Helper()
	b, err := json.Marshal(payload)
	require.NoError(t, err)
	return model.Event{
		CycleNumber:    cycle,
		SequenceNumber: seq,
		EventType:      typ,
		EventTimestamp: baseTime.Add(offset),
		UserID:         userID,
		RobotID:        robotID,
		Payload:        b,
	}
}

func ptr(v int64) *int64 { return &v }

func TestAggregate_SinglePlayerCycle(t *testing.T) {
	// One player buys a robot for 500,000 and a weapon for 16,000 during
	// the cycle. No income. Capital outflow rolls into purchases, earned
	// credits stay zero.
	user := ptr(42)
	robot := ptr(7)

	in := Input{
		CycleNumber: 1,
		Events: []model.Event{
			mkEvent(t, 1, 1, model.EventCycleStart, nil, nil, 0,
				model.CycleStartPayload{TriggerType: "manual"}),
			mkEvent(t, 1, 2, model.EventCreditChange, user, robot, time.Minute,
				model.CreditChangePayload{Amount: -500_000, Source: model.SourceRobotCreation, NewBalance: 2_500_000}),
			mkEvent(t, 1, 3, model.EventWeaponPurchase, user, robot, 2*time.Minute,
				model.PurchasePayload{Cost: 16_000}),
			mkEvent(t, 1, 4, model.EventCycleComplete, nil, nil, time.Hour,
				model.CycleCompletePayload{TotalDurationMs: 3600000}),
		},
	}

	snap, err := Aggregate(in)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.CycleNumber)
	assert.Equal(t, baseTime, snap.StartTime)
	assert.Equal(t, baseTime.Add(time.Hour), snap.EndTime)
	assert.Equal(t, 0, snap.TotalBattles)
	assert.Equal(t, int64(0), snap.TotalCreditsTransacted)

	require.Len(t, snap.UserMetrics, 1)
	m := snap.UserMetrics[0]
	assert.Equal(t, int64(42), m.UserID)
	assert.Equal(t, int64(0), m.TotalCreditsEarned)
	assert.Equal(t, int64(500_000), m.CapitalDebits)
	assert.Equal(t, int64(16_000), m.WeaponPurchases)
	assert.Equal(t, int64(516_000), m.TotalPurchases)
	// Purchases are capital conversion, not losses.
	assert.Equal(t, int64(0), m.NetProfit)
}

func TestAggregate_FullCycle(t *testing.T) {
	alice, bob := ptr(1), ptr(2)
	r1, r2 := ptr(10), ptr(20)
	winner := int64(10)

	in := Input{
		CycleNumber: 3,
		Events: []model.Event{
			mkEvent(t, 3, 1, model.EventCycleStart, nil, nil, 0,
				model.CycleStartPayload{TriggerType: "scheduled"}),
			mkEvent(t, 3, 2, model.EventBattleComplete, nil, nil, 5*time.Minute,
				model.BattleCompletePayload{BattleID: 99, Robot1ID: 10, Robot2ID: 20,
					WinnerID: &winner, WinnerReward: 12_000, LoserReward: 1_500}),
			mkEvent(t, 3, 3, model.EventCreditChange, alice, r1, 5*time.Minute,
				model.CreditChangePayload{Amount: 12_000, Source: model.SourceBattle}),
			mkEvent(t, 3, 4, model.EventCreditChange, bob, r2, 5*time.Minute,
				model.CreditChangePayload{Amount: 1_500, Source: model.SourceBattle}),
			mkEvent(t, 3, 5, model.EventRobotRepair, bob, r2, 10*time.Minute,
				model.RobotRepairPayload{Cost: 13_608, DamageRepaired: 90, DiscountPercent: 16}),
			mkEvent(t, 3, 6, model.EventPassiveIncome, alice, nil, 20*time.Minute,
				model.PassiveIncomePayload{Merchandising: 10_000, Streaming: 3_000, TotalIncome: 13_000}),
			mkEvent(t, 3, 7, model.EventOperatingCosts, alice, nil, 30*time.Minute,
				model.OperatingCostsPayload{TotalCost: 2_500, Costs: []model.FacilityCost{
					{FacilityType: "repair_bay", Level: 2, Cost: 1_500},
					{FacilityType: "storage_facility", Level: 3, Cost: 1_000},
				}}),
			mkEvent(t, 3, 8, model.EventFacilityUpgrade, bob, nil, 40*time.Minute,
				model.PurchasePayload{Cost: 8_000}),
			mkEvent(t, 3, 9, model.EventAttributeUpgrade, alice, r1, 45*time.Minute,
				model.PurchasePayload{Cost: 2_000}),
			mkEvent(t, 3, 10, model.EventCycleComplete, nil, nil, time.Hour,
				model.CycleCompletePayload{TotalDurationMs: 3600000}),
		},
		Battles: []model.BattleRecord{
			{ID: 99, CycleNumber: 3, Robot1ID: 10, Robot2ID: 20, WinnerID: &winner},
		},
		RobotOwners: map[int64]int64{10: 1, 20: 2},
	}

	snap, err := Aggregate(in)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.TotalBattles)
	assert.Equal(t, int64(13_500), snap.TotalCreditsTransacted)

	require.Len(t, snap.UserMetrics, 2)
	a, b := snap.UserMetrics[0], snap.UserMetrics[1]
	require.Equal(t, int64(1), a.UserID)
	require.Equal(t, int64(2), b.UserID)

	assert.Equal(t, 1, a.BattlesParticipated)
	assert.Equal(t, int64(12_000), a.TotalCreditsEarned)
	assert.Equal(t, int64(10_000), a.MerchandisingIncome)
	assert.Equal(t, int64(3_000), a.StreamingIncome)
	assert.Equal(t, int64(2_500), a.OperatingCosts)
	assert.Equal(t, int64(2_000), a.AttributeUpgrades)
	assert.Equal(t, int64(2_000), a.TotalPurchases)
	// 12000 + 10000 + 3000 − 2500
	assert.Equal(t, int64(22_500), a.NetProfit)

	assert.Equal(t, 1, b.BattlesParticipated)
	assert.Equal(t, int64(1_500), b.TotalCreditsEarned)
	assert.Equal(t, int64(13_608), b.TotalRepairCosts)
	assert.Equal(t, int64(8_000), b.FacilityPurchases)
	assert.Equal(t, int64(8_000), b.TotalPurchases)
	// 1500 − 13608
	assert.Equal(t, int64(-12_108), b.NetProfit)

	require.Len(t, snap.RobotMetrics, 2)
	r1m, r2m := snap.RobotMetrics[0], snap.RobotMetrics[1]
	require.Equal(t, int64(10), r1m.RobotID)
	assert.Equal(t, 1, r1m.BattlesParticipated)
	assert.Equal(t, 1, r1m.Wins)
	assert.Equal(t, 0, r1m.Losses)
	require.Equal(t, int64(20), r2m.RobotID)
	assert.Equal(t, 1, r2m.Losses)
	assert.Equal(t, int64(13_608), r2m.RepairCosts)
}

func TestAggregate_RepairCostsMatchEvents(t *testing.T) {
	user := ptr(1)
	repairs := []int64{13_608, 2_400, 900}

	events := []model.Event{
		mkEvent(t, 6, 1, model.EventCycleStart, nil, nil, 0, model.CycleStartPayload{TriggerType: "manual"}),
	}
	var wantTotal int64
	for i, cost := range repairs {
		events = append(events, mkEvent(t, 6, i+2, model.EventRobotRepair, user, ptr(int64(10+i)),
			time.Duration(i+1)*time.Minute,
			model.RobotRepairPayload{Cost: cost, DamageRepaired: 50}))
		wantTotal += cost
	}
	events = append(events, mkEvent(t, 6, len(repairs)+2, model.EventCycleComplete, nil, nil, time.Hour,
		model.CycleCompletePayload{}))

	snap, err := Aggregate(Input{CycleNumber: 6, Events: events})
	require.NoError(t, err)

	var userTotal, robotTotal int64
	for _, m := range snap.UserMetrics {
		userTotal += m.TotalRepairCosts
	}
	for _, m := range snap.RobotMetrics {
		robotTotal += m.RepairCosts
	}
	assert.Equal(t, wantTotal, userTotal)
	assert.Equal(t, wantTotal, robotTotal)
}

func TestAggregate_DrawCountsBothRobots(t *testing.T) {
	in := Input{
		CycleNumber: 2,
		Events: []model.Event{
			mkEvent(t, 2, 1, model.EventCycleStart, nil, nil, 0, model.CycleStartPayload{TriggerType: "manual"}),
			mkEvent(t, 2, 2, model.EventCycleComplete, nil, nil, time.Hour, model.CycleCompletePayload{}),
		},
		Battles: []model.BattleRecord{
			{ID: 5, CycleNumber: 2, Robot1ID: 10, Robot2ID: 20, WinnerID: nil},
		},
		RobotOwners: map[int64]int64{10: 1, 20: 2},
	}

	snap, err := Aggregate(in)
	require.NoError(t, err)

	require.Len(t, snap.RobotMetrics, 2)
	for _, rm := range snap.RobotMetrics {
		assert.Equal(t, 1, rm.Draws, "robot %d", rm.RobotID)
		assert.Equal(t, 0, rm.Wins)
		assert.Equal(t, 0, rm.Losses)
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	users := []*int64{ptr(3), ptr(1), ptr(2), ptr(5), ptr(4)}
	events := []model.Event{
		mkEvent(t, 4, 1, model.EventCycleStart, nil, nil, 0, model.CycleStartPayload{TriggerType: "manual"}),
	}
	for i, u := range users {
		events = append(events, mkEvent(t, 4, i+2, model.EventCreditChange, u, nil,
			time.Duration(i)*time.Minute,
			model.CreditChangePayload{Amount: int64(1000 * (i + 1)), Source: model.SourceBattle}))
	}
	events = append(events, mkEvent(t, 4, len(users)+2, model.EventCycleComplete, nil, nil, time.Hour,
		model.CycleCompletePayload{}))

	in := Input{CycleNumber: 4, Events: events}

	first, err := Aggregate(in)
	require.NoError(t, err)
	for range 10 {
		again, err := Aggregate(in)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	// Users come out sorted regardless of event order.
	for i := 1; i < len(first.UserMetrics); i++ {
		assert.Less(t, first.UserMetrics[i-1].UserID, first.UserMetrics[i].UserID)
	}
}

func TestAggregate_CycleZeroFallsBackToEventTimestamps(t *testing.T) {
	user := ptr(1)
	in := Input{
		CycleNumber: 0,
		Events: []model.Event{
			mkEvent(t, 0, 2, model.EventCreditChange, user, nil, time.Hour,
				model.CreditChangePayload{Amount: -500_000, Source: model.SourceRobotCreation}),
			mkEvent(t, 0, 1, model.EventCreditChange, user, nil, 0,
				model.CreditChangePayload{Amount: -500_000, Source: model.SourceRobotCreation}),
		},
	}

	snap, err := Aggregate(in)
	require.NoError(t, err)
	assert.Equal(t, baseTime, snap.StartTime)
	assert.Equal(t, baseTime.Add(time.Hour), snap.EndTime)
	require.Len(t, snap.UserMetrics, 1)
	assert.Equal(t, int64(1_000_000), snap.UserMetrics[0].CapitalDebits)
}

func TestAggregate_MissingBoundaryEvents(t *testing.T) {
	user := ptr(1)
	in := Input{
		CycleNumber: 5,
		Events: []model.Event{
			mkEvent(t, 5, 1, model.EventCreditChange, user, nil, 0,
				model.CreditChangePayload{Amount: 100, Source: model.SourceBattle}),
		},
	}
	_, err := Aggregate(in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boundary")
}

func TestAggregate_EmptyCycle(t *testing.T) {
	_, err := Aggregate(Input{CycleNumber: 9})
	require.Error(t, err)
}

func TestAggregate_MalformedPayload(t *testing.T) {
	user := ptr(1)
	bad := mkEvent(t, 1, 2, model.EventRobotRepair, user, ptr(10), time.Minute, model.RobotRepairPayload{})
	bad.Payload = json.RawMessage(`{"cost":`)

	in := Input{
		CycleNumber: 1,
		Events: []model.Event{
			mkEvent(t, 1, 1, model.EventCycleStart, nil, nil, 0, model.CycleStartPayload{TriggerType: "manual"}),
			bad,
			mkEvent(t, 1, 3, model.EventCycleComplete, nil, nil, time.Hour, model.CycleCompletePayload{}),
		},
	}
	_, err := Aggregate(in)
	require.Error(t, err)
}
