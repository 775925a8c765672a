package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/voltarena/tally/internal/model"
)

// Input is everything Aggregate needs: the cycle's events, the combat
// resolver's battle records, and robot ownership for attributing battle
// participation to users.
type Input struct {
	CycleNumber int
	Events      []model.Event
	Battles     []model.BattleRecord
	RobotOwners map[int64]int64
}

// Aggregate derives a cycle snapshot from an Input. It is pure and
// deterministic: the same input always produces byte-identical metrics
// (users and robots are emitted in ascending id order), which is what makes
// delete-and-rebuild regeneration safe.
func Aggregate(in Input) (model.CycleSnapshot, error) {
	if len(in.Events) == 0 {
		return model.CycleSnapshot{}, fmt.Errorf("snapshot: cycle %d has no events", in.CycleNumber)
	}

	startTime, endTime, err := cycleBounds(in)
	if err != nil {
		return model.CycleSnapshot{}, err
	}

	users := make(map[int64]*model.UserMetrics)
	robots := make(map[int64]*model.RobotMetrics)

	userMetric := func(userID int64) *model.UserMetrics {
		m, ok := users[userID]
		if !ok {
			m = &model.UserMetrics{UserID: userID}
			users[userID] = m
		}
		return m
	}
	robotMetric := func(robotID int64) *model.RobotMetrics {
		m, ok := robots[robotID]
		if !ok {
			m = &model.RobotMetrics{RobotID: robotID}
			robots[robotID] = m
		}
		return m
	}

	for _, e := range in.Events {
		switch e.EventType {
		case model.EventCreditChange:
			if e.UserID == nil {
				continue
			}
			var p model.CreditChangePayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return model.CycleSnapshot{}, decodeErr(e, err)
			}
			m := userMetric(*e.UserID)
			if p.Amount >= 0 {
				m.TotalCreditsEarned += p.Amount
			} else {
				m.CapitalDebits += -p.Amount
			}

		case model.EventRobotRepair:
			var p model.RobotRepairPayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return model.CycleSnapshot{}, decodeErr(e, err)
			}
			if e.UserID != nil {
				userMetric(*e.UserID).TotalRepairCosts += p.Cost
			}
			if e.RobotID != nil {
				robotMetric(*e.RobotID).RepairCosts += p.Cost
			}

		case model.EventOperatingCosts:
			if e.UserID == nil {
				continue
			}
			var p model.OperatingCostsPayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return model.CycleSnapshot{}, decodeErr(e, err)
			}
			userMetric(*e.UserID).OperatingCosts += p.TotalCost

		case model.EventPassiveIncome:
			if e.UserID == nil {
				continue
			}
			var p model.PassiveIncomePayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return model.CycleSnapshot{}, decodeErr(e, err)
			}
			m := userMetric(*e.UserID)
			m.MerchandisingIncome += p.Merchandising
			m.StreamingIncome += p.Streaming

		case model.EventWeaponPurchase, model.EventFacilityPurchase, model.EventFacilityUpgrade, model.EventAttributeUpgrade:
			if e.UserID == nil {
				continue
			}
			var p model.PurchasePayload
			if err := json.Unmarshal(e.Payload, &p); err != nil {
				return model.CycleSnapshot{}, decodeErr(e, err)
			}
			m := userMetric(*e.UserID)
			switch e.EventType {
			case model.EventWeaponPurchase:
				m.WeaponPurchases += p.Cost
			case model.EventFacilityPurchase, model.EventFacilityUpgrade:
				m.FacilityPurchases += p.Cost
			case model.EventAttributeUpgrade:
				m.AttributeUpgrades += p.Cost
			}
		}
	}

	for _, b := range in.Battles {
		for _, robotID := range []int64{b.Robot1ID, b.Robot2ID} {
			rm := robotMetric(robotID)
			rm.BattlesParticipated++
			switch {
			case b.WinnerID == nil:
				rm.Draws++
			case *b.WinnerID == robotID:
				rm.Wins++
			default:
				rm.Losses++
			}
			if owner, ok := in.RobotOwners[robotID]; ok {
				userMetric(owner).BattlesParticipated++
			}
		}
	}

	var totalCredits int64
	for _, m := range users {
		m.TotalPurchases = m.WeaponPurchases + m.FacilityPurchases + m.AttributeUpgrades + m.CapitalDebits
		m.NetProfit = m.TotalCreditsEarned + m.MerchandisingIncome + m.StreamingIncome -
			m.TotalRepairCosts - m.OperatingCosts
		totalCredits += m.TotalCreditsEarned
	}

	return model.CycleSnapshot{
		CycleNumber:            in.CycleNumber,
		StartTime:              startTime,
		EndTime:                endTime,
		TotalBattles:           len(in.Battles),
		TotalCreditsTransacted: totalCredits,
		UserMetrics:            sortedUsers(users),
		RobotMetrics:           sortedRobots(robots),
	}, nil
}

// cycleBounds takes the cycle window from the boundary events. Cycle 0 has
// no boundary events (it is the pre-cycle setup period), so it falls back
// to the first and last fact timestamps.
func cycleBounds(in Input) (start, end time.Time, err error) {
	var haveStart, haveEnd bool
	for _, e := range in.Events {
		switch e.EventType {
		case model.EventCycleStart:
			start, haveStart = e.EventTimestamp, true
		case model.EventCycleComplete:
			end, haveEnd = e.EventTimestamp, true
		}
	}
	if haveStart && haveEnd {
		return start, end, nil
	}
	if in.CycleNumber != 0 {
		return time.Time{}, time.Time{}, fmt.Errorf(
			"snapshot: cycle %d is missing its boundary events (start=%v complete=%v)",
			in.CycleNumber, haveStart, haveEnd)
	}

	start, end = in.Events[0].EventTimestamp, in.Events[0].EventTimestamp
	for _, e := range in.Events[1:] {
		if e.EventTimestamp.Before(start) {
			start = e.EventTimestamp
		}
		if e.EventTimestamp.After(end) {
			end = e.EventTimestamp
		}
	}
	return start, end, nil
}

func sortedUsers(users map[int64]*model.UserMetrics) []model.UserMetrics {
	out := make([]model.UserMetrics, 0, len(users))
	for _, m := range users {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func sortedRobots(robots map[int64]*model.RobotMetrics) []model.RobotMetrics {
	out := make([]model.RobotMetrics, 0, len(robots))
	for _, m := range robots {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RobotID < out[j].RobotID })
	return out
}

func decodeErr(e model.Event, err error) error {
	return fmt.Errorf("snapshot: decode %s payload (cycle %d seq %d): %w",
		e.EventType, e.CycleNumber, e.SequenceNumber, err)
}
