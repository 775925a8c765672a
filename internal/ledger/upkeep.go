package ledger

import (
	"context"
	"fmt"

	"github.com/voltarena/tally/internal/economy"
	"github.com/voltarena/tally/internal/model"
)

// UpkeepReport summarizes one cycle upkeep run.
type UpkeepReport struct {
	UsersCharged int
	UsersSkipped int
	TotalCharged int64
}

// ChargeCycleUpkeep charges every user their per-cycle facility upkeep:
// the operating cost of each owned facility plus the roster-expansion and
// coaching-staff surcharges. Each user settles in their own transaction,
// debit paired with one operating_costs event. Users with nothing to pay
// are skipped.
func (l *Logger) ChargeCycleUpkeep(ctx context.Context, cycle int) (UpkeepReport, error) {
	var report UpkeepReport

	accounts, err := l.db.GetAccounts(ctx)
	if err != nil {
		return report, err
	}

	for _, a := range accounts {
		costs, err := l.upkeepBreakdown(ctx, a.UserID)
		if err != nil {
			return report, fmt.Errorf("ledger: upkeep for user %d: %w", a.UserID, err)
		}
		if len(costs) == 0 {
			report.UsersSkipped++
			continue
		}
		if err := l.ChargeOperatingCosts(ctx, cycle, a.UserID, costs); err != nil {
			return report, err
		}
		report.UsersCharged++
		for _, c := range costs {
			report.TotalCharged += c.Cost
		}
	}

	l.logger.Info("cycle upkeep charged",
		"cycle", cycle,
		"charged", report.UsersCharged,
		"skipped", report.UsersSkipped,
		"total", report.TotalCharged)
	return report, nil
}

func (l *Logger) upkeepBreakdown(ctx context.Context, userID int64) ([]model.FacilityCost, error) {
	facilities, err := l.db.GetFacilities(ctx, userID)
	if err != nil {
		return nil, err
	}

	var costs []model.FacilityCost
	for _, f := range facilities {
		switch f.FacilityType {
		case economy.FacilityRosterExpansion:
			robots, err := l.db.CountRobotsByUser(ctx, userID)
			if err != nil {
				return nil, err
			}
			if c := economy.RosterExpansionCost(robots); c > 0 {
				costs = append(costs, model.FacilityCost{FacilityType: f.FacilityType, Level: f.Level, Cost: c})
			}
		case economy.FacilityCoachingStaff:
			if c := economy.CoachingStaffCost(f.ActiveCoach); c > 0 {
				costs = append(costs, model.FacilityCost{FacilityType: f.FacilityType, Level: f.Level, Cost: c})
			}
		default:
			if c := economy.OperatingCost(f.FacilityType, f.Level); c > 0 {
				costs = append(costs, model.FacilityCost{FacilityType: f.FacilityType, Level: f.Level, Cost: c})
			}
		}
	}
	return costs, nil
}
