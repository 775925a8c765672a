package ledger

import (
	"context"
	"fmt"

	"github.com/voltarena/tally/internal/economy"
	"github.com/voltarena/tally/internal/model"
)

// IncomeReport summarizes one cycle passive-income run.
type IncomeReport struct {
	UsersPaid    int
	UsersSkipped int
	TotalPaid    int64
}

// PayCyclePassiveIncome pays every user their per-cycle passive income:
// merchandising scaled by prestige, streaming scaled by the roster's
// battle and fame totals, both gated on the income generator's level.
// Each user settles in their own transaction, credit paired with one
// passive_income event. Users without an income generator, or whose
// streams sum to zero, are skipped.
func (l *Logger) PayCyclePassiveIncome(ctx context.Context, cycle int) (IncomeReport, error) {
	var report IncomeReport

	accounts, err := l.db.GetAccounts(ctx)
	if err != nil {
		return report, err
	}

	for _, a := range accounts {
		merch, streaming, err := l.incomeBreakdown(ctx, a)
		if err != nil {
			return report, fmt.Errorf("ledger: passive income for user %d: %w", a.UserID, err)
		}
		if merch+streaming == 0 {
			report.UsersSkipped++
			continue
		}
		if err := l.ApplyPassiveIncome(ctx, cycle, a.UserID, merch, streaming); err != nil {
			return report, err
		}
		report.UsersPaid++
		report.TotalPaid += merch + streaming
	}

	l.logger.Info("cycle passive income paid",
		"cycle", cycle,
		"paid", report.UsersPaid,
		"skipped", report.UsersSkipped,
		"total", report.TotalPaid)
	return report, nil
}

func (l *Logger) incomeBreakdown(ctx context.Context, a model.Account) (merch, streaming int64, err error) {
	facilities, err := l.db.GetFacilities(ctx, a.UserID)
	if err != nil {
		return 0, 0, err
	}

	level := 0
	for _, f := range facilities {
		if f.FacilityType == economy.FacilityIncomeGenerator {
			level = f.Level
			break
		}
	}
	if level <= 0 {
		return 0, 0, nil
	}

	robots, err := l.db.GetRobotsByUser(ctx, a.UserID)
	if err != nil {
		return 0, 0, err
	}
	var battles int
	var fame int64
	for _, r := range robots {
		battles += r.TotalBattles
		fame += r.Fame
	}

	merch = economy.MerchandisingIncome(level, a.Prestige)
	streaming = economy.StreamingIncome(level, battles, fame)
	return merch, streaming, nil
}
