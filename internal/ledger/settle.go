package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voltarena/tally/internal/economy"
	"github.com/voltarena/tally/internal/model"
	"github.com/voltarena/tally/internal/repair"
	"github.com/voltarena/tally/internal/storage"
)

// Settlement helpers: each pairs a currency mutation with the event that
// records it inside one transaction. If either side fails, both roll back
// and the caller sees a transient error; there is no state where currency
// moved without a matching ledger entry.

// AdjustCredits applies a signed credit change to a user and logs it.
// Returns the new balance.
func (l *Logger) AdjustCredits(ctx context.Context, cycle int, userID, amount int64, source string) (int64, error) {
	var newBalance int64
	err := l.Run(ctx, func(tx pgx.Tx) error {
		var err error
		newBalance, err = storage.AdjustBalance(ctx, tx, userID, amount)
		if err != nil {
			return err
		}
		_, err = l.LogCreditChange(ctx, tx, cycle, userID, amount, newBalance, source)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("ledger: adjust credits for user %d: %w", userID, err)
	}
	return newBalance, nil
}

// SettleRepair debits the quoted repair cost and logs the robot_repair
// event. The quote must come from the repair package; battle-time estimates
// are not accepted here.
func (l *Logger) SettleRepair(ctx context.Context, cycle int, userID, robotID int64, q repair.Quote, damageRepaired int) error {
	err := l.Run(ctx, func(tx pgx.Tx) error {
		if _, err := storage.AdjustBalance(ctx, tx, userID, -q.FinalCost); err != nil {
			return err
		}
		_, err := l.LogRepair(ctx, tx, cycle, userID, robotID, q.FinalCost, damageRepaired, float64(q.DiscountPercent))
		return err
	})
	if err != nil {
		return fmt.Errorf("ledger: settle repair for robot %d: %w", robotID, err)
	}
	return nil
}

// SettlePurchase debits a purchase and logs it under the given purchase
// event type.
func (l *Logger) SettlePurchase(ctx context.Context, cycle int, userID int64, robotID *int64,
	kind model.EventType, cost int64, details map[string]any,
) error {
	err := l.Run(ctx, func(tx pgx.Tx) error {
		if _, err := storage.AdjustBalance(ctx, tx, userID, -cost); err != nil {
			return err
		}
		_, err := l.LogPurchase(ctx, tx, cycle, userID, robotID, kind, cost, details)
		return err
	})
	if err != nil {
		return fmt.Errorf("ledger: settle %s for user %d: %w", kind, userID, err)
	}
	return nil
}

// ApplyPassiveIncome credits merchandising and streaming income and logs
// the passive_income event.
func (l *Logger) ApplyPassiveIncome(ctx context.Context, cycle int, userID, merchandising, streaming int64) error {
	err := l.Run(ctx, func(tx pgx.Tx) error {
		if _, err := storage.AdjustBalance(ctx, tx, userID, merchandising+streaming); err != nil {
			return err
		}
		_, err := l.LogPassiveIncome(ctx, tx, cycle, userID, merchandising, streaming)
		return err
	})
	if err != nil {
		return fmt.Errorf("ledger: apply passive income for user %d: %w", userID, err)
	}
	return nil
}

// ChargeOperatingCosts debits facility upkeep and logs the operating_costs
// event with its breakdown.
func (l *Logger) ChargeOperatingCosts(ctx context.Context, cycle int, userID int64, costs []model.FacilityCost) error {
	var total int64
	for _, c := range costs {
		total += c.Cost
	}
	err := l.Run(ctx, func(tx pgx.Tx) error {
		if _, err := storage.AdjustBalance(ctx, tx, userID, -total); err != nil {
			return err
		}
		_, err := l.LogOperatingCosts(ctx, tx, cycle, userID, costs, total)
		return err
	})
	if err != nil {
		return fmt.Errorf("ledger: charge operating costs for user %d: %w", userID, err)
	}
	return nil
}

// RecordBattle logs the battle_complete event and settles both owners'
// rewards, all in one transaction. Rewards settle as credit_change events
// with source "battle"; the battle_complete row itself carries no balance
// effect, so nothing is double counted.
//
// When the resolver supplies only a league, rewards are estimated from the
// league's payout range: the midpoint for the winner, the participation
// reward for the loser. The winner's settled amount always carries the
// owner's prestige bonus.
func (l *Logger) RecordBattle(ctx context.Context, cycle int, p model.BattleCompletePayload, robot1Owner, robot2Owner int64) error {
	if p.WinnerReward == 0 && p.LoserReward == 0 && p.League != "" {
		p.WinnerReward = economy.BaseReward(p.League).Midpoint()
		p.LoserReward = economy.ParticipationReward(p.League)
	}

	reward1, reward2 := p.LoserReward, p.LoserReward
	if p.WinnerID != nil {
		winnerOwner := robot1Owner
		if *p.WinnerID == p.Robot2ID {
			winnerOwner = robot2Owner
		}
		acct, err := l.db.GetAccount(ctx, winnerOwner)
		if err != nil {
			return fmt.Errorf("ledger: record battle %d: %w", p.BattleID, err)
		}
		winnings := economy.BattleWinnings(p.WinnerReward, acct.Prestige)
		if *p.WinnerID == p.Robot1ID {
			reward1 = winnings
		} else if *p.WinnerID == p.Robot2ID {
			reward2 = winnings
		}
	}

	err := l.Run(ctx, func(tx pgx.Tx) error {
		if _, err := l.LogBattleComplete(ctx, tx, cycle, p); err != nil {
			return err
		}
		for _, settle := range []struct {
			owner  int64
			reward int64
		}{
			{robot1Owner, reward1},
			{robot2Owner, reward2},
		} {
			if settle.reward == 0 {
				continue
			}
			newBalance, err := storage.AdjustBalance(ctx, tx, settle.owner, settle.reward)
			if err != nil {
				return err
			}
			if _, err := l.LogCreditChange(ctx, tx, cycle, settle.owner, settle.reward, newBalance, model.SourceBattle); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger: record battle %d: %w", p.BattleID, err)
	}
	return nil
}
