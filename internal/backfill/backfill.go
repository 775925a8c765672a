// Package backfill records historical facts that predate the ledger, so
// event-history replay reconciles with live balances.
package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/voltarena/tally/internal/ledger"
	"github.com/voltarena/tally/internal/model"
	"github.com/voltarena/tally/internal/storage"
)

// Report summarizes one backfill run.
type Report struct {
	JobID   uuid.UUID
	Created int
	Skipped int
	Elapsed time.Duration
}

// Backfiller writes synthetic cycle-0 events for purchases made before
// event logging existed.
type Backfiller struct {
	db     *storage.DB
	ledger *ledger.Logger
	logger *slog.Logger

	robotCost int64
	window    time.Duration
}

// New builds a Backfiller. robotCost is the robot creation price to record
// per pre-ledger robot; window is the timestamp tolerance used to detect
// facts that were already recorded.
func New(db *storage.DB, lg *ledger.Logger, logger *slog.Logger, robotCost int64, window time.Duration) *Backfiller {
	return &Backfiller{db: db, ledger: lg, logger: logger, robotCost: robotCost, window: window}
}

// RobotCreations records a credit_change debit for every robot whose
// creation predates its owner's event history. Events land in cycle 0 with
// the robot's creation time as the fact timestamp. The run is idempotent:
// a debit matching on user, amount, source and a timestamp within the
// window is counted as already recorded and skipped.
func (b *Backfiller) RobotCreations(ctx context.Context) (Report, error) {
	report := Report{JobID: uuid.New()}
	start := time.Now()
	b.logger.Info("robot creation backfill started", "job_id", report.JobID, "cost", b.robotCost)

	robots, err := b.db.GetRobots(ctx)
	if err != nil {
		return report, err
	}

	for _, robot := range robots {
		exists, err := b.db.HasCreditChangeNear(ctx, robot.UserID, -b.robotCost, model.SourceRobotCreation,
			robot.CreatedAt.Add(-b.window), robot.CreatedAt.Add(b.window))
		if err != nil {
			return report, err
		}
		if exists {
			report.Skipped++
			continue
		}

		account, err := b.db.GetAccount(ctx, robot.UserID)
		if err != nil {
			return report, err
		}
		robotID := robot.ID
		err = b.ledger.Run(ctx, func(tx pgx.Tx) error {
			_, err := b.ledger.LogCreditChangeAt(ctx, tx, 0, robot.UserID, &robotID,
				-b.robotCost, account.Currency,
				model.SourceRobotCreation, fmt.Sprintf("robot %q creation", robot.Name),
				robot.CreatedAt)
			return err
		})
		if err != nil {
			return report, fmt.Errorf("backfill: robot %d: %w", robot.ID, err)
		}
		report.Created++
	}

	report.Elapsed = time.Since(start)
	b.logger.Info("robot creation backfill finished",
		"job_id", report.JobID,
		"created", report.Created,
		"skipped", report.Skipped,
		"elapsed", report.Elapsed)
	return report, nil
}
