// Package ledger is the typed write API for the economy event log.
//
// Every producer (battle settlement, repairs, purchases, passive income,
// cycle boundaries) appends through here. Each append allocates a per-cycle
// sequence number inside the caller's transaction; the store's unique
// constraint arbitrates races and Run retries the whole transaction on
// conflict. Balance mutations always share the transaction with the event
// that records them.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/voltarena/tally/internal/model"
	"github.com/voltarena/tally/internal/storage"
	"github.com/voltarena/tally/internal/telemetry"
)

// Defaults for the transaction retry loop.
const (
	DefaultMaxRetries = 5
	DefaultBaseDelay  = 10 * time.Millisecond
)

// ErrCycleClosed is returned when a producer tries to append into a cycle
// that has already been counted. Counted cycles are closed for writes so
// their snapshots stay valid; cycle 0 stays open for backfill.
var ErrCycleClosed = errors.New("ledger: cycle closed for writes")

// Logger appends typed events to the ledger.
type Logger struct {
	db     *storage.DB
	logger *slog.Logger

	maxRetries int
	baseDelay  time.Duration

	eventsAppended metric.Int64Counter
	seqConflicts   metric.Int64Counter
}

// Option configures a Logger.
type Option func(*Logger)

// WithRetry overrides the transaction retry settings.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(l *Logger) {
		l.maxRetries = maxRetries
		l.baseDelay = baseDelay
	}
}

// New creates a ledger Logger with default retry settings.
func New(db *storage.DB, logger *slog.Logger, opts ...Option) *Logger {
	meter := telemetry.Meter("tally/ledger")
	appended, _ := meter.Int64Counter("tally.ledger.events_appended",
		metric.WithDescription("Events committed to the audit log"),
	)
	conflicts, _ := meter.Int64Counter("tally.ledger.sequence_conflicts",
		metric.WithDescription("Transactions retried after a sequence-slot race"),
	)
	l := &Logger{
		db:             db,
		logger:         logger,
		maxRetries:     DefaultMaxRetries,
		baseDelay:      DefaultBaseDelay,
		eventsAppended: appended,
		seqConflicts:   conflicts,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes fn inside a transaction, committing on success. The whole
// transaction is retried with backoff on sequence conflicts and
// serialization failures, so fn must be idempotent up to its commit.
func (l *Logger) Run(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return storage.WithRetry(ctx, l.maxRetries, l.baseDelay, func() error {
		tx, err := l.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := fn(tx); err != nil {
			if storage.IsSequenceConflict(err) {
				l.seqConflicts.Add(ctx, 1)
				l.logger.Debug("sequence conflict, retrying transaction")
			}
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			if storage.IsSequenceConflict(err) {
				l.seqConflicts.Add(ctx, 1)
			}
			return fmt.Errorf("ledger: commit: %w", err)
		}
		return nil
	})
}

// append allocates the next sequence number for the cycle, marshals the
// typed payload and inserts the event, all on the caller's transaction.
func (l *Logger) append(ctx context.Context, tx pgx.Tx, cycle int, eventType model.EventType,
	ts time.Time, userID, robotID, battleID *int64, payload any,
) (model.Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return model.Event{}, fmt.Errorf("ledger: marshal %s payload: %w", eventType, err)
	}

	if cycle != 0 {
		meta, err := storage.GetCycleMetadataTx(ctx, tx)
		if err != nil {
			return model.Event{}, err
		}
		if cycle <= meta.TotalCycles {
			return model.Event{}, fmt.Errorf("%w: cycle %d already counted (total %d)", ErrCycleClosed, cycle, meta.TotalCycles)
		}
	}

	seq, err := storage.NextSequence(ctx, tx, cycle)
	if err != nil {
		return model.Event{}, err
	}

	e := model.Event{
		CycleNumber:    cycle,
		SequenceNumber: seq,
		EventType:      eventType,
		EventTimestamp: ts,
		UserID:         userID,
		RobotID:        robotID,
		BattleID:       battleID,
		Payload:        raw,
	}
	id, err := storage.InsertEvent(ctx, tx, e)
	if err != nil {
		return model.Event{}, err
	}
	e.ID = id

	l.eventsAppended.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", string(eventType)),
	))
	return e, nil
}

// LogCreditChange appends a credit_change event. Amount is signed;
// newBalance is the post-mutation balance the caller just wrote in this
// same transaction.
func (l *Logger) LogCreditChange(ctx context.Context, tx pgx.Tx, cycle int, userID, amount, newBalance int64, source string) (model.Event, error) {
	return l.append(ctx, tx, cycle, model.EventCreditChange, time.Now().UTC(), &userID, nil, nil,
		model.CreditChangePayload{Amount: amount, Source: source, NewBalance: newBalance})
}

// LogCreditChangeAt is LogCreditChange with an explicit fact timestamp and
// optional robot reference. Backfill uses it to record historical debits at
// the time they actually happened.
func (l *Logger) LogCreditChangeAt(ctx context.Context, tx pgx.Tx, cycle int, userID int64, robotID *int64,
	amount, newBalance int64, source, note string, ts time.Time,
) (model.Event, error) {
	return l.append(ctx, tx, cycle, model.EventCreditChange, ts, &userID, robotID, nil,
		model.CreditChangePayload{Amount: amount, Source: source, NewBalance: newBalance, Note: note})
}

// LogRepair appends a robot_repair event carrying the authoritative repair
// cost.
func (l *Logger) LogRepair(ctx context.Context, tx pgx.Tx, cycle int, userID, robotID int64,
	cost int64, damageRepaired int, discountPercent float64,
) (model.Event, error) {
	return l.append(ctx, tx, cycle, model.EventRobotRepair, time.Now().UTC(), &userID, &robotID, nil,
		model.RobotRepairPayload{Cost: cost, DamageRepaired: damageRepaired, DiscountPercent: discountPercent})
}

// LogOperatingCosts appends an operating_costs event with the per-facility
// breakdown.
func (l *Logger) LogOperatingCosts(ctx context.Context, tx pgx.Tx, cycle int, userID int64,
	costs []model.FacilityCost, totalCost int64,
) (model.Event, error) {
	return l.append(ctx, tx, cycle, model.EventOperatingCosts, time.Now().UTC(), &userID, nil, nil,
		model.OperatingCostsPayload{Costs: costs, TotalCost: totalCost})
}

// LogPassiveIncome appends a passive_income event.
func (l *Logger) LogPassiveIncome(ctx context.Context, tx pgx.Tx, cycle int, userID int64,
	merchandising, streaming int64,
) (model.Event, error) {
	return l.append(ctx, tx, cycle, model.EventPassiveIncome, time.Now().UTC(), &userID, nil, nil,
		model.PassiveIncomePayload{
			Merchandising: merchandising,
			Streaming:     streaming,
			TotalIncome:   merchandising + streaming,
		})
}

// LogPurchase appends one of the purchase-type events. robotID may be nil
// for purchases that aren't tied to a robot (facilities).
func (l *Logger) LogPurchase(ctx context.Context, tx pgx.Tx, cycle int, userID int64, robotID *int64,
	kind model.EventType, cost int64, details map[string]any,
) (model.Event, error) {
	if !model.PurchaseKinds[kind] {
		return model.Event{}, fmt.Errorf("ledger: %q is not a purchase event type", kind)
	}
	return l.append(ctx, tx, cycle, kind, time.Now().UTC(), &userID, robotID, nil,
		model.PurchasePayload{Cost: cost, Details: details})
}

// LogBattleComplete appends the combat resolver's battle_complete payload
// verbatim. The event itself has no balance effect; reward settlement goes
// through credit_change in the same transaction.
func (l *Logger) LogBattleComplete(ctx context.Context, tx pgx.Tx, cycle int, p model.BattleCompletePayload) (model.Event, error) {
	return l.append(ctx, tx, cycle, model.EventBattleComplete, time.Now().UTC(), nil, nil, &p.BattleID, p)
}
