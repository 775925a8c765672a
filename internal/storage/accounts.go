package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/voltarena/tally/internal/model"
)

// ErrAccountNotFound is returned when a user has no account row.
// It wraps ErrNotFound so callers can use errors.Is(err, ErrNotFound).
var ErrAccountNotFound = fmt.Errorf("storage: account: %w", ErrNotFound)

// AdjustBalance applies a signed delta to a user's currency inside the
// caller's transaction and returns the new balance. The row belongs to the
// currency service; the ledger only touches it here, paired with an event
// append in the same transaction so debit and record can never diverge.
func AdjustBalance(ctx context.Context, tx pgx.Tx, userID, delta int64) (int64, error) {
	var newBalance int64
	err := tx.QueryRow(ctx,
		`UPDATE users SET currency = currency + $2 WHERE id = $1 RETURNING currency`,
		userID, delta,
	).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: user %d", ErrAccountNotFound, userID)
		}
		return 0, fmt.Errorf("storage: adjust balance: %w", err)
	}
	return newBalance, nil
}

// GetAccount reads a user's balance and starting balance.
func (db *DB) GetAccount(ctx context.Context, userID int64) (model.Account, error) {
	var a model.Account
	err := db.pool.QueryRow(ctx,
		`SELECT id, currency, starting_balance, prestige FROM users WHERE id = $1`, userID,
	).Scan(&a.UserID, &a.Currency, &a.StartingBalance, &a.Prestige)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Account{}, fmt.Errorf("%w: user %d", ErrAccountNotFound, userID)
		}
		return model.Account{}, fmt.Errorf("storage: get account: %w", err)
	}
	return a, nil
}

// GetAccounts reads every user's balance, ordered by user id.
// Reconciliation walks this to verify the ledger invariant.
func (db *DB) GetAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, currency, starting_balance, prestige FROM users ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.UserID, &a.Currency, &a.StartingBalance, &a.Prestige); err != nil {
			return nil, fmt.Errorf("storage: scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
