package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqConflictErr() error {
	return &pgconn.PgError{Code: "23505", ConstraintName: auditEventsCycleSeqConstraint}
}

func TestIsSequenceConflict(t *testing.T) {
	assert.True(t, IsSequenceConflict(seqConflictErr()))
	assert.True(t, IsSequenceConflict(errors.Join(errors.New("wrapped"), seqConflictErr())))

	// Same code but a different constraint is not a sequence race.
	assert.False(t, IsSequenceConflict(&pgconn.PgError{Code: "23505", ConstraintName: "cycle_snapshots_pkey"}))
	assert.False(t, IsSequenceConflict(&pgconn.PgError{Code: "40001"}))
	assert.False(t, IsSequenceConflict(errors.New("plain error")))
	assert.False(t, IsSequenceConflict(nil))
}

func TestWithRetry_SucceedsAfterConflicts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return seqConflictErr()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return seqConflictErr()
	})
	require.Error(t, err)
	assert.True(t, IsSequenceConflict(err))
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
}

func TestWithRetry_NonRetriableFailsImmediately(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := WithRetry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_RetriesSerializationFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls == 1 {
			return &pgconn.PgError{Code: "40001"}
		}
		if calls == 2 {
			return &pgconn.PgError{Code: "40P01"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_HonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, 5, 50*time.Millisecond, func() error {
		return seqConflictErr()
	})
	require.ErrorIs(t, err, context.Canceled)
}
