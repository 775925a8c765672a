package storage

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrSnapshotExists is returned when building a snapshot for a cycle that
// already has one and replacement was not requested.
var ErrSnapshotExists = errors.New("storage: snapshot already exists")

// auditEventsCycleSeqConstraint is the unique constraint that arbitrates
// per-cycle sequence allocation.
const auditEventsCycleSeqConstraint = "audit_events_cycle_seq_key"

// IsSequenceConflict reports whether err is a unique violation on the
// (cycle_number, sequence_number) constraint, i.e. two appenders raced on
// the same sequence slot. Callers retry the whole transaction.
func IsSequenceConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && pgErr.ConstraintName == auditEventsCycleSeqConstraint
}
