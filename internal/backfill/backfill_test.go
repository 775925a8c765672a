package backfill_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voltarena/tally/internal/backfill"
	"github.com/voltarena/tally/internal/ledger"
	"github.com/voltarena/tally/internal/model"
	"github.com/voltarena/tally/internal/storage"
	"github.com/voltarena/tally/internal/testutil"
)

const robotCost = 500_000

var (
	testDB *storage.DB
	bf     *backfill.Backfiller
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	tc := testutil.MustStartPostgres()

	var err error
	testDB, err = tc.NewTestDB(ctx, testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create test DB: %v\n", err)
		tc.Terminate()
		os.Exit(1)
	}
	lg := ledger.New(testDB, testutil.TestLogger())
	bf = backfill.New(testDB, lg, testutil.TestLogger(), robotCost, time.Second)

	code := m.Run()

	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

func seedUser(t *testing.T, currency int64) int64 {
	t.Helper()
	var id int64
	err := testDB.Pool().QueryRow(context.Background(),
		`INSERT INTO users (username, currency, starting_balance, prestige)
		 VALUES ($1, $2, $2 + $3, 0) RETURNING id`,
		fmt.Sprintf("user-%d", time.Now().UnixNano()), currency, int64(robotCost),
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedRobot(t *testing.T, userID int64, createdAt time.Time) int64 {
	t.Helper()
	var id int64
	err := testDB.Pool().QueryRow(context.Background(),
		`INSERT INTO robots (user_id, name, attribute_sum, max_hp, current_hp, total_battles, fame, created_at)
		 VALUES ($1, $2, 180, 100, 100, 0, 0, $3) RETURNING id`,
		userID, fmt.Sprintf("robot-%d", time.Now().UnixNano()), createdAt,
	).Scan(&id)
	require.NoError(t, err)
	return id
}

func TestRobotCreations_IsIdempotent(t *testing.T) {
	ctx := context.Background()

	created := time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Microsecond)
	userID := seedUser(t, 2_500_000)
	robotID := seedRobot(t, userID, created)

	report, err := bf.RobotCreations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.Skipped)

	// A second run finds the debit already recorded and creates nothing.
	report, err = bf.RobotCreations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 1, report.Skipped)

	events, err := testDB.GetEventsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.Equal(t, 0, e.CycleNumber)
	assert.Equal(t, model.EventCreditChange, e.EventType)
	assert.True(t, e.EventTimestamp.Equal(created), "fact timestamp must be the robot's creation time")
	require.NotNil(t, e.RobotID)
	assert.Equal(t, robotID, *e.RobotID)

	var p model.CreditChangePayload
	require.NoError(t, json.Unmarshal(e.Payload, &p))
	assert.Equal(t, int64(-robotCost), p.Amount)
	assert.Equal(t, model.SourceRobotCreation, p.Source)

	// After backfill the replay invariant holds: starting balance plus the
	// recorded debit equals the live balance.
	account, err := testDB.GetAccount(ctx, userID)
	require.NoError(t, err)
	effect, err := model.SignedEffect(e)
	require.NoError(t, err)
	assert.Equal(t, account.Currency, account.StartingBalance+effect)
}

func TestRobotCreations_HandlesMultipleRobots(t *testing.T) {
	ctx := context.Background()

	userID := seedUser(t, 1_000_000)
	older := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Microsecond)
	newer := time.Now().UTC().Add(-12 * time.Hour).Truncate(time.Microsecond)
	seedRobot(t, userID, older)
	seedRobot(t, userID, newer)

	report, err := bf.RobotCreations(ctx)
	require.NoError(t, err)
	// The robot from the previous test is skipped; both new ones are
	// recorded even though they share user, amount and source, because
	// their creation times are outside each other's window.
	assert.Equal(t, 2, report.Created)
	assert.GreaterOrEqual(t, report.Skipped, 1)

	events, err := testDB.GetEventsByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, events, 2)
}
