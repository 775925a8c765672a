package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/voltarena/tally/internal/model"
	"github.com/voltarena/tally/internal/storage"
	"github.com/voltarena/tally/internal/telemetry"
)

// Builder materializes cycle snapshots from the event log.
type Builder struct {
	db     *storage.DB
	logger *slog.Logger

	buildDuration metric.Float64Histogram
}

func NewBuilder(db *storage.DB, logger *slog.Logger) *Builder {
	meter := telemetry.Meter("tally/snapshot")
	buildDuration, _ := meter.Float64Histogram("tally.snapshot.build.duration",
		metric.WithDescription("Time to aggregate and store a cycle snapshot"),
		metric.WithUnit("s"))
	return &Builder{
		db:            db,
		logger:        logger,
		buildDuration: buildDuration,
	}
}

// Build aggregates cycle into a new snapshot. It refuses to overwrite an
// existing snapshot (storage.ErrSnapshotExists) and refuses to snapshot the
// cycle still in progress, since its event stream is not final.
func (b *Builder) Build(ctx context.Context, cycle int) (model.CycleSnapshot, error) {
	return b.build(ctx, cycle, false)
}

// Replace rebuilds the snapshot for cycle, atomically swapping out any
// existing row. Used by regeneration after aggregation logic changes.
func (b *Builder) Replace(ctx context.Context, cycle int) (model.CycleSnapshot, error) {
	return b.build(ctx, cycle, true)
}

func (b *Builder) build(ctx context.Context, cycle int, replace bool) (model.CycleSnapshot, error) {
	start := time.Now()

	if err := b.ensureClosed(ctx, cycle); err != nil {
		return model.CycleSnapshot{}, err
	}

	in, err := b.fetch(ctx, cycle)
	if err != nil {
		return model.CycleSnapshot{}, err
	}

	snap, err := Aggregate(in)
	if err != nil {
		return model.CycleSnapshot{}, err
	}

	if replace {
		err = b.db.ReplaceSnapshot(ctx, snap)
	} else {
		err = b.db.InsertSnapshot(ctx, snap)
	}
	if err != nil {
		return model.CycleSnapshot{}, err
	}

	b.buildDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.Int("cycle", cycle), attribute.Bool("replace", replace)))
	b.logger.Info("snapshot built",
		"cycle", cycle,
		"events", len(in.Events),
		"battles", len(in.Battles),
		"users", len(snap.UserMetrics),
		"robots", len(snap.RobotMetrics),
		"replace", replace,
		"duration", time.Since(start))
	return snap, nil
}

// ensureClosed rejects snapshotting the cycle currently open. Cycle 0 is
// exempt: it predates the first cycle_start and is always closed.
func (b *Builder) ensureClosed(ctx context.Context, cycle int) error {
	if cycle == 0 {
		return nil
	}
	meta, err := b.db.GetCycleMetadata(ctx)
	if err != nil {
		return err
	}
	if cycle == meta.CurrentCycleNumber && meta.CurrentCycleNumber > meta.TotalCycles {
		return fmt.Errorf("snapshot: cycle %d is still in progress", cycle)
	}
	if cycle > meta.CurrentCycleNumber {
		return fmt.Errorf("snapshot: cycle %d has not started (current is %d)", cycle, meta.CurrentCycleNumber)
	}
	return nil
}

func (b *Builder) fetch(ctx context.Context, cycle int) (Input, error) {
	var (
		events  []model.Event
		battles []model.BattleRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = b.db.GetEventsByCycle(gctx, cycle)
		return err
	})
	g.Go(func() error {
		var err error
		battles, err = b.db.GetBattlesByCycle(gctx, cycle)
		return err
	})
	if err := g.Wait(); err != nil {
		return Input{}, err
	}

	robotIDs := make([]int64, 0, len(battles)*2)
	seen := make(map[int64]struct{})
	for _, bt := range battles {
		for _, id := range []int64{bt.Robot1ID, bt.Robot2ID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				robotIDs = append(robotIDs, id)
			}
		}
	}
	owners, err := b.db.GetRobotOwners(ctx, robotIDs)
	if err != nil {
		return Input{}, err
	}

	return Input{
		CycleNumber: cycle,
		Events:      events,
		Battles:     battles,
		RobotOwners: owners,
	}, nil
}
