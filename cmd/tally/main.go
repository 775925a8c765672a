package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/voltarena/tally/internal/backfill"
	"github.com/voltarena/tally/internal/config"
	"github.com/voltarena/tally/internal/ledger"
	"github.com/voltarena/tally/internal/snapshot"
	"github.com/voltarena/tally/internal/storage"
	"github.com/voltarena/tally/internal/telemetry"
	"github.com/voltarena/tally/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	level := slog.LevelInfo
	if cfg.LogLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		logger.Error("telemetry init failed", "error", err)
		return 1
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	root := &cobra.Command{
		Use:          "tally",
		Short:        "Economy event ledger and cycle snapshot tooling",
		Version:      version,
		SilenceUsage: true,
	}
	root.AddCommand(
		newMigrateCmd(cfg, logger),
		newBackfillCmd(cfg, logger),
		newRebuildSnapshotsCmd(cfg, logger),
		newVerifyBalancesCmd(cfg, logger),
		newVerifySnapshotCmd(cfg, logger),
		newCycleCmd(cfg, logger),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		logger.Error("command failed", "error", err)
		return 1
	}
	return 0
}

// openDB connects and pings; every subcommand goes through here.
func openDB(ctx context.Context, cfg config.Config, logger *slog.Logger) (*storage.DB, error) {
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newMigrateCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.RunMigrations(cmd.Context(), migrations.FS)
		},
	}
}

func newBackfillCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Record historical facts that predate the event log",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "robots",
		Short: "Record robot creation debits for pre-ledger robots",
		RunE: func(c *cobra.Command, args []string) error {
			db, err := openDB(c.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			lg := ledger.New(db, logger, ledger.WithRetry(cfg.MaxTxRetries, cfg.RetryBase))
			bf := backfill.New(db, lg, logger, cfg.RobotCreationCost, cfg.BackfillWindow)
			report, err := bf.RobotCreations(c.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "job %s: created %d, skipped %d (%s)\n",
				report.JobID, report.Created, report.Skipped, report.Elapsed)
			return nil
		},
	})
	return cmd
}

func newRebuildSnapshotsCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	var from, to int
	cmd := &cobra.Command{
		Use:   "rebuild-snapshots",
		Short: "Rebuild cycle snapshots from the event log",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			builder := snapshot.NewBuilder(db, logger)
			report, err := builder.Regenerate(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "job %s: rebuilt %d, failed %d (%s)\n",
				report.JobID, len(report.Rebuilt), len(report.Failures), report.Elapsed)
			return report.Err()
		},
	}
	cmd.Flags().IntVar(&from, "from", 0, "first cycle to rebuild")
	cmd.Flags().IntVar(&to, "to", 0, "last cycle to rebuild")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newVerifyBalancesCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-balances",
		Short: "Replay every account's events and compare against live balances",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			rec := snapshot.NewReconciler(db, logger)
			if err := rec.VerifyBalances(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "all balances reconcile")
			return nil
		},
	}
}

func newVerifySnapshotCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "verify-snapshot <cycle>",
		Short: "Check a stored snapshot against a fresh rebuild",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cycle, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid cycle %q: %w", args[0], err)
			}

			db, err := openDB(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			builder := snapshot.NewBuilder(db, logger)
			rec := snapshot.NewReconciler(db, logger)
			if err := rec.VerifySnapshot(cmd.Context(), builder, cycle); err != nil {
				return err
			}
			digest, err := rec.EventLogDigest(cmd.Context(), cycle)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cycle %d snapshot matches the event log (digest %s)\n", cycle, digest)
			return nil
		},
	}
}

func newCycleCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Cycle progression tooling",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the cycle counter and latest snapshot",
		RunE: func(c *cobra.Command, args []string) error {
			db, err := openDB(c.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			meta, err := db.GetCycleMetadata(c.Context())
			if err != nil {
				return err
			}
			out := map[string]any{
				"current_cycle": meta.CurrentCycleNumber,
				"total_cycles":  meta.TotalCycles,
				"updated_at":    meta.UpdatedAt,
			}
			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "charge-upkeep <cycle>",
		Short: "Charge every user their facility upkeep for a cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cycle, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid cycle %q: %w", args[0], err)
			}

			db, err := openDB(c.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			lg := ledger.New(db, logger, ledger.WithRetry(cfg.MaxTxRetries, cfg.RetryBase))
			report, err := lg.ChargeCycleUpkeep(c.Context(), cycle)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "charged %d user(s) %d credits, skipped %d\n",
				report.UsersCharged, report.TotalCharged, report.UsersSkipped)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "pay-income <cycle>",
		Short: "Pay every user their passive income for a cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cycle, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid cycle %q: %w", args[0], err)
			}

			db, err := openDB(c.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			lg := ledger.New(db, logger, ledger.WithRetry(cfg.MaxTxRetries, cfg.RetryBase))
			report, err := lg.PayCyclePassiveIncome(c.Context(), cycle)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.OutOrStdout(), "paid %d user(s) %d credits, skipped %d\n",
				report.UsersPaid, report.TotalPaid, report.UsersSkipped)
			return nil
		},
	})
	return cmd
}
