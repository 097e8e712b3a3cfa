// Package main is the entry point for the Crixen subscription scheduler.
//
// It runs the daily subscription sweep (expiry warnings and downgrades) and
// the ledger maintenance job (grant replay, stale-order reporting, ticket
// archival) at a fixed UTC wall-clock time, once per day.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"crixen/internal/billing"
	"crixen/internal/config"
	"crixen/internal/db"
	"crixen/internal/external"
	"crixen/internal/queue"
	"crixen/internal/scheduler"
	"crixen/internal/telemetry"
)

// runTimeout bounds a single daily run; the sweeps are batched queries, so
// anything longer means the database is in trouble.
const runTimeout = 30 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	hour, minute, err := config.ParseDailyAt(cfg.Scheduler.DailyAt)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("crixen scheduler starting",
		"environment", cfg.Environment,
		"daily_at", cfg.Scheduler.DailyAt,
		"run_on_startup", cfg.Scheduler.RunOnStartup,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	if cfg.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}

	var metrics scheduler.SweepMetrics
	if cfg.Telemetry.EnableMetrics {
		metrics = telemetry.NewMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Telemetry.MetricNamespace, logger)
	}

	orderRepo := db.NewOrderRepo(pool, logger)
	userRepo := db.NewUserRepo(pool, logger)
	ticketRepo := db.NewTicketRepo(pool, logger)

	mailer := queue.NewEmailTrigger(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)

	reconciler := billing.NewReconciler(orderRepo, userRepo, ticketRepo, mailer, nil, logger,
		billing.WithPeriod(cfg.Billing.SubscriptionPeriod))

	var archive scheduler.ArchivePutter
	if cfg.AWS.TicketArchiveBucket != "" {
		archive = external.NewArchiveStore(s3.NewFromConfig(awsCfg), cfg.AWS.TicketArchiveBucket, logger)
	} else {
		logger.Warn("TICKET_ARCHIVE_BUCKET not set, ticket archival disabled")
	}

	sweeper := scheduler.NewSubscriptionSweeper(userRepo, mailer, metrics, cfg.Scheduler.WarningWindow, logger)
	maintenance := scheduler.NewLedgerMaintenance(orderRepo, reconciler, ticketRepo, archive, metrics,
		scheduler.MaintenanceConfig{
			StalePendingAge:  cfg.Scheduler.StalePendingAge,
			ArchiveAfter:     cfg.Scheduler.ArchiveAfter,
			ArchiveBatchSize: cfg.Scheduler.ArchiveBatchSize,
		}, logger)

	if cfg.Scheduler.RunOnStartup {
		runOnce(ctx, sweeper, maintenance, logger)
	}

	for {
		next := nextRunAt(time.Now().UTC(), hour, minute)
		logger.Info("next scheduled run", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("scheduler stopping")
			return nil
		case <-timer.C:
			runOnce(ctx, sweeper, maintenance, logger)
		}
	}
}

// runOnce executes both daily jobs with a shared deadline and a single
// consistent `now` for the whole run.
func runOnce(ctx context.Context, sweeper *scheduler.SubscriptionSweeper, maintenance *scheduler.LedgerMaintenance, logger *slog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	now := time.Now().UTC()

	sweepResult := sweeper.Run(runCtx, now)
	logger.Info("subscription sweep finished",
		"warnings_sent", sweepResult.WarningsSent,
		"downgraded", sweepResult.Downgraded,
		"errors", sweepResult.Errors,
	)

	maintResult, err := maintenance.Run(runCtx, now)
	if err != nil {
		logger.Error("ledger maintenance finished with errors", "error", err)
	}
	logger.Info("ledger maintenance finished",
		"grants_replayed", maintResult.GrantsReplayed,
		"stale_pending", maintResult.StalePending,
		"tickets_archived", maintResult.TicketsArchived,
	)
}

// nextRunAt returns the next instant at hour:minute UTC strictly after now.
func nextRunAt(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
