// Package main is the entry point for the Crixen billing API server.
//
// It loads configuration, connects the database pool and AWS clients, wires
// the billing services into the core chassis, and serves HTTP until a
// shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"crixen/internal/api/handlers"
	"crixen/internal/billing"
	"crixen/internal/config"
	"crixen/internal/core"
	"crixen/internal/db"
	"crixen/internal/external"
	"crixen/internal/queue"
	"crixen/internal/telemetry"
	"crixen/internal/types"
)

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

	logger := newLogger(cfg.LogLevel)
	logger.Info("crixen billing API starting",
		"environment", cfg.Environment,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting database: %w", err)
	}
	defer pool.Close()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	sqsClient := sqs.NewFromConfig(awsCfg)

	var metrics *telemetry.Metrics
	if cfg.Telemetry.EnableMetrics {
		metrics = telemetry.NewMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Telemetry.MetricNamespace, logger)
	}

	orderRepo := db.NewOrderRepo(pool, logger)
	userRepo := db.NewUserRepo(pool, logger)
	ticketRepo := db.NewTicketRepo(pool, logger)
	usageRepo := db.NewUsageRepo(pool, logger)

	mailer := queue.NewEmailTrigger(sqsClient, cfg.AWS, logger)
	pingpay := external.NewPingPayClient(cfg.Billing, logger)

	intents := billing.NewIntentService(orderRepo, pingpay, cfg.Billing, cfg.Server, logger)

	reconcilerOpts := []billing.ReconcilerOption{}
	if cfg.Billing.SubscriptionPeriod > 0 {
		reconcilerOpts = append(reconcilerOpts, billing.WithPeriod(cfg.Billing.SubscriptionPeriod))
	}
	var reconcileMetrics billing.ReconcileMetrics
	if metrics != nil {
		reconcileMetrics = metrics
	}
	reconciler := billing.NewReconciler(orderRepo, userRepo, ticketRepo, mailer, reconcileMetrics, logger, reconcilerOpts...)

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	if metrics != nil {
		srv.Metrics = metrics
	}
	srv.Authenticator = handlers.NewGatewayAuthenticator(cfg.Security.APIKey)
	srv.HealthProbes = append(srv.HealthProbes, db.PoolProbe{Pool: pool})

	verifiers := map[types.PaymentProvider]external.WebhookVerifier{
		types.ProviderHotPay:  external.NewHotPayVerifier(cfg.Billing),
		types.ProviderPingPay: external.NewPingPayVerifier(cfg.Billing),
	}

	billingHandler := handlers.NewBillingHandler(intents, srv.Validator, srv.RequireAuth, logger)
	webhookHandler := handlers.NewWebhookHandler(reconciler, verifiers, logger)
	usageHandler := handlers.NewUsageHandler(usageRepo, userRepo, srv.RequireAuth, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		billingHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
		usageHandler.RegisterRoutes,
	)
	srv.MountRoutes()

	return serveHTTP(ctx, srv, cfg, logger)
}

// loadAWSConfig builds the shared AWS SDK config. AWS_ENDPOINT_URL points all
// clients at LocalStack during local development.
func loadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return aws.Config{}, err
	}
	if cfg.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}
	return awsCfg, nil
}

// serveHTTP runs the HTTP server until the context is canceled or the
// listener fails, then shuts down gracefully.
func serveHTTP(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates the structured JSON logger for the process.
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
