// Package main is the entry point for the Crixen email worker.
//
// The worker long-polls the notification queue for EmailJob messages, renders
// them through the email channel, and delivers via Resend. A message is
// deleted from the queue only after successful delivery; delivery failures
// leave the message to reappear after the visibility timeout. Unparseable
// messages are deleted immediately, since redelivery cannot fix them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"crixen/internal/config"
	"crixen/internal/external"
	"crixen/internal/notifications/email"
	"crixen/internal/types"
)

const (
	maxMessagesPerPoll = 10
	pollWaitSeconds    = 20
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

	if !cfg.Email.Enabled {
		logger.Warn("email delivery is disabled (FEATURE_ENABLE_EMAIL=false), exiting")
		return nil
	}

	logger.Info("crixen email worker starting",
		"environment", cfg.Environment,
		"queue_url", cfg.AWS.NotificationQueue,
		"from_address", cfg.Email.FromAddress,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("loading AWS configuration: %w", err)
	}
	if cfg.AWS.EndpointURL != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.EndpointURL)
	}

	w := &worker{
		sqs:      sqs.NewFromConfig(awsCfg),
		queueURL: cfg.AWS.NotificationQueue,
		channel:  email.NewChannel(external.NewResendClient(cfg.Email, logger), cfg.Server.FrontendURL, logger),
		logger:   logger,
	}

	return w.poll(ctx)
}

type worker struct {
	sqs      *sqs.Client
	queueURL string
	channel  *email.Channel
	logger   *slog.Logger
}

// poll long-polls the queue until the context is canceled.
func (w *worker) poll(ctx context.Context) error {
	for {
		out, err := w.sqs.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(w.queueURL),
			MaxNumberOfMessages: maxMessagesPerPoll,
			WaitTimeSeconds:     pollWaitSeconds,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				w.logger.Info("email worker stopping")
				return nil
			}
			w.logger.Error("receive failed, retrying", slog.Any("error", err))
			continue
		}

		for _, msg := range out.Messages {
			w.handleMessage(ctx, msg.Body, msg.ReceiptHandle)
		}
	}
}

// handleMessage delivers one queued job. Delete-after-deliver gives
// at-least-once semantics; the templates are idempotent to re-send.
func (w *worker) handleMessage(ctx context.Context, body, receiptHandle *string) {
	if body == nil || receiptHandle == nil {
		return
	}

	var job types.EmailJob
	if err := json.Unmarshal([]byte(*body), &job); err != nil {
		w.logger.Error("dropping unparseable message", slog.Any("error", err))
		w.deleteMessage(ctx, receiptHandle)
		return
	}

	log := w.logger.With(
		slog.String("message_id", job.MessageID),
		slog.String("kind", string(job.Kind)),
	)

	if err := w.channel.Deliver(ctx, job); err != nil {
		if errors.Is(err, email.ErrPermanent) {
			log.ErrorContext(ctx, "dropping undeliverable job", slog.Any("error", err))
			w.deleteMessage(ctx, receiptHandle)
			return
		}
		// Leave the message; it reappears after the visibility timeout.
		log.ErrorContext(ctx, "delivery failed", slog.Any("error", err))
		return
	}

	log.InfoContext(ctx, "email delivered")
	w.deleteMessage(ctx, receiptHandle)
}

func (w *worker) deleteMessage(ctx context.Context, receiptHandle *string) {
	_, err := w.sqs.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(w.queueURL),
		ReceiptHandle: receiptHandle,
	})
	if err != nil {
		w.logger.Warn("failed to delete message", slog.Any("error", err))
	}
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
