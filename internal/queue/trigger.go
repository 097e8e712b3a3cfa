// Package queue provides the SQS-based producer for dispatching email jobs to
// the notification worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"crixen/internal/config"
	"crixen/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code passes the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// EmailTrigger serializes EmailJobs and sends them to the notification queue.
// It implements the Notifier interface used by the reconciler and scheduler.
type EmailTrigger struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewEmailTrigger creates an EmailTrigger reading the queue URL from config.
func NewEmailTrigger(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *EmailTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailTrigger{
		client:   client,
		queueURL: awsCfg.NotificationQueue,
		logger:   logger,
	}
}

// Enqueue sends one email job to the notification queue. A message ID and
// enqueue timestamp are filled in when the caller left them empty.
func (t *EmailTrigger) Enqueue(ctx context.Context, job types.EmailJob) error {
	if job.MessageID == "" {
		job.MessageID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal EmailJob: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(t.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(job.Kind)),
			},
		},
	}

	if _, err := t.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send EmailJob to %s: %w", t.queueURL, err)
	}

	t.logger.InfoContext(ctx, "email job enqueued",
		"queue_url", t.queueURL,
		"message_id", job.MessageID,
		"kind", string(job.Kind),
	)

	return nil
}
