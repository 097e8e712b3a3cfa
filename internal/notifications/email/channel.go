package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"crixen/internal/types"
)

// ErrPermanent marks a delivery failure that redelivery cannot fix (missing
// recipient, unknown kind, template failure). Consumers drop such jobs
// instead of requeuing them.
var ErrPermanent = errors.New("permanent delivery failure")

// Sender delivers a rendered email. Satisfied by the Resend client.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// Channel renders email jobs and hands them to the delivery provider. It sits
// between the queue consumer and the Resend client.
type Channel struct {
	sender      Sender
	frontendURL string
	logger      *slog.Logger
}

// NewChannel wires a Channel.
func NewChannel(sender Sender, frontendURL string, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{sender: sender, frontendURL: frontendURL, logger: logger}
}

// Deliver renders and sends one job. Render failures are permanent (the job
// is malformed); send failures are transient and the caller decides whether
// to requeue.
func (c *Channel) Deliver(ctx context.Context, job types.EmailJob) error {
	if job.Recipient == "" {
		return fmt.Errorf("email: job %s has no recipient: %w", job.MessageID, ErrPermanent)
	}

	msg, err := Render(job, c.frontendURL)
	if err != nil {
		return fmt.Errorf("email: rendering %s: %w", job.Kind, errors.Join(err, ErrPermanent))
	}

	if err := c.sender.Send(ctx, job.Recipient, msg.Subject, msg.HTML); err != nil {
		return fmt.Errorf("email: delivering %s to %s: %w", job.Kind, job.Recipient, err)
	}

	c.logger.InfoContext(ctx, "email delivered",
		slog.String("message_id", job.MessageID),
		slog.String("kind", string(job.Kind)),
	)
	return nil
}
