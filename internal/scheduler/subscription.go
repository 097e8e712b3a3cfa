// Package scheduler contains the daily subscription sweeps and ledger
// maintenance jobs. All sweeps take an explicit `now` so runs are
// deterministic and testable, and every pass isolates per-row failures: one
// bad user never blocks the rest of the batch.
package scheduler

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"crixen/internal/types"
)

// ExpiringUserStore is the user repository surface the sweeper needs.
type ExpiringUserStore interface {
	ListExpiring(ctx context.Context, now time.Time, window time.Duration) ([]types.User, error)
	MarkReminderSent(ctx context.Context, userID string) (bool, error)
	ListExpired(ctx context.Context, now time.Time) ([]types.User, error)
	Downgrade(ctx context.Context, userID string, now time.Time) (bool, error)
}

// Notifier enqueues outbound email jobs.
type Notifier interface {
	Enqueue(ctx context.Context, job types.EmailJob) error
}

// SweepMetrics records sweep outcomes.
type SweepMetrics interface {
	RecordSweep(action string, count int)
}

// SweepResult summarizes one daily run.
type SweepResult struct {
	WarningsSent int
	Downgraded   int
	Errors       int
}

// SubscriptionSweeper runs the two daily passes over the user table:
//
//  1. Warning pass: users expiring within the warning window who have not
//     been reminded get an expiry warning. The reminder flag is only set
//     after the enqueue succeeds, so a failed send is retried tomorrow.
//  2. Downgrade pass: users whose subscription has lapsed are returned to
//     starter. The downgrade is the authoritative write; the expiry notice
//     afterwards is best-effort.
type SubscriptionSweeper struct {
	users   ExpiringUserStore
	mailer  Notifier
	metrics SweepMetrics
	logger  *slog.Logger

	warningWindow time.Duration
}

// NewSubscriptionSweeper wires the sweeper. mailer and metrics may be nil.
func NewSubscriptionSweeper(
	users ExpiringUserStore,
	mailer Notifier,
	metrics SweepMetrics,
	warningWindow time.Duration,
	logger *slog.Logger,
) *SubscriptionSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if warningWindow <= 0 {
		warningWindow = 72 * time.Hour
	}
	return &SubscriptionSweeper{
		users:         users,
		mailer:        mailer,
		metrics:       metrics,
		logger:        logger,
		warningWindow: warningWindow,
	}
}

// Run executes both passes for the given instant.
func (s *SubscriptionSweeper) Run(ctx context.Context, now time.Time) SweepResult {
	now = now.UTC()
	result := SweepResult{}

	s.warningPass(ctx, now, &result)
	s.downgradePass(ctx, now, &result)

	s.logger.InfoContext(ctx, "subscription sweep complete",
		slog.Time("now", now),
		slog.Int("warnings_sent", result.WarningsSent),
		slog.Int("downgraded", result.Downgraded),
		slog.Int("errors", result.Errors),
	)
	if s.metrics != nil {
		s.metrics.RecordSweep("warning_sent", result.WarningsSent)
		s.metrics.RecordSweep("downgraded", result.Downgraded)
		s.metrics.RecordSweep("sweep_errors", result.Errors)
	}
	return result
}

// warningPass reminds users expiring in (now, now+window]. The flag write
// comes after the enqueue on purpose: losing the race to a concurrent sweep
// means at most one duplicate email, while flagging first could lose the
// reminder entirely.
func (s *SubscriptionSweeper) warningPass(ctx context.Context, now time.Time, result *SweepResult) {
	expiring, err := s.users.ListExpiring(ctx, now, s.warningWindow)
	if err != nil {
		s.logger.ErrorContext(ctx, "warning pass: listing expiring users failed", slog.Any("error", err))
		result.Errors++
		return
	}

	for _, user := range expiring {
		if user.SubscriptionExpiresAt == nil {
			continue
		}

		daysLeft := int(user.SubscriptionExpiresAt.Sub(now).Hours() / 24)
		if daysLeft < 1 {
			daysLeft = 1
		}

		if err := s.enqueue(ctx, types.EmailJob{
			Recipient: user.Email,
			Kind:      types.EmailExpiryWarning,
			Params: map[string]string{
				"tier":      string(user.Tier.Normalize()),
				"days_left": strconv.Itoa(daysLeft),
			},
		}); err != nil {
			s.logger.ErrorContext(ctx, "warning pass: enqueue failed",
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
			result.Errors++
			continue
		}

		claimed, err := s.users.MarkReminderSent(ctx, user.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "warning pass: flag update failed",
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
			result.Errors++
			continue
		}
		if claimed {
			result.WarningsSent++
		}
	}
}

// downgradePass returns lapsed users to starter and sends the expiry notice.
func (s *SubscriptionSweeper) downgradePass(ctx context.Context, now time.Time, result *SweepResult) {
	expired, err := s.users.ListExpired(ctx, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "downgrade pass: listing expired users failed", slog.Any("error", err))
		result.Errors++
		return
	}

	for _, user := range expired {
		downgraded, err := s.users.Downgrade(ctx, user.ID, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "downgrade pass: downgrade failed",
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
			result.Errors++
			continue
		}
		if !downgraded {
			// Renewed between listing and updating; nothing to do.
			continue
		}
		result.Downgraded++

		if err := s.enqueue(ctx, types.EmailJob{
			Recipient: user.Email,
			Kind:      types.EmailExpiryNotice,
			Params: map[string]string{
				"tier": string(user.Tier.Normalize()),
			},
		}); err != nil {
			// Best-effort: the downgrade already committed.
			s.logger.WarnContext(ctx, "downgrade pass: notice enqueue failed",
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
		}
	}
}

func (s *SubscriptionSweeper) enqueue(ctx context.Context, job types.EmailJob) error {
	if s.mailer == nil {
		return nil
	}
	return s.mailer.Enqueue(ctx, job)
}
