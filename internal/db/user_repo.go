package db

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"crixen/internal/types"
)

// UserRepo manages the subscription projection on user rows.
//
// Key invariants:
//   - GrantTier writes tier, expiry, and the reminder flag in one UPDATE so a
//     grant can never leave the reminder flag stale.
//   - MarkReminderSent and DowngradeExpired are conditional, making both sweep
//     passes safe to re-run.
type UserRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewUserRepo creates a UserRepo backed by the given connection.
func NewUserRepo(db DBTX, logger *slog.Logger) *UserRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserRepo{db: db, logger: logger}
}

// GetByID fetches a user's subscription projection.
func (r *UserRepo) GetByID(ctx context.Context, userID string) (*types.User, error) {
	var u types.User
	err := r.db.QueryRow(ctx,
		`SELECT id, email, tier, subscription_expires_at, expiry_reminder_sent, created_at
		 FROM users
		 WHERE id = $1`,
		userID,
	).Scan(&u.ID, &u.Email, &u.Tier, &u.SubscriptionExpiresAt, &u.ExpiryReminderSent, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found")
		}
		return nil, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to fetch user", err)
	}
	return &u, nil
}

// GrantTier applies a paid entitlement: tier, fresh expiry, reminder flag
// cleared, all in one statement. Re-applying the same grant is harmless.
func (r *UserRepo) GrantTier(ctx context.Context, userID string, tier types.Tier, expiresAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET tier = $1,
		     subscription_expires_at = $2,
		     expiry_reminder_sent = FALSE,
		     updated_at = NOW()
		 WHERE id = $3`,
		tier, expiresAt, userID,
	)
	if err != nil {
		return types.WrapAppError(types.ErrCodeInternalDatabase, "failed to grant tier", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found for tier grant")
	}
	return nil
}

// GrantTierIfLater applies a grant only when it extends the user's
// entitlement: the UPDATE is conditional on the stored expiry being absent or
// older than the one offered. A replay of an old payment therefore can never
// clobber the fresher expiry written by a later renewal. Returns whether the
// row was updated.
func (r *UserRepo) GrantTierIfLater(ctx context.Context, userID string, tier types.Tier, expiresAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET tier = $1,
		     subscription_expires_at = $2,
		     expiry_reminder_sent = FALSE,
		     updated_at = NOW()
		 WHERE id = $3
		   AND (subscription_expires_at IS NULL OR subscription_expires_at < $2)`,
		tier, expiresAt, userID,
	)
	if err != nil {
		return false, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to grant tier", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListExpiring returns paid users whose subscription expires within
// (now, now+window] and who have not yet received a reminder.
func (r *UserRepo) ListExpiring(ctx context.Context, now time.Time, window time.Duration) ([]types.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, email, tier, subscription_expires_at, expiry_reminder_sent, created_at
		 FROM users
		 WHERE tier != $1
		   AND expiry_reminder_sent = FALSE
		   AND subscription_expires_at > $2
		   AND subscription_expires_at <= $3
		 ORDER BY subscription_expires_at`,
		types.TierStarter, now, now.Add(window),
	)
	if err != nil {
		return nil, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to list expiring users", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// MarkReminderSent records that the expiry warning went out. Conditional on
// the flag still being unset so concurrent sweeps cannot double-claim a user.
func (r *UserRepo) MarkReminderSent(ctx context.Context, userID string) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET expiry_reminder_sent = TRUE,
		     updated_at = NOW()
		 WHERE id = $1
		   AND expiry_reminder_sent = FALSE`,
		userID,
	)
	if err != nil {
		return false, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to mark reminder sent", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListExpired returns paid users whose subscription has lapsed as of now.
func (r *UserRepo) ListExpired(ctx context.Context, now time.Time) ([]types.User, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, email, tier, subscription_expires_at, expiry_reminder_sent, created_at
		 FROM users
		 WHERE tier != $1
		   AND subscription_expires_at IS NOT NULL
		   AND subscription_expires_at < $2
		 ORDER BY subscription_expires_at`,
		types.TierStarter, now,
	)
	if err != nil {
		return nil, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to list expired users", err)
	}
	defer rows.Close()

	return scanUsers(rows)
}

// Downgrade returns a lapsed user to the starter tier, clearing the expiry
// timestamp and reminder flag. Conditional on the subscription actually being
// expired so a payment that lands mid-sweep is never clobbered.
func (r *UserRepo) Downgrade(ctx context.Context, userID string, now time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE users
		 SET tier = $1,
		     subscription_expires_at = NULL,
		     expiry_reminder_sent = FALSE,
		     updated_at = NOW()
		 WHERE id = $2
		   AND tier != $1
		   AND subscription_expires_at IS NOT NULL
		   AND subscription_expires_at < $3`,
		types.TierStarter, userID, now,
	)
	if err != nil {
		return false, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to downgrade user", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanUsers(rows pgx.Rows) ([]types.User, error) {
	var users []types.User
	for rows.Next() {
		var u types.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Tier, &u.SubscriptionExpiresAt, &u.ExpiryReminderSent, &u.CreatedAt); err != nil {
			return nil, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to scan user row", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to iterate user rows", err)
	}
	return users, nil
}
