package db

import (
	"context"
	"log/slog"
	"time"

	"crixen/internal/types"
)

// UsageRepo provides the read-side counts backing the usage endpoint.
type UsageRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewUsageRepo creates a UsageRepo backed by the given connection.
func NewUsageRepo(db DBTX, logger *slog.Logger) *UsageRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageRepo{db: db, logger: logger}
}

// CountGenerationsSince counts a user's generations created at or after the
// given instant (start of the current UTC day for daily quota checks).
func (r *UsageRepo) CountGenerationsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM generations WHERE user_id = $1 AND created_at >= $2`,
		userID, since,
	).Scan(&count)
	if err != nil {
		return 0, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to count generations", err)
	}
	return count, nil
}

// CountProjects counts a user's projects.
func (r *UsageRepo) CountProjects(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM projects WHERE user_id = $1`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, types.WrapAppError(types.ErrCodeInternalDatabase, "failed to count projects", err)
	}
	return count, nil
}
