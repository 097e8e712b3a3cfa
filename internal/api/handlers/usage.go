package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"crixen/internal/billing"
	"crixen/internal/core"
	"crixen/internal/types"
)

// UsageCounter aggregates a user's consumption counts.
type UsageCounter interface {
	CountGenerationsSince(ctx context.Context, userID string, since time.Time) (int, error)
	CountProjects(ctx context.Context, userID string) (int, error)
}

// UserReader provides the fresh user row for tier resolution. The actor's
// tier claim may be stale (granted or downgraded since the token was issued),
// so the usage snapshot always reads the database.
type UserReader interface {
	GetByID(ctx context.Context, userID string) (*types.User, error)
}

// UsageHandler serves the entitlement snapshot endpoint.
type UsageHandler struct {
	usage  UsageCounter
	users  UserReader
	auth   func(http.Handler) http.Handler
	logger *slog.Logger

	// now is injected for deterministic daily-window tests.
	now func() time.Time
}

// NewUsageHandler creates a UsageHandler.
func NewUsageHandler(
	usage UsageCounter,
	users UserReader,
	auth func(http.Handler) http.Handler,
	logger *slog.Logger,
) *UsageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageHandler{
		usage:  usage,
		users:  users,
		auth:   auth,
		logger: logger,
		now:    time.Now,
	}
}

// WithNow overrides the handler clock for tests.
func (h *UsageHandler) WithNow(now func() time.Time) *UsageHandler {
	h.now = now
	return h
}

// RegisterRoutes mounts the usage endpoint behind auth.
func (h *UsageHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.auth != nil {
			r.Use(h.auth)
		}
		r.Get("/usage", h.GetUsage)
	})
}

// GetUsage handles GET /v1/usage. It returns today's generation count against
// the tier's daily limit plus the project count and cap. The daily window
// starts at midnight UTC; limit fields of 0 mean unbounded.
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.ActorFromContext(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "authentication required"))
		return
	}

	user, err := h.users.GetByID(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	tier := user.Tier.Normalize()
	limits := billing.LimitsFor(tier)

	now := h.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	generated, err := h.usage.CountGenerationsSince(r.Context(), actor.ID, dayStart)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	projects, err := h.usage.CountProjects(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: types.UsageStats{
		GeneratedCount: generated,
		Limit:          limits.DailyGenerations,
		Projects:       projects,
		ProjectLimit:   limits.MaxProjects,
		Tier:           tier,
	}})
}
