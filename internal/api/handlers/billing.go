// Package handlers contains the HTTP handler implementations for the Crixen
// billing API. Handlers declare the service contracts they need as local
// interfaces and receive implementations through their constructors.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crixen/internal/billing"
	"crixen/internal/core"
	"crixen/internal/types"
)

// IntentCreator creates payment intents against the order ledger.
type IntentCreator interface {
	CreateHotOrder(ctx context.Context, userID, itemID, amount string) (*billing.HotOrder, error)
	CreatePingPaySession(ctx context.Context, userID, planID, amount string) (*billing.PingPayOrder, error)
}

// CreateHotOrderRequest is the request body for POST /v1/billing/create-hot-order.
// Both fields are optional; omitted values fall back to the configured
// subscription item and price.
type CreateHotOrderRequest struct {
	ItemID string `json:"item_id" validate:"omitempty,max=64"`
	Amount string `json:"amount" validate:"omitempty,max=16"`
}

// HotOrderResponse carries the redirect URL the client sends the user to.
type HotOrderResponse struct {
	URL  string `json:"url"`
	Memo string `json:"memo"`
}

// CreatePingPaySessionRequest is the request body for
// POST /v1/billing/create-pingpay-session.
type CreatePingPaySessionRequest struct {
	PlanID string `json:"plan_id" validate:"required,max=64"`
	Amount string `json:"amount" validate:"required,max=16"`
}

// PingPaySessionResponse carries the hosted checkout URL and the
// provider-assigned session ID.
type PingPaySessionResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

// BillingHandler handles the authenticated payment-intent endpoints.
type BillingHandler struct {
	intents   IntentCreator
	validator *core.Validator
	auth      func(http.Handler) http.Handler
	logger    *slog.Logger
}

// NewBillingHandler creates a BillingHandler. auth is the middleware guarding
// the intent routes, normally core.Server.RequireAuth.
func NewBillingHandler(
	intents IntentCreator,
	v *core.Validator,
	auth func(http.Handler) http.Handler,
	logger *slog.Logger,
) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{
		intents:   intents,
		validator: v,
		auth:      auth,
		logger:    logger,
	}
}

// RegisterRoutes mounts the payment-intent endpoints behind auth.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.auth != nil {
			r.Use(h.auth)
		}
		r.Post("/billing/create-hot-order", h.CreateHotOrder)
		r.Post("/billing/create-pingpay-session", h.CreatePingPaySession)
	})
}

// CreateHotOrder handles POST /v1/billing/create-hot-order.
//
// The order is persisted before the redirect URL is returned, so the webhook
// referencing the memo can never observe a missing order. An empty body is
// allowed and means "use the configured defaults".
func (h *BillingHandler) CreateHotOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateHotOrderRequest
	if r.ContentLength != 0 {
		if err := core.DecodeJSON(w, r, &req); err != nil {
			core.Error(w, r, err)
			return
		}
		if err := h.validator.ValidateStruct(req); err != nil {
			core.Error(w, r, err)
			return
		}
	}

	actor, ok := types.ActorFromContext(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "authentication required"))
		return
	}

	order, err := h.intents.CreateHotOrder(r.Context(), actor.ID, req.ItemID, req.Amount)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create hotpay order",
			slog.String("user_id", actor.ID),
			slog.Any("error", err),
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: HotOrderResponse{
		URL:  order.URL,
		Memo: order.Memo,
	}})
}

// CreatePingPaySession handles POST /v1/billing/create-pingpay-session.
func (h *BillingHandler) CreatePingPaySession(w http.ResponseWriter, r *http.Request) {
	var req CreatePingPaySessionRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	actor, ok := types.ActorFromContext(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthRequired, "authentication required"))
		return
	}

	session, err := h.intents.CreatePingPaySession(r.Context(), actor.ID, req.PlanID, req.Amount)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create pingpay session",
			slog.String("user_id", actor.ID),
			slog.String("plan_id", req.PlanID),
			slog.Any("error", err),
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: PingPaySessionResponse{
		URL:       session.URL,
		SessionID: session.SessionID,
	}})
}
