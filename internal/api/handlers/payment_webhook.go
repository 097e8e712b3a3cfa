// This file implements the payment webhook endpoint. The route is NOT behind
// auth middleware; it is called directly by the payment providers. Security
// comes from per-provider HMAC signature verification.
package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"crixen/internal/billing"
	"crixen/internal/core"
	"crixen/internal/external"
	"crixen/internal/types"
)

// maxWebhookBodySize caps provider webhook payloads at 64 KB. Both providers
// send small JSON bodies; anything larger is abuse.
const maxWebhookBodySize = 64 * 1024

// PaymentReconciler settles a classified webhook against the order ledger.
type PaymentReconciler interface {
	Reconcile(ctx context.Context, pw *billing.ParsedWebhook) (*billing.Outcome, error)
}

// WebhookHandler receives payment notifications from both providers on a
// single shared endpoint and dispatches by payload shape.
type WebhookHandler struct {
	reconciler PaymentReconciler
	verifiers  map[types.PaymentProvider]external.WebhookVerifier
	logger     *slog.Logger
}

// NewWebhookHandler creates the webhook handler. A missing verifier for a
// provider rejects that provider's deliveries.
func NewWebhookHandler(
	reconciler PaymentReconciler,
	verifiers map[types.PaymentProvider]external.WebhookVerifier,
	logger *slog.Logger,
) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookHandler{
		reconciler: reconciler,
		verifiers:  verifiers,
		logger:     logger,
	}
}

// RegisterRoutes mounts the public webhook endpoint. This is separate from
// BillingHandler.RegisterRoutes because the webhook must stay outside the auth
// group.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/webhook", h.Handle)
}

// Handle processes one provider delivery:
//
//  1. Read the raw body (size-capped); the exact bytes are needed for HMAC.
//  2. Classify the payload into a provider shape.
//  3. Verify the provider's signature headers against the raw body.
//  4. Reconcile against the order ledger.
//  5. Acknowledge in the provider's expected shape.
//
// The acknowledgement is only written after reconciliation succeeds; an error
// response makes the provider redeliver, which is the retry mechanism for a
// grant that failed mid-flight.
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		core.Error(w, r, types.WrapAppError(types.ErrCodeValidationBadJSON, "failed to read request body", err))
		return
	}

	parsed, err := billing.ParseWebhook(body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "unrecognized webhook payload",
			slog.Int("body_size", len(body)),
		)
		core.Error(w, r, err)
		return
	}

	verifier, ok := h.verifiers[parsed.Provider]
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthSignatureInvalid,
			"no verifier configured for provider"))
		return
	}
	if err := verifier.Verify(r, body); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed",
			slog.String("provider", string(parsed.Provider)),
			slog.Any("error", err),
		)
		core.Error(w, r, err)
		return
	}

	outcome, err := h.reconciler.Reconcile(r.Context(), parsed)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "webhook acknowledged",
		slog.String("provider", string(parsed.Provider)),
		slog.Bool("granted", outcome.Granted),
		slog.Bool("already_paid", outcome.AlreadyPaid),
	)

	h.ack(w, r, parsed.Provider)
}

// ack writes the acknowledgement body each provider expects. HotPay retries
// until it sees received=true; PingPay expects success=true.
func (h *WebhookHandler) ack(w http.ResponseWriter, r *http.Request, provider types.PaymentProvider) {
	switch provider {
	case types.ProviderPingPay:
		core.JSON(w, r, http.StatusOK, map[string]bool{"success": true})
	default:
		core.JSON(w, r, http.StatusOK, map[string]bool{"received": true})
	}
}
