package external

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"crixen/internal/billing"
	"crixen/internal/config"
	"crixen/internal/types"
)

// maxProviderResponseSize caps how much of a provider response we will read.
const maxProviderResponseSize = 1 << 20

// PingPayClient talks to the PingPay checkout-session REST API. It implements
// billing.PingPayClient.
type PingPayClient struct {
	base    *BaseClient
	baseURL string
	apiKey  types.SecretString
	logger  *slog.Logger
}

// NewPingPayClient builds a PingPay client with the standard resilience stack.
func NewPingPayClient(cfg config.BillingConfig, logger *slog.Logger, opts ...BaseClientOption) *PingPayClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &PingPayClient{
		base: NewBaseClient(
			&http.Client{Timeout: 15 * time.Second},
			"pingpay",
			DefaultRetryPolicy(),
			"Crixen-Billing/1.0",
			opts...,
		),
		baseURL: cfg.PingPayBaseURL,
		apiKey:  cfg.PingPayAPIKey,
		logger:  logger,
	}
}

// createSessionRequest is the wire shape of PingPay session creation.
type createSessionRequest struct {
	PlanID     string `json:"plan_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

// createSessionResponse is PingPay's reply.
type createSessionResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// pingPayError is the error envelope PingPay returns on non-2xx.
type pingPayError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// CreateSession creates a hosted checkout session.
//
// Error attribution: 4xx means PingPay rejected the request we built
// (upstream_provider_rejected, surfaced as 400); 5xx and transport failures
// are the provider's fault (upstream_provider_unavailable, 502); a 2xx body
// that does not parse or lacks a session ID is upstream_provider_malformed.
func (c *PingPayClient) CreateSession(ctx context.Context, req billing.PingPaySessionRequest) (*billing.PingPaySession, error) {
	if !c.apiKey.IsSet() {
		return nil, types.NewAppError(types.ErrCodeConfigMissingCredential,
			"PingPay API key is not configured")
	}

	payload, err := json.Marshal(createSessionRequest{
		PlanID:     req.PlanID,
		Amount:     req.AmountMinor,
		Currency:   req.Currency,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		return nil, types.WrapAppError(types.ErrCodeInternalServer,
			"failed to encode session request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/checkout/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, types.WrapAppError(types.ErrCodeInternalServer,
			"failed to build session request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey.Reveal())

	resp, err := c.base.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
	if err != nil {
		return nil, types.WrapAppError(types.ErrCodeUpstreamProviderUnavailable,
			"failed to read pingpay response", err)
	}

	if resp.StatusCode >= 400 {
		var perr pingPayError
		_ = json.Unmarshal(body, &perr)
		c.logger.WarnContext(ctx, "pingpay rejected session creation",
			slog.Int("status", resp.StatusCode),
			slog.String("provider_code", perr.Error.Code),
		)
		if resp.StatusCode >= 500 {
			return nil, types.NewAppError(types.ErrCodeUpstreamProviderUnavailable,
				"pingpay is unavailable")
		}
		msg := perr.Error.Message
		if msg == "" {
			msg = "pingpay rejected the session request"
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamProviderRejected, msg)
	}

	var out createSessionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, types.WrapAppError(types.ErrCodeUpstreamProviderMalformed,
			"pingpay returned an unparseable response", err)
	}
	if out.SessionID == "" || out.URL == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamProviderMalformed,
			"pingpay response is missing session_id or url")
	}

	return &billing.PingPaySession{SessionID: out.SessionID, CheckoutURL: out.URL}, nil
}
