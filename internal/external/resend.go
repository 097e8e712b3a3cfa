package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"crixen/internal/config"
	"crixen/internal/types"
)

// resendEndpoint is the Resend email delivery API.
const resendEndpoint = "https://api.resend.com/emails"

// ResendClient delivers transactional email through the Resend REST API.
type ResendClient struct {
	base     *BaseClient
	endpoint string
	apiKey   types.SecretString
	from     string
	logger   *slog.Logger
}

// ResendOption customizes a ResendClient.
type ResendOption func(*ResendClient)

// WithEndpoint overrides the API endpoint (httptest servers).
func WithEndpoint(url string) ResendOption {
	return func(c *ResendClient) { c.endpoint = url }
}

// NewResendClient builds a Resend client using the configured sender identity.
func NewResendClient(cfg config.EmailConfig, logger *slog.Logger, opts ...ResendOption) *ResendClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &ResendClient{
		base: NewBaseClient(
			&http.Client{Timeout: 10 * time.Second},
			"resend",
			DefaultRetryPolicy(),
			"Crixen-Billing/1.0",
		),
		endpoint: resendEndpoint,
		apiKey:   cfg.ResendAPIKey,
		from:     fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// resendRequest is the wire shape of Resend's send-email call.
type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send delivers one email. Transport failures and 5xx responses map to
// upstream_provider_unavailable; a 4xx means the message itself was rejected.
func (c *ResendClient) Send(ctx context.Context, to, subject, html string) error {
	if !c.apiKey.IsSet() {
		return types.NewAppError(types.ErrCodeConfigMissingCredential,
			"Resend API key is not configured")
	}

	payload, err := json.Marshal(resendRequest{
		From:    c.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return types.WrapAppError(types.ErrCodeInternalServer, "failed to encode email", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return types.WrapAppError(types.ErrCodeInternalServer, "failed to build email request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Reveal())

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseSize))
		c.logger.WarnContext(ctx, "resend rejected email",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)),
		)
		return types.NewAppError(types.ErrCodeUpstreamProviderRejected,
			fmt.Sprintf("resend rejected the email (status %d)", resp.StatusCode))
	}

	return nil
}
