package billing

import (
	"encoding/json"
	"strings"

	"crixen/internal/types"
)

// ParsedWebhook is the provider-neutral result of classifying a webhook body.
// Exactly one provider shape matched; Memo is the correlation token and
// Success reports whether the provider-specific status means "payment
// completed".
type ParsedWebhook struct {
	Provider  types.PaymentProvider
	Memo      string
	RawStatus string
	Success   bool
}

// hotPayCallback is the notification HotPay posts after checkout.
type hotPayCallback struct {
	Memo   string `json:"memo"`
	Status string `json:"status"`
	ItemID string `json:"item_id"`
	Amount string `json:"amount"`
}

// pingPayCallback is the event PingPay posts when a hosted session settles.
type pingPayCallback struct {
	SessionID     string `json:"session_id"`
	PaymentStatus string `json:"payment_status"`
	PlanID        string `json:"plan_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// ParseWebhook classifies a raw webhook body into one of the known provider
// shapes. HotPay is tried first, then PingPay; a body matching neither (or
// matching a shape with its key fields empty) is rejected as unrecognized.
func ParseWebhook(body []byte) (*ParsedWebhook, error) {
	var hot hotPayCallback
	if err := json.Unmarshal(body, &hot); err == nil && hot.Memo != "" && hot.Status != "" {
		return &ParsedWebhook{
			Provider:  types.ProviderHotPay,
			Memo:      hot.Memo,
			RawStatus: hot.Status,
			Success:   isHotPaySuccess(hot.Status),
		}, nil
	}

	var ping pingPayCallback
	if err := json.Unmarshal(body, &ping); err == nil && ping.SessionID != "" && ping.PaymentStatus != "" {
		return &ParsedWebhook{
			Provider:  types.ProviderPingPay,
			Memo:      ping.SessionID,
			RawStatus: ping.PaymentStatus,
			Success:   isPingPaySuccess(ping.PaymentStatus),
		}, nil
	}

	return nil, types.NewAppError(types.ErrCodeValidationUnrecognizedPayload,
		"webhook payload does not match any known provider")
}

// isHotPaySuccess reports whether a HotPay status means the payment settled.
// HotPay sends SUCCESS; everything else (PENDING, FAILED, REFUNDED) is not a
// completed payment.
func isHotPaySuccess(status string) bool {
	return strings.EqualFold(status, "SUCCESS")
}

// isPingPaySuccess reports whether a PingPay payment_status means the session
// was paid. PingPay uses COMPLETED; other values (pending, expired, failed)
// are acknowledged but not acted on.
func isPingPaySuccess(status string) bool {
	return strings.EqualFold(status, "COMPLETED")
}
