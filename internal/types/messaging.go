package types

import "time"

// EmailKind selects the template rendered by the email worker.
type EmailKind string

const (
	EmailExpiryWarning  EmailKind = "expiry_warning"
	EmailExpiryNotice   EmailKind = "expiry_notice"
	EmailPaymentReceipt EmailKind = "payment_receipt"
)

// EmailJob is the message enqueued to the notification queue and consumed by
// the email worker. Params carries template inputs (days_left, tier, amount).
type EmailJob struct {
	MessageID  string            `json:"message_id"`
	Recipient  string            `json:"recipient"`
	Kind       EmailKind         `json:"kind"`
	Params     map[string]string `json:"params,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}
