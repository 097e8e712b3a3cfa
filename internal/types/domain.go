// Package types defines the shared domain model for the Crixen billing core:
// orders, tickets, subscription tiers, and the error/context primitives used
// across the API, reconciler, and scheduler layers.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Tier is a subscription tier name. "free" is a legacy alias that must be
// normalized to "starter" everywhere tier is read; use Normalize before any
// comparison or limit lookup.
type Tier string

const (
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierAgency  Tier = "agency"

	// tierLegacyFree is the pre-migration name for the starter tier. It still
	// exists in old user rows and must never be written back.
	tierLegacyFree Tier = "free"
)

// Normalize maps legacy and unknown tier names to a canonical tier.
// "free" is an alias for starter; anything unrecognized falls back to starter
// so that a corrupt tier value can only ever under-grant, never over-grant.
func (t Tier) Normalize() Tier {
	switch t {
	case TierPro, TierAgency:
		return t
	case TierStarter, tierLegacyFree:
		return TierStarter
	default:
		return TierStarter
	}
}

// IsPaid reports whether the tier was granted by a payment (anything above
// starter after normalization).
func (t Tier) IsPaid() bool {
	n := t.Normalize()
	return n == TierPro || n == TierAgency
}

// Limits holds the numeric entitlements derived from a tier.
// A zero value means "no limit" -- enforcement code must treat 0 as unbounded.
type Limits struct {
	DailyGenerations        int `json:"daily_generations"`
	MaxProjects             int `json:"max_projects"`
	MaxStrategiesPerProject int `json:"max_strategies_per_project"`
}

// OrderStatus is the lifecycle state of a payment intent. The transition is
// monotonic: pending -> paid, applied exactly once. There is no failed or
// canceled state; an abandoned order stays pending forever.
type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
)

// PaymentProvider identifies which upstream processed (or will process) an order.
type PaymentProvider string

const (
	// ProviderHotPay is the redirect provider: we mint a random memo locally,
	// embed it in the checkout URL, and HotPay echoes it back in the webhook.
	ProviderHotPay PaymentProvider = "hotpay"

	// ProviderPingPay is the hosted-session provider: PingPay assigns the
	// session ID at session creation and that ID becomes the order memo.
	ProviderPingPay PaymentProvider = "pingpay"
)

// Order is one payment attempt in the ledger.
//
// Memo is the correlation token joining "we initiated this payment" with
// "the provider says this payment succeeded". It is unique across all orders:
// a client-generated random token for HotPay, the provider-assigned session ID
// for PingPay.
type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Memo      string          `json:"memo"`
	Amount    string          `json:"amount"` // decimal string, USD
	Status    OrderStatus     `json:"status"`
	ItemID    string          `json:"item_id"`
	Provider  PaymentProvider `json:"provider"`
	CreatedAt time.Time       `json:"created_at"`
	PaidAt    *time.Time      `json:"paid_at,omitempty"`
}

// User carries the subscription-relevant projection of a user row.
//
// Invariant: a paid tier implies the tier was granted by a paid order (or a
// manual override), and any order-driven grant always sets
// SubscriptionExpiresAt and clears ExpiryReminderSent.
type User struct {
	ID                    string     `json:"id"`
	Email                 string     `json:"email"`
	Tier                  Tier       `json:"tier"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	ExpiryReminderSent    bool       `json:"expiry_reminder_sent"`
	CreatedAt             time.Time  `json:"created_at"`
}

// Ticket is the immutable audit record of an entitlement grant. One ticket is
// appended per successful reconciliation and never mutated; it is the durable
// proof-of-entitlement trail, decoupled from the mutable User.Tier projection.
type Ticket struct {
	ID       string     `json:"id"`
	UserID   string     `json:"user_id"`
	OrderID  string     `json:"order_id"`
	Data     TicketData `json:"ticket_data"`
	IssuedAt time.Time  `json:"issued_at"`
}

// TicketData is the opaque JSON payload stored with a ticket.
type TicketData struct {
	Description string          `json:"description"`
	Provider    PaymentProvider `json:"provider"`
	Tier        Tier            `json:"tier"`
	Amount      string          `json:"amount"`
	IssuedAt    time.Time       `json:"issued_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// Value implements the driver.Valuer contract used by pgx to write TicketData
// into a jsonb column.
func (d TicketData) Value() (any, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner so TicketData can be read back from jsonb.
func (d *TicketData) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	case nil:
		*d = TicketData{}
		return nil
	default:
		return fmt.Errorf("cannot scan %T into TicketData", src)
	}
}

// UsageStats is the entitlement snapshot returned by the usage read path.
// Limit fields of 0 mean unbounded, matching Limits.
type UsageStats struct {
	GeneratedCount int  `json:"generated_count"`
	Limit          int  `json:"limit"`
	Projects       int  `json:"projects"`
	ProjectLimit   int  `json:"project_limit"`
	Tier           Tier `json:"tier"`
}
