package billing

import (
	"context"
	"log/slog"
	"time"

	"crixen/internal/types"
)

// OrderLedger is the subset of the order repository the reconciler needs.
type OrderLedger interface {
	FindByMemo(ctx context.Context, memo string) (*types.Order, error)
	MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error)
}

// UserStore applies tier grants. GrantTier is the unconditional write used on
// the live webhook path; GrantTierIfLater writes only when it extends the
// stored expiry, which is what replays of old ledger rows must use.
type UserStore interface {
	GetByID(ctx context.Context, userID string) (*types.User, error)
	GrantTier(ctx context.Context, userID string, tier types.Tier, expiresAt time.Time) error
	GrantTierIfLater(ctx context.Context, userID string, tier types.Tier, expiresAt time.Time) (bool, error)
}

// TicketStore appends entitlement audit records.
type TicketStore interface {
	Insert(ctx context.Context, t *types.Ticket) error
	ExistsForOrder(ctx context.Context, orderID string) (bool, error)
}

// Notifier enqueues outbound emails. Delivery is asynchronous and best-effort
// from the reconciler's point of view.
type Notifier interface {
	Enqueue(ctx context.Context, job types.EmailJob) error
}

// ReconcileMetrics records reconciliation outcomes.
type ReconcileMetrics interface {
	RecordReconciliation(provider types.PaymentProvider, result string)
}

// Outcome describes how a webhook was resolved. Exactly one field is true for
// any nil-error return.
type Outcome struct {
	// Granted: fresh pending -> paid transition, tier applied.
	Granted bool
	// AlreadyPaid: duplicate delivery for an order that was settled earlier.
	AlreadyPaid bool
	// IgnoredNonSuccess: the provider reported a non-success status.
	IgnoredNonSuccess bool

	// Tier is the granted tier when Granted is true.
	Tier types.Tier
}

// Reconciler drives the webhook settlement state machine. The order ledger's
// conditional MarkPaid is the serialization point: no matter how many
// deliveries race, exactly one observes the fresh transition and performs the
// grant.
type Reconciler struct {
	orders  OrderLedger
	users   UserStore
	tickets TicketStore
	mailer  Notifier
	metrics ReconcileMetrics
	logger  *slog.Logger

	// period is the entitlement window granted per payment.
	period time.Duration
	// now is injected for deterministic tests.
	now func() time.Time
}

// ReconcilerOption customizes a Reconciler.
type ReconcilerOption func(*Reconciler)

// WithClock overrides the reconciler's time source.
func WithClock(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) { r.now = now }
}

// WithPeriod overrides the default 30-day entitlement window.
func WithPeriod(d time.Duration) ReconcilerOption {
	return func(r *Reconciler) { r.period = d }
}

// NewReconciler wires the reconciler. mailer and metrics may be nil; ticket
// insertion, receipts, and metrics are all best-effort.
func NewReconciler(
	orders OrderLedger,
	users UserStore,
	tickets TicketStore,
	mailer Notifier,
	metrics ReconcileMetrics,
	logger *slog.Logger,
	opts ...ReconcilerOption,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		orders:  orders,
		users:   users,
		tickets: tickets,
		mailer:  mailer,
		metrics: metrics,
		logger:  logger,
		period:  30 * 24 * time.Hour,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile settles a classified webhook against the order ledger.
//
// A non-success status is acknowledged without touching any state. An unknown
// memo is an error (the provider will redeliver; the order may be written by a
// racing intent request). A duplicate delivery is acknowledged as already
// paid. Only the caller that wins the conditional transition derives the tier
// and applies the grant; the acknowledgement must not be sent until the grant
// has committed.
func (r *Reconciler) Reconcile(ctx context.Context, pw *ParsedWebhook) (*Outcome, error) {
	log := r.logger.With(
		slog.String("provider", string(pw.Provider)),
		slog.String("memo", pw.Memo),
	)

	if !pw.Success {
		log.InfoContext(ctx, "ignoring non-success webhook", slog.String("status", pw.RawStatus))
		r.record(pw.Provider, "ignored_non_success")
		return &Outcome{IgnoredNonSuccess: true}, nil
	}

	order, err := r.orders.FindByMemo(ctx, pw.Memo)
	if err != nil {
		r.record(pw.Provider, "order_not_found")
		return nil, err
	}

	if order.Status == types.OrderPaid {
		log.InfoContext(ctx, "duplicate webhook for settled order", slog.String("order_id", order.ID))
		r.record(pw.Provider, "already_paid")
		return &Outcome{AlreadyPaid: true}, nil
	}

	now := r.now().UTC()
	fresh, err := r.orders.MarkPaid(ctx, order.ID, now)
	if err != nil {
		r.record(pw.Provider, "transition_failed")
		return nil, err
	}
	if !fresh {
		// Lost the race against a concurrent delivery; the winner grants.
		log.InfoContext(ctx, "concurrent delivery won the paid transition", slog.String("order_id", order.ID))
		r.record(pw.Provider, "already_paid")
		return &Outcome{AlreadyPaid: true}, nil
	}

	tier := TierForAmount(order.Amount)
	expiresAt := now.Add(r.period)

	if err := r.users.GrantTier(ctx, order.UserID, tier, expiresAt); err != nil {
		// The order is paid but the user row was not updated. Do not ack:
		// the provider redelivers, and the grant-replay sweep also repairs
		// this from the ledger.
		log.ErrorContext(ctx, "grant failed after paid transition",
			slog.String("order_id", order.ID),
			slog.String("user_id", order.UserID),
			slog.Any("error", err),
		)
		r.record(pw.Provider, "grant_failed")
		return nil, err
	}

	r.appendTicket(ctx, order, tier, now, expiresAt)
	r.sendReceipt(ctx, order, tier)

	log.InfoContext(ctx, "payment reconciled",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.String("tier", string(tier)),
		slog.Time("expires_at", expiresAt),
	)
	r.record(pw.Provider, "granted")

	return &Outcome{Granted: true, Tier: tier}, nil
}

// ReplayGrant repairs a paid order whose reconciliation was interrupted after
// the ledger transition: it re-derives the tier, re-applies the grant, and
// backfills the audit ticket. Used by the ledger maintenance sweep.
//
// The grant is conditional on extending the stored expiry. An old paid order
// replayed after the user renewed would otherwise overwrite the renewal's
// expiry with a stale one and hand the user to the next downgrade pass; in
// that case only the missing ticket is backfilled.
func (r *Reconciler) ReplayGrant(ctx context.Context, order *types.Order) error {
	if order.Status != types.OrderPaid {
		return nil
	}

	paidAt := r.now().UTC()
	if order.PaidAt != nil {
		paidAt = *order.PaidAt
	}

	tier := TierForAmount(order.Amount)
	expiresAt := paidAt.Add(r.period)

	applied, err := r.users.GrantTierIfLater(ctx, order.UserID, tier, expiresAt)
	if err != nil {
		return err
	}

	exists, err := r.tickets.ExistsForOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if !exists {
		r.appendTicket(ctx, order, tier, paidAt, expiresAt)
	}

	r.logger.InfoContext(ctx, "grant replayed from ledger",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.String("tier", string(tier)),
		slog.Bool("expiry_applied", applied),
	)
	return nil
}

// appendTicket records the grant in the audit trail. Failures are logged and
// swallowed: the grant already committed and must not be rolled back or
// re-acknowledged over a missing audit row.
func (r *Reconciler) appendTicket(ctx context.Context, order *types.Order, tier types.Tier, issuedAt, expiresAt time.Time) {
	ticket := &types.Ticket{
		UserID:  order.UserID,
		OrderID: order.ID,
		Data: types.TicketData{
			Description: "Subscription payment reconciled",
			Provider:    order.Provider,
			Tier:        tier,
			Amount:      order.Amount,
			IssuedAt:    issuedAt,
			ExpiresAt:   expiresAt,
		},
	}
	if err := r.tickets.Insert(ctx, ticket); err != nil {
		r.logger.ErrorContext(ctx, "ticket append failed",
			slog.String("order_id", order.ID),
			slog.Any("error", err),
		)
	}
}

// sendReceipt enqueues a payment receipt email, best-effort.
func (r *Reconciler) sendReceipt(ctx context.Context, order *types.Order, tier types.Tier) {
	if r.mailer == nil {
		return
	}

	user, err := r.users.GetByID(ctx, order.UserID)
	if err != nil {
		r.logger.WarnContext(ctx, "skipping receipt, user lookup failed",
			slog.String("user_id", order.UserID),
			slog.Any("error", err),
		)
		return
	}

	job := types.EmailJob{
		Recipient: user.Email,
		Kind:      types.EmailPaymentReceipt,
		Params: map[string]string{
			"tier":   string(tier),
			"amount": order.Amount,
		},
		EnqueuedAt: r.now().UTC(),
	}
	if err := r.mailer.Enqueue(ctx, job); err != nil {
		r.logger.WarnContext(ctx, "receipt enqueue failed",
			slog.String("user_id", order.UserID),
			slog.Any("error", err),
		)
	}
}

func (r *Reconciler) record(provider types.PaymentProvider, result string) {
	if r.metrics != nil {
		r.metrics.RecordReconciliation(provider, result)
	}
}
