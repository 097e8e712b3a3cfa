package billing

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"crixen/internal/config"
	"crixen/internal/types"
)

// OrderCreator persists new pending orders.
type OrderCreator interface {
	Create(ctx context.Context, o *types.Order) error
}

// PingPayClient creates hosted checkout sessions at PingPay.
type PingPayClient interface {
	CreateSession(ctx context.Context, req PingPaySessionRequest) (*PingPaySession, error)
}

// PingPaySessionRequest is the input to PingPay session creation. AmountMinor
// is in minor currency units (cents).
type PingPaySessionRequest struct {
	PlanID      string
	AmountMinor int64
	Currency    string
	SuccessURL  string
	CancelURL   string
}

// PingPaySession is the provider's response: the hosted checkout URL and the
// provider-assigned session ID that becomes the order memo.
type PingPaySession struct {
	SessionID   string
	CheckoutURL string
}

// HotOrder is the result of creating a HotPay redirect intent.
type HotOrder struct {
	URL  string
	Memo string
}

// PingPayOrder is the result of creating a PingPay hosted session intent.
type PingPayOrder struct {
	URL       string
	SessionID string
}

// IntentService creates payment intents for both providers.
//
// The two flows differ in where the memo comes from and therefore in write
// order. HotPay: we mint the memo, persist the order, then hand out the URL,
// so the webhook can never arrive before the order exists. PingPay: the
// provider mints the session ID, so the order is persisted after the API
// call; a webhook racing that insert redelivers until the row is visible.
type IntentService struct {
	orders  OrderCreator
	pingpay PingPayClient
	cfg     config.BillingConfig
	server  config.ServerConfig
	logger  *slog.Logger
}

// NewIntentService wires the intent factory.
func NewIntentService(
	orders OrderCreator,
	pingpay PingPayClient,
	cfg config.BillingConfig,
	server config.ServerConfig,
	logger *slog.Logger,
) *IntentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntentService{
		orders:  orders,
		pingpay: pingpay,
		cfg:     cfg,
		server:  server,
		logger:  logger,
	}
}

// CreateHotOrder mints a random memo, persists a pending order, and only then
// builds the redirect URL. ItemID and amount fall back to configured defaults.
func (s *IntentService) CreateHotOrder(ctx context.Context, userID, itemID, amount string) (*HotOrder, error) {
	if s.cfg.HotPayCheckoutURL == "" {
		return nil, types.NewAppError(types.ErrCodeConfigMissingCredential,
			"HotPay checkout URL is not configured")
	}

	if itemID == "" {
		itemID = s.cfg.HotPayItemID
	}
	if amount == "" {
		amount = s.cfg.HotPayAmount
	}
	if _, err := strconv.ParseFloat(amount, 64); err != nil {
		return nil, types.WrapAppError(types.ErrCodeValidationFailed,
			"amount must be a decimal string", err)
	}

	memo := uuid.NewString()

	order := &types.Order{
		UserID:   userID,
		Memo:     memo,
		Amount:   amount,
		ItemID:   itemID,
		Provider: types.ProviderHotPay,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}

	redirect, err := url.Parse(s.cfg.HotPayCheckoutURL)
	if err != nil {
		return nil, types.WrapAppError(types.ErrCodeConfigMissingCredential,
			"HotPay checkout URL is invalid", err)
	}
	q := redirect.Query()
	q.Set("item_id", itemID)
	q.Set("amount", amount)
	q.Set("memo", memo)
	q.Set("callback_url", s.server.APIExternalURL+"/v1/billing/webhook")
	redirect.RawQuery = q.Encode()

	s.logger.InfoContext(ctx, "hotpay order created",
		slog.String("order_id", order.ID),
		slog.String("user_id", userID),
		slog.String("memo", memo),
	)

	return &HotOrder{URL: redirect.String(), Memo: memo}, nil
}

// CreatePingPaySession asks PingPay for a hosted checkout session and persists
// the order keyed by the provider-assigned session ID.
func (s *IntentService) CreatePingPaySession(ctx context.Context, userID, planID, amount string) (*PingPayOrder, error) {
	if s.pingpay == nil || !s.cfg.PingPayAPIKey.IsSet() {
		return nil, types.NewAppError(types.ErrCodeConfigMissingCredential,
			"PingPay credentials are not configured")
	}

	minor, err := amountToMinorUnits(amount)
	if err != nil {
		return nil, types.WrapAppError(types.ErrCodeValidationFailed,
			"amount must be a decimal string", err)
	}

	session, err := s.pingpay.CreateSession(ctx, PingPaySessionRequest{
		PlanID:      planID,
		AmountMinor: minor,
		Currency:    "usd",
		SuccessURL:  s.server.FrontendURL + "/billing/success",
		CancelURL:   s.server.FrontendURL + "/billing/cancel",
	})
	if err != nil {
		return nil, err
	}

	order := &types.Order{
		UserID:   userID,
		Memo:     session.SessionID,
		Amount:   amount,
		ItemID:   planID,
		Provider: types.ProviderPingPay,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		// The provider session exists but we could not record it; surface the
		// failure so the client retries with a fresh session.
		s.logger.ErrorContext(ctx, "failed to persist pingpay order",
			slog.String("session_id", session.SessionID),
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
		return nil, err
	}

	s.logger.InfoContext(ctx, "pingpay session created",
		slog.String("order_id", order.ID),
		slog.String("user_id", userID),
		slog.String("session_id", session.SessionID),
	)

	return &PingPayOrder{URL: session.CheckoutURL, SessionID: session.SessionID}, nil
}

// amountToMinorUnits converts a decimal amount string into integer cents.
func amountToMinorUnits(amount string) (int64, error) {
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("amount must not be negative")
	}
	return int64(math.Round(v * 100)), nil
}
