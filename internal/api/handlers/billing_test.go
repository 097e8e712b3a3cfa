package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crixen/internal/billing"
	"crixen/internal/core"
	"crixen/internal/types"
)

// withActor injects a fixed authenticated actor, standing in for the real
// auth middleware in route-level tests.
func withActor(a types.Actor) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), a)))
		})
	}
}

type intentCall struct {
	UserID string
	ItemID string
	Amount string
}

// mockIntents implements IntentCreator for testing.
type mockIntents struct {
	hotCalls  []intentCall
	pingCalls []intentCall

	hotOrder *billing.HotOrder
	hotErr   error
	pingSess *billing.PingPayOrder
	pingErr  error
}

func (m *mockIntents) CreateHotOrder(_ context.Context, userID, itemID, amount string) (*billing.HotOrder, error) {
	m.hotCalls = append(m.hotCalls, intentCall{UserID: userID, ItemID: itemID, Amount: amount})
	return m.hotOrder, m.hotErr
}

func (m *mockIntents) CreatePingPaySession(_ context.Context, userID, planID, amount string) (*billing.PingPayOrder, error) {
	m.pingCalls = append(m.pingCalls, intentCall{UserID: userID, ItemID: planID, Amount: amount})
	return m.pingSess, m.pingErr
}

func billingRouter(intents IntentCreator, auth func(http.Handler) http.Handler) *chi.Mux {
	h := NewBillingHandler(intents, core.NewValidator(), auth, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func decodeData(t *testing.T, body *bytes.Buffer, dst any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body.Bytes(), &envelope))
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

func decodeErrorCode(t *testing.T, body *bytes.Buffer) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body.Bytes(), &envelope))
	return envelope.Error.Code
}

func TestCreateHotOrder_EmptyBodyUsesDefaults(t *testing.T) {
	intents := &mockIntents{hotOrder: &billing.HotOrder{
		URL:  "https://pay.hotpay.io/checkout?memo=m-1",
		Memo: "m-1",
	}}
	router := billingRouter(intents, withActor(types.Actor{ID: "user_1", Tier: types.TierStarter}))

	req := httptest.NewRequest(http.MethodPost, "/billing/create-hot-order", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HotOrderResponse
	decodeData(t, rec.Body, &resp)
	assert.Equal(t, "m-1", resp.Memo)
	assert.Contains(t, resp.URL, "memo=m-1")

	require.Len(t, intents.hotCalls, 1)
	assert.Equal(t, intentCall{UserID: "user_1"}, intents.hotCalls[0])
}

func TestCreateHotOrder_PassesOverrides(t *testing.T) {
	intents := &mockIntents{hotOrder: &billing.HotOrder{URL: "https://x", Memo: "m-2"}}
	router := billingRouter(intents, withActor(types.Actor{ID: "user_1"}))

	body := bytes.NewBufferString(`{"item_id":"crixen-agency-monthly","amount":"120.00"}`)
	req := httptest.NewRequest(http.MethodPost, "/billing/create-hot-order", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, intents.hotCalls, 1)
	assert.Equal(t, "crixen-agency-monthly", intents.hotCalls[0].ItemID)
	assert.Equal(t, "120.00", intents.hotCalls[0].Amount)
}

func TestCreateHotOrder_NoActor(t *testing.T) {
	intents := &mockIntents{}
	router := billingRouter(intents, nil)

	req := httptest.NewRequest(http.MethodPost, "/billing/create-hot-order", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, intents.hotCalls)
}

func TestCreateHotOrder_ServiceError(t *testing.T) {
	intents := &mockIntents{hotErr: types.NewAppError(types.ErrCodeConflictDuplicateMemo, "memo collision")}
	router := billingRouter(intents, withActor(types.Actor{ID: "user_1"}))

	req := httptest.NewRequest(http.MethodPost, "/billing/create-hot-order", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "conflict_duplicate_memo", decodeErrorCode(t, rec.Body))
}

func TestCreatePingPaySession_Success(t *testing.T) {
	intents := &mockIntents{pingSess: &billing.PingPayOrder{
		URL:       "https://checkout.pingpay.io/cs_123",
		SessionID: "cs_123",
	}}
	router := billingRouter(intents, withActor(types.Actor{ID: "user_2"}))

	body := bytes.NewBufferString(`{"plan_id":"pro-monthly","amount":"29.00"}`)
	req := httptest.NewRequest(http.MethodPost, "/billing/create-pingpay-session", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp PingPaySessionResponse
	decodeData(t, rec.Body, &resp)
	assert.Equal(t, "cs_123", resp.SessionID)

	require.Len(t, intents.pingCalls, 1)
	assert.Equal(t, intentCall{UserID: "user_2", ItemID: "pro-monthly", Amount: "29.00"}, intents.pingCalls[0])
}

func TestCreatePingPaySession_MissingPlanID(t *testing.T) {
	intents := &mockIntents{}
	router := billingRouter(intents, withActor(types.Actor{ID: "user_2"}))

	body := bytes.NewBufferString(`{"amount":"29.00"}`)
	req := httptest.NewRequest(http.MethodPost, "/billing/create-pingpay-session", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decodeErrorCode(t, rec.Body))
	assert.Empty(t, intents.pingCalls)
}

func TestCreatePingPaySession_EmptyBody(t *testing.T) {
	intents := &mockIntents{}
	router := billingRouter(intents, withActor(types.Actor{ID: "user_2"}))

	req := httptest.NewRequest(http.MethodPost, "/billing/create-pingpay-session", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_bad_json", decodeErrorCode(t, rec.Body))
}

func TestCreatePingPaySession_ProviderRejected(t *testing.T) {
	intents := &mockIntents{pingErr: types.NewAppError(types.ErrCodeUpstreamProviderRejected, "plan not found")}
	router := billingRouter(intents, withActor(types.Actor{ID: "user_2"}))

	body := bytes.NewBufferString(`{"plan_id":"bogus","amount":"29.00"}`)
	req := httptest.NewRequest(http.MethodPost, "/billing/create-pingpay-session", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "upstream_provider_rejected", decodeErrorCode(t, rec.Body))
}
