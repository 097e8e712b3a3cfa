package billing

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"crixen/internal/types"
)

// --- Mock order ledger ---

type mockOrderLedger struct {
	mock.Mock
}

func (m *mockOrderLedger) FindByMemo(ctx context.Context, memo string) (*types.Order, error) {
	args := m.Called(ctx, memo)
	if o := args.Get(0); o != nil {
		return o.(*types.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderLedger) MarkPaid(ctx context.Context, orderID string, paidAt time.Time) (bool, error) {
	args := m.Called(ctx, orderID, paidAt)
	return args.Bool(0), args.Error(1)
}

func (m *mockOrderLedger) Create(ctx context.Context, o *types.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

// --- Mock user store ---

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) GetByID(ctx context.Context, userID string) (*types.User, error) {
	args := m.Called(ctx, userID)
	if u := args.Get(0); u != nil {
		return u.(*types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserStore) GrantTier(ctx context.Context, userID string, tier types.Tier, expiresAt time.Time) error {
	args := m.Called(ctx, userID, tier, expiresAt)
	return args.Error(0)
}

func (m *mockUserStore) GrantTierIfLater(ctx context.Context, userID string, tier types.Tier, expiresAt time.Time) (bool, error) {
	args := m.Called(ctx, userID, tier, expiresAt)
	return args.Bool(0), args.Error(1)
}

// --- Mock ticket store ---

type mockTicketStore struct {
	mock.Mock
}

func (m *mockTicketStore) Insert(ctx context.Context, t *types.Ticket) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockTicketStore) ExistsForOrder(ctx context.Context, orderID string) (bool, error) {
	args := m.Called(ctx, orderID)
	return args.Bool(0), args.Error(1)
}

// --- Mock notifier ---

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Enqueue(ctx context.Context, job types.EmailJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

// --- Fake ledger for concurrency tests ---

// fakeLedger is a mutex-guarded in-memory ledger whose MarkPaid implements
// the same conditional-transition contract as the SQL UPDATE.
type fakeLedger struct {
	mu    sync.Mutex
	order types.Order
}

func (f *fakeLedger) FindByMemo(_ context.Context, memo string) (*types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.order.Memo != memo {
		return nil, types.NewAppError(types.ErrCodeNotFoundOrder, "no order matches the given memo")
	}
	o := f.order
	return &o, nil
}

func (f *fakeLedger) MarkPaid(_ context.Context, orderID string, paidAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.order.ID != orderID || f.order.Status != types.OrderPending {
		return false, nil
	}
	f.order.Status = types.OrderPaid
	f.order.PaidAt = &paidAt
	return true, nil
}

// countingUserStore counts grants for concurrency assertions.
type countingUserStore struct {
	mu     sync.Mutex
	grants int
}

func (c *countingUserStore) GetByID(context.Context, string) (*types.User, error) {
	return &types.User{ID: "user_1", Email: "u@example.com"}, nil
}

func (c *countingUserStore) GrantTier(context.Context, string, types.Tier, time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grants++
	return nil
}

func (c *countingUserStore) GrantTierIfLater(context.Context, string, types.Tier, time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grants++
	return true, nil
}

func (c *countingUserStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grants
}

// countingTicketStore counts inserted tickets.
type countingTicketStore struct {
	mu      sync.Mutex
	inserts int
}

func (c *countingTicketStore) Insert(context.Context, *types.Ticket) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inserts++
	return nil
}

func (c *countingTicketStore) ExistsForOrder(context.Context, string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inserts > 0, nil
}

func (c *countingTicketStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inserts
}
