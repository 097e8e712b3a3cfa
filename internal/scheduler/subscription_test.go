package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crixen/internal/types"
)

var sweepNow = time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) ListExpiring(ctx context.Context, now time.Time, window time.Duration) ([]types.User, error) {
	args := m.Called(ctx, now, window)
	if u := args.Get(0); u != nil {
		return u.([]types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserStore) MarkReminderSent(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockUserStore) ListExpired(ctx context.Context, now time.Time) ([]types.User, error) {
	args := m.Called(ctx, now)
	if u := args.Get(0); u != nil {
		return u.([]types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserStore) Downgrade(ctx context.Context, userID string, now time.Time) (bool, error) {
	args := m.Called(ctx, userID, now)
	return args.Bool(0), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Enqueue(ctx context.Context, job types.EmailJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func expiringUser(id string, expiresAt time.Time) types.User {
	return types.User{
		ID:                    id,
		Email:                 id + "@example.com",
		Tier:                  types.TierPro,
		SubscriptionExpiresAt: &expiresAt,
	}
}

func TestSweeper_WarningPass_SendsAndFlags(t *testing.T) {
	users := new(mockUserStore)
	mailer := new(mockNotifier)

	expiry := sweepNow.Add(50 * time.Hour)
	users.On("ListExpiring", mock.Anything, sweepNow, 72*time.Hour).
		Return([]types.User{expiringUser("user_1", expiry)}, nil)
	users.On("ListExpired", mock.Anything, sweepNow).Return([]types.User{}, nil)

	mailer.On("Enqueue", mock.Anything, mock.MatchedBy(func(job types.EmailJob) bool {
		return job.Kind == types.EmailExpiryWarning &&
			job.Recipient == "user_1@example.com" &&
			job.Params["days_left"] == "2"
	})).Return(nil)

	users.On("MarkReminderSent", mock.Anything, "user_1").Return(true, nil)

	s := NewSubscriptionSweeper(users, mailer, nil, 72*time.Hour, nil)
	result := s.Run(context.Background(), sweepNow)

	assert.Equal(t, 1, result.WarningsSent)
	assert.Equal(t, 0, result.Errors)
	users.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestSweeper_WarningPass_SendFailureLeavesFlagUnset(t *testing.T) {
	users := new(mockUserStore)
	mailer := new(mockNotifier)

	expiry := sweepNow.Add(24 * time.Hour)
	users.On("ListExpiring", mock.Anything, sweepNow, 72*time.Hour).
		Return([]types.User{expiringUser("user_1", expiry)}, nil)
	users.On("ListExpired", mock.Anything, sweepNow).Return([]types.User{}, nil)

	mailer.On("Enqueue", mock.Anything, mock.Anything).Return(errors.New("queue unavailable"))

	s := NewSubscriptionSweeper(users, mailer, nil, 72*time.Hour, nil)
	result := s.Run(context.Background(), sweepNow)

	assert.Equal(t, 0, result.WarningsSent)
	assert.Equal(t, 1, result.Errors)
	// The flag write must not happen when the send failed.
	users.AssertNotCalled(t, "MarkReminderSent", mock.Anything, mock.Anything)
}

func TestSweeper_WarningPass_PerUserIsolation(t *testing.T) {
	users := new(mockUserStore)
	mailer := new(mockNotifier)

	expiry := sweepNow.Add(48 * time.Hour)
	users.On("ListExpiring", mock.Anything, sweepNow, 72*time.Hour).
		Return([]types.User{
			expiringUser("user_bad", expiry),
			expiringUser("user_good", expiry),
		}, nil)
	users.On("ListExpired", mock.Anything, sweepNow).Return([]types.User{}, nil)

	mailer.On("Enqueue", mock.Anything, mock.MatchedBy(func(job types.EmailJob) bool {
		return job.Recipient == "user_bad@example.com"
	})).Return(errors.New("bounce"))
	mailer.On("Enqueue", mock.Anything, mock.MatchedBy(func(job types.EmailJob) bool {
		return job.Recipient == "user_good@example.com"
	})).Return(nil)
	users.On("MarkReminderSent", mock.Anything, "user_good").Return(true, nil)

	s := NewSubscriptionSweeper(users, mailer, nil, 72*time.Hour, nil)
	result := s.Run(context.Background(), sweepNow)

	assert.Equal(t, 1, result.WarningsSent)
	assert.Equal(t, 1, result.Errors)
}

func TestSweeper_DowngradePass_DowngradesAndNotifies(t *testing.T) {
	users := new(mockUserStore)
	mailer := new(mockNotifier)

	users.On("ListExpiring", mock.Anything, sweepNow, 72*time.Hour).Return([]types.User{}, nil)

	lapsed := sweepNow.Add(-time.Hour)
	users.On("ListExpired", mock.Anything, sweepNow).
		Return([]types.User{expiringUser("user_1", lapsed)}, nil)
	users.On("Downgrade", mock.Anything, "user_1", sweepNow).Return(true, nil)

	mailer.On("Enqueue", mock.Anything, mock.MatchedBy(func(job types.EmailJob) bool {
		return job.Kind == types.EmailExpiryNotice && job.Recipient == "user_1@example.com"
	})).Return(nil)

	s := NewSubscriptionSweeper(users, mailer, nil, 72*time.Hour, nil)
	result := s.Run(context.Background(), sweepNow)

	assert.Equal(t, 1, result.Downgraded)
	users.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestSweeper_DowngradePass_NoticeFailureStillDowngrades(t *testing.T) {
	users := new(mockUserStore)
	mailer := new(mockNotifier)

	users.On("ListExpiring", mock.Anything, sweepNow, 72*time.Hour).Return([]types.User{}, nil)

	lapsed := sweepNow.Add(-48 * time.Hour)
	users.On("ListExpired", mock.Anything, sweepNow).
		Return([]types.User{expiringUser("user_1", lapsed)}, nil)
	users.On("Downgrade", mock.Anything, "user_1", sweepNow).Return(true, nil)
	mailer.On("Enqueue", mock.Anything, mock.Anything).Return(errors.New("queue unavailable"))

	s := NewSubscriptionSweeper(users, mailer, nil, 72*time.Hour, nil)
	result := s.Run(context.Background(), sweepNow)

	// The downgrade is authoritative; the notice is best-effort.
	assert.Equal(t, 1, result.Downgraded)
	assert.Equal(t, 0, result.Errors)
}

func TestSweeper_DowngradePass_SkipsRenewedUser(t *testing.T) {
	users := new(mockUserStore)
	mailer := new(mockNotifier)

	users.On("ListExpiring", mock.Anything, sweepNow, 72*time.Hour).Return([]types.User{}, nil)

	lapsed := sweepNow.Add(-time.Hour)
	users.On("ListExpired", mock.Anything, sweepNow).
		Return([]types.User{expiringUser("user_1", lapsed)}, nil)
	// Conditional downgrade rejected: a payment renewed the user mid-sweep.
	users.On("Downgrade", mock.Anything, "user_1", sweepNow).Return(false, nil)

	s := NewSubscriptionSweeper(users, mailer, nil, 72*time.Hour, nil)
	result := s.Run(context.Background(), sweepNow)

	assert.Equal(t, 0, result.Downgraded)
	mailer.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestSweeper_RunIsDeterministicForFixedNow(t *testing.T) {
	users := new(mockUserStore)

	users.On("ListExpiring", mock.Anything, sweepNow, 72*time.Hour).Return([]types.User{}, nil).Twice()
	users.On("ListExpired", mock.Anything, sweepNow).Return([]types.User{}, nil).Twice()

	s := NewSubscriptionSweeper(users, nil, nil, 72*time.Hour, nil)
	first := s.Run(context.Background(), sweepNow)
	second := s.Run(context.Background(), sweepNow)

	require.Equal(t, first, second)
	users.AssertExpectations(t)
}
