package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crixen/internal/types"
)

func TestRender_ExpiryWarning(t *testing.T) {
	msg, err := Render(types.EmailJob{
		Kind:   types.EmailExpiryWarning,
		Params: map[string]string{"tier": "pro", "days_left": "3"},
	}, "https://app.crixen.io")
	require.NoError(t, err)
	assert.Contains(t, msg.Subject, "3 days")
	assert.Contains(t, msg.HTML, "expires in <strong>3</strong> days")
	assert.Contains(t, msg.HTML, "https://app.crixen.io/billing")
}

func TestRender_ExpiryWarning_OneDay(t *testing.T) {
	msg, err := Render(types.EmailJob{
		Kind:   types.EmailExpiryWarning,
		Params: map[string]string{"tier": "agency", "days_left": "1"},
	}, "https://app.crixen.io")
	require.NoError(t, err)
	assert.Equal(t, "Your Crixen subscription expires tomorrow", msg.Subject)
	assert.Contains(t, msg.HTML, "<strong>1</strong> day.")
}

func TestRender_ExpiryNotice(t *testing.T) {
	msg, err := Render(types.EmailJob{
		Kind:   types.EmailExpiryNotice,
		Params: map[string]string{"tier": "pro"},
	}, "https://app.crixen.io")
	require.NoError(t, err)
	assert.Equal(t, "Your Crixen subscription has expired", msg.Subject)
	assert.Contains(t, msg.HTML, "moved to the starter plan")
}

func TestRender_PaymentReceipt(t *testing.T) {
	msg, err := Render(types.EmailJob{
		Kind:   types.EmailPaymentReceipt,
		Params: map[string]string{"tier": "agency", "amount": "120.00"},
	}, "https://app.crixen.io")
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, "$120.00")
	assert.Contains(t, msg.HTML, "agency")
}

func TestRender_UnknownKind(t *testing.T) {
	_, err := Render(types.EmailJob{Kind: "mystery"}, "https://app.crixen.io")
	require.Error(t, err)
}

type fakeSender struct {
	err      error
	lastTo   string
	lastSubj string
}

func (f *fakeSender) Send(_ context.Context, to, subject, _ string) error {
	f.lastTo = to
	f.lastSubj = subject
	return f.err
}

func TestChannel_Deliver(t *testing.T) {
	sender := &fakeSender{}
	ch := NewChannel(sender, "https://app.crixen.io", nil)

	err := ch.Deliver(context.Background(), types.EmailJob{
		MessageID: "m1",
		Recipient: "u@example.com",
		Kind:      types.EmailExpiryNotice,
	})
	require.NoError(t, err)
	assert.Equal(t, "u@example.com", sender.lastTo)
	assert.Equal(t, "Your Crixen subscription has expired", sender.lastSubj)
}

func TestChannel_Deliver_SendFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("timeout")}
	ch := NewChannel(sender, "https://app.crixen.io", nil)

	err := ch.Deliver(context.Background(), types.EmailJob{
		Recipient: "u@example.com",
		Kind:      types.EmailExpiryWarning,
		Params:    map[string]string{"days_left": "2"},
	})
	require.Error(t, err)
}

func TestChannel_Deliver_MissingRecipient(t *testing.T) {
	ch := NewChannel(&fakeSender{}, "https://app.crixen.io", nil)
	err := ch.Deliver(context.Background(), types.EmailJob{Kind: types.EmailExpiryWarning})
	require.Error(t, err)
}
