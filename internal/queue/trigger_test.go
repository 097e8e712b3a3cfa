package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"crixen/internal/config"
	"crixen/internal/types"
)

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*sqs.SendMessageOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestEmailTrigger_Enqueue(t *testing.T) {
	client := new(mockSQS)

	var sent *sqs.SendMessageInput
	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		sent = in
		return *in.QueueUrl == "https://sqs.example/notifications"
	})).Return(&sqs.SendMessageOutput{}, nil)

	trigger := NewEmailTrigger(client, config.AWSConfig{NotificationQueue: "https://sqs.example/notifications"}, nil)

	err := trigger.Enqueue(context.Background(), types.EmailJob{
		Recipient: "u@example.com",
		Kind:      types.EmailExpiryWarning,
		Params:    map[string]string{"days_left": "3"},
	})
	require.NoError(t, err)
	require.NotNil(t, sent)

	var job types.EmailJob
	require.NoError(t, json.Unmarshal([]byte(*sent.MessageBody), &job))
	assert.NotEmpty(t, job.MessageID)
	assert.False(t, job.EnqueuedAt.IsZero())
	assert.Equal(t, types.EmailExpiryWarning, job.Kind)
	assert.Equal(t, "expiry_warning", *sent.MessageAttributes["kind"].StringValue)
}

func TestEmailTrigger_Enqueue_SendFailure(t *testing.T) {
	client := new(mockSQS)
	client.On("SendMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("access denied"))

	trigger := NewEmailTrigger(client, config.AWSConfig{NotificationQueue: "https://sqs.example/notifications"}, nil)

	err := trigger.Enqueue(context.Background(), types.EmailJob{
		Recipient: "u@example.com",
		Kind:      types.EmailExpiryNotice,
	})
	require.Error(t, err)
}
