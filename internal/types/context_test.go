package types

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
}

func TestRequestIDUnset(t *testing.T) {
	assert.Equal(t, "", RequestIDFromContext(context.Background()))
}

func TestActorRoundTrip(t *testing.T) {
	in := Actor{ID: "usr_1", Email: "pat@example.com", Tier: TierPro}
	ctx := WithActor(context.Background(), in)

	out, ok := ActorFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestActorUnset(t *testing.T) {
	_, ok := ActorFromContext(context.Background())
	assert.False(t, ok)
}
