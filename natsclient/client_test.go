package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/pkg/retry"
)

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("nats://127.0.0.1:4222")
	assert.Equal(t, "nats://127.0.0.1:4222", c.URL())
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsConnected())
}

func TestConnectionStatusString(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "circuit_open", StatusCircuitOpen.String())
	assert.Equal(t, "unknown", ConnectionStatus(42).String())
}

func TestOperationsWithoutConnection(t *testing.T) {
	c := NewClient("nats://127.0.0.1:4222")

	_, err := c.Conn()
	assert.ErrorIs(t, err, errors.ErrNoConnection)

	_, err = c.JetStream()
	assert.ErrorIs(t, err, errors.ErrNoConnection)

	err = c.Publish("subject", []byte("data"))
	assert.Error(t, err)
	assert.True(t, errors.IsTransient(err))

	_, err = c.Subscribe("subject", nil)
	assert.Error(t, err)
}

func TestCircuitOpensAfterRepeatedFailures(t *testing.T) {
	// Unroutable address: each Connect fails fast.
	c := NewClient("nats://127.0.0.1:1",
		WithConnectTimeout(50*time.Millisecond),
		WithCircuitThreshold(2),
		WithCircuitCooldown(time.Hour),
	)

	ctx := context.Background()
	require.Error(t, c.Connect(ctx))
	require.Error(t, c.Connect(ctx))
	assert.Equal(t, StatusCircuitOpen, c.Status())

	// While the circuit is open and the cooldown has not elapsed, attempts
	// are rejected without dialing.
	err := c.Connect(ctx)
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
}

func TestConnectWithRetryGivesUp(t *testing.T) {
	c := NewClient("nats://127.0.0.1:1",
		WithConnectTimeout(50*time.Millisecond),
		WithCircuitThreshold(100),
		WithRetryConfig(retry.Config{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2,
		}),
	)

	err := c.ConnectWithRetry(context.Background())
	require.Error(t, err)
}

func TestCloseIdempotent(t *testing.T) {
	c := NewClient("nats://127.0.0.1:4222")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx))

	// A closed client refuses to connect.
	err := c.Connect(ctx)
	assert.ErrorIs(t, err, errors.ErrSessionClosed)
}
