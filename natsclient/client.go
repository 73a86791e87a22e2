// Package natsclient manages the node's NATS connection with a circuit
// breaker on repeated connection failures.
package natsclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/oteffahi/zenoh/errors"
	"github.com/oteffahi/zenoh/metric"
	"github.com/oteffahi/zenoh/pkg/retry"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusCircuitOpen
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Client manages one NATS connection for the session layer.
type Client struct {
	url    string
	logger *slog.Logger

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream

	status      atomic.Value // ConnectionStatus
	failures    atomic.Int32 // failures in the current circuit round
	lastFailure atomic.Value // time.Time

	closed  atomic.Bool
	closeMu sync.Mutex

	// Options
	name             string
	connectTimeout   time.Duration
	reconnectWait    time.Duration
	maxReconnects    int
	circuitThreshold int32
	circuitCooldown  time.Duration
	retryConfig      retry.Config
	metrics          *metric.Metrics
}

// NewClient creates a client for the given NATS URL. The client does not
// connect until Connect is called.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:              url,
		logger:           slog.Default().With("component", "natsclient"),
		name:             "zenoh-node",
		connectTimeout:   5 * time.Second,
		reconnectWait:    2 * time.Second,
		maxReconnects:    60,
		circuitThreshold: 5,
		circuitCooldown:  30 * time.Second,
		retryConfig:      retry.DefaultConfig(),
	}
	c.status.Store(StatusDisconnected)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the configured NATS URL.
func (c *Client) URL() string { return c.url }

// Status returns the current connection status.
func (c *Client) Status() ConnectionStatus {
	s, _ := c.status.Load().(ConnectionStatus)
	return s
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(s)
	if c.metrics != nil {
		c.metrics.RecordTransportStatus(s == StatusConnected)
	}
}

// IsConnected reports whether the underlying connection is usable.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

func (c *Client) recordFailure() {
	failures := c.failures.Add(1)
	c.lastFailure.Store(time.Now())
	if failures >= c.circuitThreshold {
		c.setStatus(StatusCircuitOpen)
		if c.metrics != nil {
			c.metrics.RecordCircuitBreakerState(1)
		}
		c.logger.Warn("circuit breaker opened",
			"failures", failures, "cooldown", c.circuitCooldown)
	}
}

func (c *Client) resetCircuit() {
	c.failures.Store(0)
	if c.metrics != nil {
		c.metrics.RecordCircuitBreakerState(0)
	}
}

// circuitAllows reports whether a connection attempt may proceed, letting a
// single probe through once the cooldown has elapsed.
func (c *Client) circuitAllows() bool {
	if c.Status() != StatusCircuitOpen {
		return true
	}
	last, _ := c.lastFailure.Load().(time.Time)
	return time.Since(last) >= c.circuitCooldown
}

// Connect establishes the NATS connection, honoring the circuit breaker.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.ErrSessionClosed
	}
	if !c.circuitAllows() {
		return errors.ErrCircuitOpen
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("connecting to NATS", "url", c.url)

	opts := []nats.Option{
		nats.Name(c.name),
		nats.Timeout(c.connectTimeout),
		nats.ReconnectWait(c.reconnectWait),
		nats.MaxReconnects(c.maxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.logger.Warn("NATS disconnected", "error", err)
			if c.metrics != nil {
				c.metrics.RecordTransportStatus(false)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
			if c.metrics != nil {
				c.metrics.RecordTransportReconnect()
				c.metrics.RecordTransportStatus(true)
			}
		}),
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		c.recordFailure()
		if c.Status() == StatusCircuitOpen {
			return errors.ErrCircuitOpen
		}
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "Client", "Connect", "establish connection")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		c.setStatus(StatusDisconnected)
		return errors.WrapFatal(err, "Client", "Connect", "initialize jetstream")
	}

	c.mu.Lock()
	c.conn = conn
	c.js = js
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	c.resetCircuit()
	c.logger.Info("connected to NATS", "url", conn.ConnectedUrl())
	return nil
}

// ConnectWithRetry calls Connect under the client's retry policy.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	return retry.Do(ctx, c.retryConfig, func() error {
		err := c.Connect(ctx)
		if err != nil && errors.IsFatal(err) {
			return retry.NonRetryable(err)
		}
		return err
	})
}

// Conn returns the underlying connection, or an error when not connected.
func (c *Client) Conn() (*nats.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil {
		return nil, errors.ErrNoConnection
	}
	return c.conn, nil
}

// JetStream returns the JetStream context, or an error when not connected.
func (c *Client) JetStream() (jetstream.JetStream, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.js == nil {
		return nil, errors.ErrNoConnection
	}
	return c.js, nil
}

// Subscribe registers an async handler on a raw NATS subject. The returned
// subscription is owned by the caller.
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	conn, err := c.Conn()
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "Subscribe", "get connection")
	}
	sub, err := conn.Subscribe(subject, handler)
	if err != nil {
		return nil, errors.Wrap(err, "Client", "Subscribe", "subscribe "+subject)
	}
	return sub, nil
}

// Publish sends data on a raw NATS subject.
func (c *Client) Publish(subject string, data []byte) error {
	conn, err := c.Conn()
	if err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "get connection")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.Wrap(err, "Client", "Publish", "publish "+subject)
	}
	return nil
}

// PublishRequest sends data with a reply-to subject set.
func (c *Client) PublishRequest(subject, reply string, data []byte) error {
	conn, err := c.Conn()
	if err != nil {
		return errors.WrapTransient(err, "Client", "PublishRequest", "get connection")
	}
	if err := conn.PublishRequest(subject, reply, data); err != nil {
		return errors.Wrap(err, "Client", "PublishRequest", "publish "+subject)
	}
	return nil
}

// Close drains and closes the connection. Safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	c.closed.Store(true)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.js = nil
	c.mu.Unlock()

	c.setStatus(StatusDisconnected)

	if conn == nil {
		return nil
	}

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- conn.Drain()
	}()

	select {
	case err := <-drainDone:
		if err != nil && !stderrors.Is(err, nats.ErrConnectionClosed) {
			conn.Close()
			return errors.Wrap(err, "Client", "Close", "drain connection")
		}
	case <-ctx.Done():
		conn.Close()
		return errors.WrapTransient(ctx.Err(), "Client", "Close", "drain timed out")
	}
	return nil
}
