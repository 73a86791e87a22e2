package natsclient

import (
	"log/slog"
	"time"

	"github.com/oteffahi/zenoh/metric"
	"github.com/oteffahi/zenoh/pkg/retry"
)

// Option configures a Client
type Option func(*Client)

// WithName sets the client name advertised to the server
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithLogger sets the logger used by the client
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger.With("component", "natsclient") }
}

// WithConnectTimeout bounds a single connection attempt
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithReconnectWait sets the delay between library-level reconnects
func WithReconnectWait(d time.Duration) Option {
	return func(c *Client) { c.reconnectWait = d }
}

// WithMaxReconnects caps library-level reconnect attempts
func WithMaxReconnects(n int) Option {
	return func(c *Client) { c.maxReconnects = n }
}

// WithCircuitThreshold sets the failure count that opens the circuit
func WithCircuitThreshold(n int) Option {
	return func(c *Client) { c.circuitThreshold = int32(n) }
}

// WithCircuitCooldown sets how long the circuit stays open before a probe
func WithCircuitCooldown(d time.Duration) Option {
	return func(c *Client) { c.circuitCooldown = d }
}

// WithRetryConfig sets the policy used by ConnectWithRetry
func WithRetryConfig(cfg retry.Config) Option {
	return func(c *Client) { c.retryConfig = cfg }
}

// WithMetrics wires transport gauges and counters
func WithMetrics(m *metric.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}
