// Package natsclient provides a thin client for the NATS connection and
// JetStream key-value buckets used by the durable context and flow stores.
package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/flowrt/errors"
)

// Client manages one NATS connection and its JetStream handle.
type Client struct {
	url    string
	logger *slog.Logger

	connectTimeout time.Duration
	reconnectWait  time.Duration
	maxReconnects  int
	clientName     string

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithConnectTimeout sets the dial timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithClientName sets the connection name reported to the server.
func WithClientName(name string) Option {
	return func(c *Client) { c.clientName = name }
}

// NewClient creates a client for the given NATS URL. The connection is
// established by Connect, not here.
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "NewClient", "url validation")
	}

	c := &Client{
		url:            url,
		logger:         slog.Default(),
		connectTimeout: 5 * time.Second,
		reconnectWait:  2 * time.Second,
		maxReconnects:  -1, // retry forever
		clientName:     "flowrt",
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Connect establishes the NATS connection and JetStream context.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	conn, err := nats.Connect(c.url,
		nats.Name(c.clientName),
		nats.Timeout(c.connectTimeout),
		nats.ReconnectWait(c.reconnectWait),
		nats.MaxReconnects(c.maxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return errors.WrapTransient(err, "Client", "Connect", "dial NATS")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.WrapTransient(err, "Client", "Connect", "create JetStream context")
	}

	c.conn = conn
	c.js = js
	c.logger.Info("Connected to NATS", "url", conn.ConnectedUrl())

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// Close drains and closes the connection.
func (c *Client) Close(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("NATS drain failed", "error", err)
		c.conn.Close()
	}
	c.conn = nil
	c.js = nil
}

// IsConnected reports whether the connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// CreateKeyValueBucket creates or opens a JetStream KV bucket.
func (c *Client) CreateKeyValueBucket(
	ctx context.Context, cfg jetstream.KeyValueConfig,
) (jetstream.KeyValue, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, errors.WrapTransient(errors.ErrNoConnection, "Client", "CreateKeyValueBucket", "JetStream check")
	}

	bucket, err := js.CreateOrUpdateKeyValue(ctx, cfg)
	if err != nil {
		return nil, errors.WrapTransient(err, "Client", "CreateKeyValueBucket", "create bucket "+cfg.Bucket)
	}

	return bucket, nil
}
