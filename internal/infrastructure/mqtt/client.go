package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/quartzlab/emqx-bridge/internal/infrastructure/config"
)

// BackendUsername is the MQTT username the bridge authenticates as.
// The broker's JWT plugin checks it against the token's username claim.
const BackendUsername = "backend"

// CredentialSource mints the JWT the client presents as its password.
type CredentialSource interface {
	IssueBackendCredential() (string, error)
}

// StateSink observes connection state transitions. Sinks are fixed at
// construction; there is no way to swap them on a live client.
type StateSink interface {
	OnBrokerConnect()
	OnBrokerConnectionLost(err error)
}

// Client wraps paho.mqtt.golang for the bridge's publish-only role.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	sinks  []StateSink

	connected bool
	connMu    sync.RWMutex

	closeOnce sync.Once
}

// Connect establishes a connection to the MQTT broker.
//
// The initial connection is retried up to cfg.Reconnect.MaxAttempts
// times with cfg.Reconnect.RetryDelay seconds between attempts, so a
// broker that is still starting gets a bounded grace period. When every
// attempt fails the returned error wraps ErrConnectionFailed and
// carries the last attempt's cause.
//
// The context cancels the retry loop between attempts.
func Connect(ctx context.Context, cfg config.MQTTConfig, credentials CredentialSource, sinks ...StateSink) (*Client, error) {
	opts, err := buildClientOptions(cfg, credentials)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:   cfg,
		sinks: sinks,
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleConnectionLost(err)
	})

	c.client = pahomqtt.NewClient(opts)

	maxAttempts := cfg.Reconnect.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryDelay := time.Duration(cfg.Reconnect.RetryDelay) * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		token := c.client.Connect()
		if !token.WaitTimeout(defaultConnectTimeout) {
			lastErr = fmt.Errorf("attempt %d: timeout after %v", attempt, defaultConnectTimeout)
		} else if err := token.Error(); err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt, err)
		} else {
			// The OnConnectHandler runs asynchronously; set state here
			// so IsConnected() is true as soon as Connect returns.
			c.connMu.Lock()
			c.connected = true
			c.connMu.Unlock()
			return c, nil
		}

		if attempt < maxAttempts {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
			case <-time.After(retryDelay):
			}
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrConnectionFailed, maxAttempts, lastErr)
}

// handleConnect is called on initial connect and every reconnect.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	for _, sink := range c.sinks {
		sink.OnBrokerConnect()
	}
}

// handleConnectionLost is called when an established connection drops.
// Paho's auto-reconnect is already running by the time this fires.
func (c *Client) handleConnectionLost(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	for _, sink := range c.sinks {
		sink.OnBrokerConnectionLost(err)
	}
}

// Close disconnects from the broker. Safe to call multiple times and on
// a client that never connected.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.client != nil {
			c.client.Disconnect(defaultDisconnectQuiesce)
		}

		c.connMu.Lock()
		c.connected = false
		c.connMu.Unlock()
	})

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}
