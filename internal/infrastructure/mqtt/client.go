package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/iotbed/telemetry-bridge/internal/infrastructure/config"
)

// Client is a connection to one broker profile.
//
// A Client never reconnects by itself. When the link drops the onLost
// callback passed to Connect fires once and the Client is dead; the
// caller builds a new one (possibly for a different profile).
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client pahomqtt.Client
	broker config.BrokerConfig
	opts   Options

	lostOnce sync.Once
	onLost   func(err error)

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers are invoked on paho's delivery goroutines and must not block.
// A returned error is logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// Connect dials one broker profile and waits until the broker accepts
// the session, the connect timeout expires, or ctx is cancelled.
//
// onLost (may be nil) is called at most once, from a paho goroutine,
// when an established connection drops.
func Connect(ctx context.Context, broker config.BrokerConfig, opts Options, onLost func(error)) (*Client, error) {
	opts = opts.withDefaults()

	pahoOpts, err := buildClientOptions(broker, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		broker: broker,
		opts:   opts,
		onLost: onLost,
	}

	pahoOpts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleLost(err)
	})

	c.client = pahomqtt.NewClient(pahoOpts)
	token := c.client.Connect()

	timer := time.NewTimer(opts.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		go c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s: timeout after %v", ErrConnectionFailed, broker.Address(), opts.ConnectTimeout)
	case <-ctx.Done():
		// Abandon the handshake without waiting for paho to unwind it.
		go c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, broker.Address(), ctx.Err())
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, broker.Address(), err)
	}

	return c, nil
}

func (c *Client) handleLost(err error) {
	c.lostOnce.Do(func() {
		if c.onLost != nil {
			c.onLost(err)
		}
	})
}

// Broker returns the profile this client is connected to.
func (c *Client) Broker() config.BrokerConfig {
	return c.broker
}

// Close disconnects from the broker. A client closed this way does not
// report a lost connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.lostOnce.Do(func() {})
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// IsConnected reports whether the underlying session is up.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.client.IsConnectionOpen()
}

// HealthCheck returns ErrNotConnected when the session is down.
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

// SetLogger sets a logger for handler errors and recovered panics.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler wraps a MessageHandler with panic recovery and optional logging.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered",
						"topic", msg.Topic(),
						"panic", r,
					)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error",
					"topic", msg.Topic(),
					"error", err,
				)
			}
		}
	}
}
