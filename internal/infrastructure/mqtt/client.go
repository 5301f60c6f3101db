package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/config"
)

// Client is the bridge's connection to the Gray Logic broker.
//
// Beyond publish and subscribe it owns two pieces of broker-visible state:
// the retained client status on graylogic/system/status/{client_id}, and the
// Last Will the broker publishes if the bridge vanishes. Subscriptions are
// replayed after every reconnect.
//
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected atomic.Bool

	// reconnects counts attempts since the last successful connect;
	// exhausted is set once cfg.Reconnect.MaxAttempts is exceeded.
	reconnects atomic.Int32
	exhausted  atomic.Bool

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the logging subset the client needs. *logging.Logger satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is called for each message received on a subscription.
//
// Handlers run on paho's goroutines and should return quickly. A returned
// error is logged; it does not affect acknowledgement.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits for the first connection.
//
// Without WithWill the Last Will is an offline status on the client status
// topic. The bridge passes its own health message instead so consumers of
// graylogic/health/matter see the crash.
//
// Parameters:
//   - cfg: MQTT configuration
//   - options: Optional settings such as WithWill
//
// Returns:
//   - *Client: Connected client
//   - error: ErrConnectionFailed if the broker is not reachable in time
func Connect(cfg config.MQTTConfig, options ...Option) (*Client, error) {
	settings := connectSettings{will: statusWill(cfg.Broker.ClientID, byte(cfg.QoS))} //nolint:gosec // QoS validated by config
	for _, opt := range options {
		opt(&settings)
	}

	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	applyWill(opts, settings.will)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.handleReconnecting()
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		// Stop the background connect retry loop.
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect callback runs asynchronously; mark connected now so
	// callers can publish straight away.
	c.connected.Store(true)

	return c, nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.reconnects.Store(0)

	c.restoreSubscriptions()
	c.publishStatus(statusOnline, "")

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// handleReconnecting counts reconnect attempts and gives up once
// cfg.Reconnect.MaxAttempts is exceeded. Zero means retry forever.
func (c *Client) handleReconnecting() {
	attempt := c.reconnects.Add(1)
	logger := c.getLogger()

	limit := c.cfg.Reconnect.MaxAttempts
	if limit > 0 && int(attempt) > limit {
		if c.exhausted.CompareAndSwap(false, true) {
			if logger != nil {
				logger.Error("MQTT reconnect attempts exhausted",
					"client_id", c.cfg.Broker.ClientID,
					"attempts", limit,
				)
			}
			// Disconnect must not run on paho's reconnect goroutine.
			go c.client.Disconnect(0)
		}
		return
	}

	if logger != nil {
		logger.Warn("MQTT reconnecting",
			"client_id", c.cfg.Broker.ClientID,
			"attempt", attempt,
		)
	}
}

func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		// Errors surface on the next message or reconnect.
		c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
	}
}

// publishStatus publishes a retained client status without waiting.
func (c *Client) publishStatus(status, reason string) pahomqtt.Token {
	payload := buildStatusPayload(c.cfg.Broker.ClientID, status, reason)
	return c.client.Publish(Topics{}.ClientStatus(c.cfg.Broker.ClientID), byte(c.cfg.QoS), true, payload) //nolint:gosec // QoS validated by config
}

// Close publishes a graceful offline status and disconnects. Closing a
// client that never connected is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus(statusOffline, reasonGracefulShutdown).WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)

	return nil
}

// HealthCheck reports whether the broker connection is usable.
//
// Returns:
//   - error: nil if connected, ErrReconnectExhausted after giving up,
//     ErrNotConnected while reconnecting, or the context error
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if c.exhausted.Load() {
		return ErrReconnectExhausted
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// ReconnectAttempts returns the number of reconnect attempts since the last
// successful connection.
func (c *Client) ReconnectAttempts() int {
	return int(c.reconnects.Load())
}

// SetOnConnect sets a callback run on every (re)connect.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for handler failures and reconnects.
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

// wrapHandler adapts a MessageHandler to paho, recovering panics and
// logging returned errors.
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
