package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// State is the transport connection state.
type State int32

// Connection states. The transport cycles
// Disconnected → Connecting → Connected → Disconnected.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Client wraps paho.mqtt.golang with reconnect-safe subscription bookkeeping.
//
// Broker-side subscriptions do not survive a disconnect (clean sessions), so
// the client keeps its own list and re-converges it on every connect:
//   - entering Connected subscribes every Subscription not marked subscribed
//   - entering Disconnected marks every Subscription not subscribed
//
// Resubscribe passes are serialized, so a Subscription is subscribed exactly
// once per connection even when a reconnect races a new Subscribe call.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	options *pahomqtt.ClientOptions
	cfg     config.MQTTConfig

	// newClient builds the underlying paho client; replaced in tests.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	// subscriptions in registration order. Guarded by subMu; dispatch only
	// takes the read lock and no token is ever awaited while it is held.
	subscriptions []*Subscription
	subMu         sync.RWMutex

	// resubMu serializes resubscribe passes.
	resubMu sync.Mutex

	state atomic.Int32

	// epoch counts successful connections. A Subscription is subscribed only
	// when its recorded epoch equals the current one.
	epoch atomic.Uint64

	willTopic   string
	willPayload string

	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on paho's goroutines with ordering disabled, so they may
// publish. Returned errors are logged and never stop the transport.
type MessageHandler func(topic string, payload []byte) error

// New creates an unconnected client. A nil logger discards output.
// When cfg.Broker.ClientID is empty a random id is generated.
func New(cfg config.MQTTConfig, logger Logger) *Client {
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = DefaultClientID("glagent")
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Client{
		cfg:       cfg,
		newClient: pahomqtt.NewClient,
		logger:    logger,
	}
}

// SetLastWill registers the message the broker publishes (retained) if the
// client drops uncleanly. Must be called before Connect.
//
// Close publishes the same payload itself before disconnecting, so
// subscribers see one value for clean and unclean shutdowns.
func (c *Client) SetLastWill(topic, offline string) {
	c.willTopic = topic
	c.willPayload = offline
}

// Connect starts connecting to the broker and returns immediately.
//
// paho retries the initial connection and any later reconnection with
// exponential backoff; the state machine advances through the handlers
// registered here.
//
// Returns:
//   - error: ErrConnectionFailed if the client was already started
func (c *Client) Connect() error {
	if c.client != nil {
		return fmt.Errorf("%w: already started", ErrConnectionFailed)
	}

	opts := buildClientOptions(c.cfg)
	if c.willTopic != "" {
		configureLWT(opts, c.willTopic, c.willPayload, byte(c.cfg.QoS))
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		c.setState(StateConnecting)
		c.getLogger().Debug("reconnecting to MQTT broker", "broker", brokerURL(c.cfg))
	})

	c.options = opts
	c.client = c.newClient(opts)
	c.setState(StateConnecting)

	token := c.client.Connect()
	go func() {
		// With ConnectRetry enabled the token only completes once connected
		// or when Disconnect aborts the retry loop.
		token.Wait()
		if err := token.Error(); err != nil {
			c.getLogger().Warn("MQTT connect attempt ended", "broker", brokerURL(c.cfg), "error", err)
		}
	}()

	return nil
}

// handleConnect is called on every successful (re)connection.
func (c *Client) handleConnect() {
	c.epoch.Add(1)
	c.setState(StateConnected)
	c.getLogger().Info("connected to MQTT broker", "broker", brokerURL(c.cfg))

	c.resubscribe()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.setState(StateDisconnected)

	c.subMu.RLock()
	for _, sub := range c.subscriptions {
		sub.epoch.Store(0)
	}
	c.subMu.RUnlock()

	c.getLogger().Warn("MQTT connection lost", "broker", brokerURL(c.cfg), "error", err)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// resubscribe subscribes every registered Subscription not marked subscribed.
func (c *Client) resubscribe() {
	c.resubMu.Lock()
	defer c.resubMu.Unlock()

	epoch := c.epoch.Load()

	c.subMu.RLock()
	pending := make([]*Subscription, 0, len(c.subscriptions))
	for _, sub := range c.subscriptions {
		if !c.isSubscribed(sub) {
			pending = append(pending, sub)
		}
	}
	c.subMu.RUnlock()

	for _, sub := range pending {
		if c.State() != StateConnected || c.epoch.Load() != epoch {
			return
		}
		if sub.removed.Load() {
			continue
		}
		if err := c.subscribeBroker(sub.topic); err != nil {
			c.getLogger().Warn("MQTT resubscribe failed", "topic", sub.topic, "error", err)
			continue
		}
		sub.epoch.Store(epoch)
	}
}

// isSubscribed reports whether sub was subscribed on the current connection.
func (c *Client) isSubscribed(sub *Subscription) bool {
	e := sub.epoch.Load()
	return e != 0 && e == c.epoch.Load()
}

// subscribeBroker issues one broker subscribe and waits for the ack.
func (c *Client) subscribeBroker(topic string) error {
	token := c.client.Subscribe(topic, byte(c.cfg.QoS), c.dispatch)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// dispatch routes an inbound message to every Subscription whose topic
// equals the message topic exactly.
func (c *Client) dispatch(_ pahomqtt.Client, msg pahomqtt.Message) {
	topic := msg.Topic()

	c.subMu.RLock()
	var handlers []MessageHandler
	for _, sub := range c.subscriptions {
		if sub.topic == topic {
			handlers = append(handlers, sub.handler)
		}
	}
	c.subMu.RUnlock()

	if len(handlers) == 0 {
		c.getLogger().Debug("MQTT message without subscription", "topic", topic)
		return
	}

	for _, h := range handlers {
		c.invoke(h, topic, msg.Payload())
	}
}

// invoke runs a handler with panic recovery and error logging.
func (c *Client) invoke(handler MessageHandler, topic string, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			c.getLogger().Error("MQTT handler panic recovered",
				"topic", topic,
				"panic", r,
			)
		}
	}()

	if err := handler(topic, payload); err != nil {
		c.getLogger().Warn("MQTT handler returned error",
			"topic", topic,
			"error", err,
		)
	}
}

// Close gracefully disconnects from the MQTT broker.
//
// It performs:
//  1. Publishes the last-will payload (retained) while still connected
//  2. Disconnects with a quiesce period for pending operations
//
// Returns:
//   - error: Always nil; a closed or never-connected client is not an error
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() && c.willTopic != "" {
		token := c.client.Publish(c.willTopic, byte(c.cfg.QoS), true, c.willPayload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setState(StateDisconnected)

	return nil
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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

// IsConnected returns true while the client is in the Connected state.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected && c.client != nil && c.client.IsConnected()
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// SetOnConnect sets a callback invoked after each (re)connection, once
// subscriptions have been restored.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger replaces the logger. A nil logger discards output.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// ClientID returns the id presented to the broker.
func (c *Client) ClientID() string {
	return c.cfg.Broker.ClientID
}
