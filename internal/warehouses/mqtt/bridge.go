package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-agent/internal/discovery"
	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	transport "github.com/nerrad567/gray-logic-agent/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-agent/internal/warehouse"
)

// Transport is the part of *transport.Client a Bridge drives.
type Transport interface {
	SetLastWill(topic, offline string)
	SetOnConnect(callback func())
	Connect() error
	Close() error
	IsConnected() bool
	Publish(topic string, payload []byte, retained bool) error
	Subscribe(topic string, handler transport.MessageHandler) (*transport.Subscription, error)
}

// Settings is the broker part of an MQTT-based warehouse record. Broker
// keys sit at the top level of the record:
//
//	- type: MQTT
//	  broker: {host: localhost, port: 1883}
//	  auth: {username: agent}
//	  retain: true
type Settings struct {
	config.MQTTConfig `yaml:",inline"`

	// Retain publishes values as retained messages.
	Retain bool `yaml:"retain"`
}

// DecodeSettings reads broker settings from rec on top of
// config.DefaultMQTT, then applies GLAGENT_MQTT_* overrides and validates.
func DecodeSettings(rec config.Record) (Settings, error) {
	s := Settings{MQTTConfig: config.DefaultMQTT()}
	if err := rec.Decode(&s); err != nil {
		return Settings{}, err
	}
	s.ApplyEnvOverrides()
	if err := s.MQTTConfig.Validate(); err != nil {
		return Settings{}, fmt.Errorf("%s: %w", rec.Identity(), err)
	}
	return s, nil
}

// NewTransport creates the broker client for a warehouse. Client ids default
// to "<app>-<random>".
func NewTransport(s Settings, appName string, logger warehouse.Logger) *transport.Client {
	cfg := s.MQTTConfig
	if cfg.Broker.ClientID == "" {
		cfg.Broker.ClientID = transport.DefaultClientID(appName)
	}
	return transport.New(cfg, logger)
}

// Bridge publishes entity data under one topic tree and routes incoming
// command messages to entity commands.
//
// On every (re)connection it runs the registered hooks, publishes "online"
// to the availability topic and republishes every sensor. The broker
// publishes "offline" through the last will when the connection drops;
// Stop publishes it explicitly.
type Bridge struct {
	topics    discovery.Topics
	transport Transport
	entities  warehouse.Source
	logger    warehouse.Logger
	retain    bool

	mu    sync.Mutex
	ctx   context.Context
	hooks []func(ctx context.Context) error
}

// NewBridge creates a bridge. A nil logger discards output.
func NewBridge(topics discovery.Topics, t Transport, entities warehouse.Source, logger warehouse.Logger, retain bool) *Bridge {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bridge{
		topics:    topics,
		transport: t,
		entities:  entities,
		logger:    logger,
		retain:    retain,
		ctx:       context.Background(),
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Topics returns the bridge's topic builder.
func (b *Bridge) Topics() discovery.Topics { return b.topics }

// Logger returns the bridge's logger, never nil.
func (b *Bridge) Logger() warehouse.Logger { return b.logger }

// PublishRetained publishes a retained message on the bridge's connection.
func (b *Bridge) PublishRetained(topic string, payload []byte) error {
	return b.transport.Publish(topic, payload, true)
}

// OnConnect registers fn to run on every (re)connection, before the
// availability message. Must be called before Start.
func (b *Bridge) OnConnect(fn func(ctx context.Context) error) {
	b.hooks = append(b.hooks, fn)
}

// Start sets the last will, subscribes every command topic and begins
// connecting. Subscriptions made here are replayed by the transport after
// each reconnect.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	b.ctx = ctx
	b.mu.Unlock()

	b.transport.SetLastWill(b.topics.Availability(), discovery.PayloadNotAvailable)
	b.transport.SetOnConnect(b.handleConnect)

	for _, cmd := range warehouse.Commands(b.entities) {
		topic := b.topics.Value(cmd.ID())
		if _, err := b.transport.Subscribe(topic, b.commandHandler(cmd)); err != nil {
			return fmt.Errorf("subscribing %s: %w", topic, err)
		}
	}

	return b.transport.Connect()
}

// Stop publishes "offline" and disconnects.
func (b *Bridge) Stop(context.Context) error {
	return b.transport.Close()
}

// Loop publishes every sensor that has a value, changed or not, so
// consumers relying on expire_after keep seeing fresh states. Nothing is
// published while disconnected.
func (b *Bridge) Loop(context.Context) error {
	if !b.transport.IsConnected() {
		b.logger.Debug("broker not connected, skipping publish", "base", b.topics.Base())
		return nil
	}
	return b.publishAll()
}

func (b *Bridge) context() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

func (b *Bridge) handleConnect() {
	ctx := b.context()
	for _, hook := range b.hooks {
		if err := hook(ctx); err != nil {
			b.logger.Warn("connect hook failed", "base", b.topics.Base(), "error", err)
		}
	}

	if err := b.transport.Publish(b.topics.Availability(), []byte(discovery.PayloadAvailable), true); err != nil {
		b.logger.Warn("publishing availability failed", "topic", b.topics.Availability(), "error", err)
	}

	if err := b.publishAll(); err != nil {
		b.logger.Warn("republishing values failed", "base", b.topics.Base(), "error", err)
	}
}

func (b *Bridge) publishAll() error {
	var errs []error
	for _, s := range warehouse.Sensors(b.entities) {
		if err := b.PublishSensor(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishSensor publishes a sensor's value and, when it has any, its extra
// attributes as a JSON object.
func (b *Bridge) PublishSensor(s *entity.Sensor) error {
	v, ok := s.Value()
	if !ok {
		return nil
	}
	if err := b.transport.Publish(b.topics.Value(s.ID()), []byte(warehouse.FormatValue(v)), b.retain); err != nil {
		return fmt.Errorf("publishing %s: %w", s.ID(), err)
	}

	attrs := s.ExtraAttributes()
	if !s.SupportsExtraAttributes() || attrs == nil {
		return nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encoding %s attributes: %w", s.ID(), err)
	}
	if err := b.transport.Publish(b.topics.Attributes(s.ID()), data, b.retain); err != nil {
		return fmt.Errorf("publishing %s attributes: %w", s.ID(), err)
	}
	return nil
}

// commandHandler invokes cmd and republishes its connected sensors so the
// new state is visible without waiting for the next loop.
func (b *Bridge) commandHandler(cmd *entity.Command) transport.MessageHandler {
	return func(_ string, payload []byte) error {
		if err := cmd.Invoke(b.context(), payload); err != nil {
			return err
		}
		for _, s := range cmd.Connected() {
			if err := b.PublishSensor(s); err != nil {
				return err
			}
		}
		return nil
	}
}
