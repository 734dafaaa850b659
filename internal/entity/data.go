package entity

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// Data is a Sensor or a Command owned by an Entity.
type Data interface {
	// Key is unique within the owning entity.
	Key() string
	// ID is the bus-wide identity: entityID + "." + key.
	ID() string
	// Entity returns the owner.
	Entity() *Entity
	// Payload returns the inline discovery payload, nil when none was set.
	Payload() map[string]any
}

type dataOptions struct {
	unit       string
	precision  int
	payload    map[string]any
	connected  []*Sensor
	attributes bool
}

// DataOption configures a Sensor or Command at registration.
type DataOption func(*dataOptions)

// WithUnit sets the unit hint carried to sinks (e.g. "s", "B").
func WithUnit(unit string) DataOption {
	return func(o *dataOptions) { o.unit = unit }
}

// WithPrecision sets the number of decimals sinks should display.
func WithPrecision(digits int) DataOption {
	return func(o *dataOptions) { o.precision = digits }
}

// WithPayload sets inline discovery payload fields for this data.
func WithPayload(payload map[string]any) DataOption {
	return func(o *dataOptions) { o.payload = maps.Clone(payload) }
}

// WithExtraAttributes declares that the sensor publishes extra attributes.
func WithExtraAttributes() DataOption {
	return func(o *dataOptions) { o.attributes = true }
}

// WithConnectedSensors makes a command stateful: sinks republish the given
// sensors right after the command runs. Only valid for commands.
func WithConnectedSensors(sensors ...*Sensor) DataOption {
	return func(o *dataOptions) { o.connected = append(o.connected, sensors...) }
}

type sample struct {
	value any
	at    time.Time
}

// Sensor is a readable value published by an entity.
//
// The value is unset until the first SetValue and is swapped atomically, so
// readers observe either the previous or the new value.
type Sensor struct {
	entity     *Entity
	key        string
	unit       string
	precision  int
	payload    map[string]any
	attributes bool

	value atomic.Pointer[sample]

	attrMu sync.Mutex
	attrs  atomic.Pointer[map[string]any]
}

func (s *Sensor) Key() string             { return s.key }
func (s *Sensor) ID() string              { return s.entity.ID() + "." + s.key }
func (s *Sensor) Entity() *Entity         { return s.entity }
func (s *Sensor) Payload() map[string]any { return s.payload }

// Unit returns the unit hint, empty when none.
func (s *Sensor) Unit() string { return s.unit }

// Precision returns the display precision and whether one was set.
func (s *Sensor) Precision() (int, bool) { return s.precision, s.precision >= 0 }

// SetValue stores v and its timestamp.
func (s *Sensor) SetValue(v any) {
	s.value.Store(&sample{value: v, at: time.Now()})
}

// Value returns the last value and whether one was ever set.
func (s *Sensor) Value() (any, bool) {
	smp := s.value.Load()
	if smp == nil {
		return nil, false
	}
	return smp.value, true
}

// UpdatedAt returns when the value was last set, zero when never.
func (s *Sensor) UpdatedAt() time.Time {
	if smp := s.value.Load(); smp != nil {
		return smp.at
	}
	return time.Time{}
}

// SetExtraAttribute sets one extra attribute.
func (s *Sensor) SetExtraAttribute(name string, v any) {
	s.attrMu.Lock()
	defer s.attrMu.Unlock()

	next := map[string]any{}
	if cur := s.attrs.Load(); cur != nil {
		next = maps.Clone(*cur)
	}
	next[name] = v
	s.attrs.Store(&next)
}

// ExtraAttributes returns a copy of the extra attributes, nil when none were set.
func (s *Sensor) ExtraAttributes() map[string]any {
	cur := s.attrs.Load()
	if cur == nil {
		return nil
	}
	return maps.Clone(*cur)
}

// SupportsExtraAttributes reports whether the sensor declared or set attributes.
func (s *Sensor) SupportsExtraAttributes() bool {
	return s.attributes || s.attrs.Load() != nil
}

// CommandFunc handles a command payload received from a sink.
type CommandFunc func(ctx context.Context, payload []byte) error

// Command is an action exposed by an entity. A command with connected
// sensors is stateful.
type Command struct {
	entity    *Entity
	key       string
	fn        CommandFunc
	connected []*Sensor
	payload   map[string]any
}

func (c *Command) Key() string             { return c.key }
func (c *Command) ID() string              { return c.entity.ID() + "." + c.key }
func (c *Command) Entity() *Entity         { return c.entity }
func (c *Command) Payload() map[string]any { return c.payload }

// Connected returns the sensors this command drives.
func (c *Command) Connected() []*Sensor {
	return c.connected
}

// Stateful reports whether the command has at least one connected sensor.
func (c *Command) Stateful() bool {
	return len(c.connected) > 0
}

// Invoke runs the command callback. Panics are converted to ErrCommandFailed.
func (c *Command) Invoke(ctx context.Context, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrCommandFailed, c.ID(), r)
		}
	}()

	if err := c.fn(ctx, payload); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCommandFailed, c.ID(), err)
	}
	return nil
}
