package entity

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// On/off payloads for stateful commands.
const (
	StateOn  = "ON"
	StateOff = "OFF"
)

// State is the entity lifecycle state.
type State int32

// Lifecycle states. Created → Initializing → Active, or → Failed when
// Initialize errors or panics. Failed is terminal.
const (
	StateCreated State = iota
	StateInitializing
	StateActive
	StateFailed
)

// String returns the state name used in logs and the REST API.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Handler is implemented by every entity plugin.
type Handler interface {
	// Initialize registers sensors and commands. It runs exactly once.
	Initialize(ctx context.Context, e *Entity) error
	// Update refreshes sensor values. It runs every poll interval.
	Update(ctx context.Context, e *Entity) error
}

// Env is what a plugin factory receives besides its configuration record.
type Env struct {
	AppName    string
	ClientName string
	Version    string

	// Lookup finds another entity by type and tag, for entities that read
	// values produced elsewhere. Nil when lookups are unavailable.
	Lookup func(typeName, tag string) (*Entity, bool)
}

// Ref names an entity by type and tag.
type Ref struct {
	Type string
	Tag  string
}

// ID returns "Type" or "Type@tag".
func (r Ref) ID() string {
	if r.Tag == "" {
		return r.Type
	}
	return r.Type + "@" + r.Tag
}

// Dependent is implemented by handlers that read other entities through
// Ensure. The scheduler uses it to refuse dependency cycles.
type Dependent interface {
	Dependencies() []Ref
}

// Factory builds an entity handler from its configuration record.
type Factory func(rec config.Record, env Env) (Handler, error)

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

// Option configures an Entity.
type Option func(*Entity)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(e *Entity) {
		if d > 0 {
			e.interval = d
		}
	}
}

// WithLogger sets the logger used for lifecycle failures.
func WithLogger(l Logger) Option {
	return func(e *Entity) {
		if l != nil {
			e.logger = l
		}
	}
}

// DefaultInterval is used when no interval option is given.
const DefaultInterval = 10 * time.Second

// Entity is a data source instantiated from a configuration record.
//
// Thread Safety:
//   - Lifecycle calls (CallInitialize, CallUpdate, Ensure) are serialized per
//     entity so a dependent's lazy pull never overlaps the entity's own update.
//     Waiting for the serialization ends when the call's context is done.
//   - Sensor values may be read concurrently with updates.
type Entity struct {
	typeName string
	tag      string
	record   config.Record
	handler  Handler
	interval time.Duration
	logger   Logger

	lifecycle  chan struct{}
	state      atomic.Int32
	updated    atomic.Bool
	lastUpdate atomic.Pointer[time.Time]

	dataMu  sync.RWMutex
	data    []Data
	byKey   map[string]Data
	regOpen bool
	payload map[string]any
}

// New creates an entity in the Created state.
func New(typeName string, rec config.Record, h Handler, opts ...Option) *Entity {
	e := &Entity{
		typeName:  typeName,
		tag:       rec.Tag,
		record:    rec,
		handler:   h,
		interval:  DefaultInterval,
		logger:    noopLogger{},
		byKey:     make(map[string]Data),
		lifecycle: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Type returns the plugin type name.
func (e *Entity) Type() string { return e.typeName }

// Tag returns the instance tag, empty when untagged.
func (e *Entity) Tag() string { return e.tag }

// Record returns the configuration record the entity was built from.
func (e *Entity) Record() config.Record { return e.record }

// Interval returns the poll interval.
func (e *Entity) Interval() time.Duration { return e.interval }

// Logger returns the entity's logger.
func (e *Entity) Logger() Logger { return e.logger }

// ID returns "Type" or "Type@tag".
func (e *Entity) ID() string {
	return e.Ref().ID()
}

// Ref returns the entity's type and tag.
func (e *Entity) Ref() Ref {
	return Ref{Type: e.typeName, Tag: e.tag}
}

// Dependencies returns the entities the handler reads, nil when it reads
// none.
func (e *Entity) Dependencies() []Ref {
	if d, ok := e.handler.(Dependent); ok {
		return d.Dependencies()
	}
	return nil
}

// DisplayName returns "Type" or "Type @tag".
func (e *Entity) DisplayName() string {
	if e.tag == "" {
		return e.typeName
	}
	return e.typeName + " @" + e.tag
}

// State returns the lifecycle state.
func (e *Entity) State() State {
	return State(e.state.Load())
}

// LastUpdate returns when Update last succeeded, zero when never.
func (e *Entity) LastUpdate() time.Time {
	if t := e.lastUpdate.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

// CallInitialize runs the handler's Initialize once.
//
// On success the entity becomes Active and true is returned. An error or
// panic is logged and leaves the entity Failed. Calling it again returns the
// outcome of the first call.
func (e *Entity) CallInitialize(ctx context.Context) bool {
	if e.lock(ctx) != nil {
		return e.State() == StateActive
	}
	defer e.unlock()
	return e.initializeLocked(ctx)
}

func (e *Entity) initializeLocked(ctx context.Context) bool {
	switch e.State() {
	case StateActive:
		return true
	case StateFailed:
		return false
	}

	e.state.Store(int32(StateInitializing))
	e.setRegistration(true)
	err := e.safeCall(ctx, e.handler.Initialize)
	e.setRegistration(false)

	if err != nil {
		e.state.Store(int32(StateFailed))
		e.logger.Error("entity initialize failed", "entity", e.ID(), "error", err)
		return false
	}

	e.state.Store(int32(StateActive))
	e.logger.Debug("entity initialized", "entity", e.ID(), "data", len(e.Data()))
	return true
}

// CallUpdate runs the handler's Update.
//
// Errors and panics are logged and the entity stays Active; the next poll
// tries again. Returns false when the update did not succeed, the entity
// is not Active or ctx ended before the update could start.
func (e *Entity) CallUpdate(ctx context.Context) bool {
	if e.lock(ctx) != nil {
		return false
	}
	defer e.unlock()
	return e.updateLocked(ctx)
}

func (e *Entity) updateLocked(ctx context.Context) bool {
	if e.State() != StateActive {
		return false
	}

	if err := e.safeCall(ctx, e.handler.Update); err != nil {
		e.logger.Warn("entity update failed", "entity", e.ID(), "error", err)
		return false
	}

	now := time.Now()
	e.lastUpdate.Store(&now)
	e.updated.Store(true)
	return true
}

// Ensure makes the entity usable by a dependent entity: it initializes a
// Created entity and runs a first update if none has happened yet.
//
// The dependency graph must be acyclic; an entity must not Ensure itself.
// Handlers declare their dependencies through Dependent so cycles are
// refused before they run. Should one slip through, the waiting Ensure
// returns once ctx is done.
//
// Returns:
//   - error: ErrInitializeFailed when the entity is (or becomes) Failed,
//     ErrLifecycleBusy when ctx ended while another lifecycle call ran
func (e *Entity) Ensure(ctx context.Context) error {
	if err := e.lock(ctx); err != nil {
		return err
	}
	defer e.unlock()

	if !e.initializeLocked(ctx) {
		return fmt.Errorf("%w: %s", ErrInitializeFailed, e.ID())
	}
	if !e.updated.Load() {
		e.updateLocked(ctx)
	}
	return nil
}

// lock acquires the lifecycle slot or gives up when ctx is done.
func (e *Entity) lock(ctx context.Context) error {
	select {
	case e.lifecycle <- struct{}{}:
		return nil
	default:
	}
	select {
	case e.lifecycle <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrLifecycleBusy, e.ID(), ctx.Err())
	}
}

func (e *Entity) unlock() { <-e.lifecycle }

// safeCall invokes fn with panic recovery.
func (e *Entity) safeCall(ctx context.Context, fn func(context.Context, *Entity) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, e)
}

func (e *Entity) setRegistration(open bool) {
	e.dataMu.Lock()
	e.regOpen = open
	e.dataMu.Unlock()
}

// register adds d under its key while registration is open.
func (e *Entity) register(d Data) error {
	if d.Key() == "" {
		return fmt.Errorf("%w: empty key on %s", ErrInvalidKey, e.ID())
	}

	e.dataMu.Lock()
	defer e.dataMu.Unlock()

	if !e.regOpen {
		return fmt.Errorf("%w: %s", ErrRegistrationClosed, e.ID()+"."+d.Key())
	}
	if _, exists := e.byKey[d.Key()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, e.ID()+"."+d.Key())
	}
	e.byKey[d.Key()] = d
	e.data = append(e.data, d)
	return nil
}

func collect(opts []DataOption) dataOptions {
	o := dataOptions{precision: -1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RegisterSensor registers a sensor. Only valid during Initialize.
func (e *Entity) RegisterSensor(key string, opts ...DataOption) (*Sensor, error) {
	o := collect(opts)
	if len(o.connected) > 0 {
		return nil, fmt.Errorf("%w: connected sensors on sensor %s.%s", ErrInvalidKey, e.ID(), key)
	}

	s := &Sensor{
		entity:     e,
		key:        key,
		unit:       o.unit,
		precision:  o.precision,
		payload:    o.payload,
		attributes: o.attributes,
	}
	if err := e.register(s); err != nil {
		return nil, err
	}
	return s, nil
}

// RegisterCommand registers a command. Only valid during Initialize.
// Connected sensors must belong to this entity.
func (e *Entity) RegisterCommand(key string, fn CommandFunc, opts ...DataOption) (*Command, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil callback for %s.%s", ErrInvalidKey, e.ID(), key)
	}
	o := collect(opts)
	for _, s := range o.connected {
		if s == nil || s.entity != e {
			return nil, fmt.Errorf("%w: command %s.%s connects a foreign sensor", ErrUnknownKey, e.ID(), key)
		}
	}

	c := &Command{
		entity:    e,
		key:       key,
		fn:        fn,
		connected: o.connected,
		payload:   o.payload,
	}
	if err := e.register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// lookup returns the data registered under key.
func (e *Entity) lookup(key string) (Data, error) {
	e.dataMu.RLock()
	d, ok := e.byKey[key]
	e.dataMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownKey, e.ID(), key)
	}
	return d, nil
}

// Sensor returns the sensor registered under key.
func (e *Entity) Sensor(key string) (*Sensor, error) {
	d, err := e.lookup(key)
	if err != nil {
		return nil, err
	}
	s, ok := d.(*Sensor)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not a sensor", ErrUnknownKey, e.ID(), key)
	}
	return s, nil
}

// Command returns the command registered under key.
func (e *Entity) Command(key string) (*Command, error) {
	d, err := e.lookup(key)
	if err != nil {
		return nil, err
	}
	c, ok := d.(*Command)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s is not a command", ErrUnknownKey, e.ID(), key)
	}
	return c, nil
}

// SetValue sets the value of the sensor registered under key.
func (e *Entity) SetValue(key string, v any) error {
	s, err := e.Sensor(key)
	if err != nil {
		return err
	}
	s.SetValue(v)
	return nil
}

// SetExtraAttribute sets an extra attribute on the sensor registered under key.
func (e *Entity) SetExtraAttribute(key, name string, v any) error {
	s, err := e.Sensor(key)
	if err != nil {
		return err
	}
	s.SetExtraAttribute(name, v)
	return nil
}

// GetValue returns the value of the sensor registered under key.
//
// Returns:
//   - error: ErrUnknownKey for unregistered keys, ErrNoValue before the first write
func (e *Entity) GetValue(key string) (any, error) {
	s, err := e.Sensor(key)
	if err != nil {
		return nil, err
	}
	v, ok := s.Value()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoValue, s.ID())
	}
	return v, nil
}

// Data returns all registered sensors and commands in registration order.
func (e *Entity) Data() []Data {
	e.dataMu.RLock()
	defer e.dataMu.RUnlock()
	out := make([]Data, len(e.data))
	copy(out, e.data)
	return out
}

// Sensors returns the registered sensors in registration order.
func (e *Entity) Sensors() []*Sensor {
	var out []*Sensor
	for _, d := range e.Data() {
		if s, ok := d.(*Sensor); ok {
			out = append(out, s)
		}
	}
	return out
}

// Commands returns the registered commands in registration order.
func (e *Entity) Commands() []*Command {
	var out []*Command
	for _, d := range e.Data() {
		if c, ok := d.(*Command); ok {
			out = append(out, c)
		}
	}
	return out
}

// SetPayload sets inline discovery payload fields applied to all of the
// entity's data.
func (e *Entity) SetPayload(payload map[string]any) {
	e.dataMu.Lock()
	e.payload = maps.Clone(payload)
	e.dataMu.Unlock()
}

// Payload returns the entity-level inline payload, nil when none.
func (e *Entity) Payload() map[string]any {
	e.dataMu.RLock()
	defer e.dataMu.RUnlock()
	return e.payload
}
