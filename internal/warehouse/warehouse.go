package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// Source is the read-only view of the active entity set.
type Source interface {
	Active() []*entity.Entity
}

// Handler is implemented by every warehouse plugin.
type Handler interface {
	// Loop exports the current entity values. It runs immediately after
	// Start and then every interval.
	Loop(ctx context.Context) error
}

// Starter is implemented by warehouses that connect to something first.
// A Start error drops the warehouse.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by warehouses that release resources on shutdown.
type Stopper interface {
	Stop(ctx context.Context) error
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

// Env is what a warehouse factory receives besides its configuration record.
type Env struct {
	AppName    string
	ClientName string
	Version    string

	Entities Source
	Logger   Logger
}

// Factory builds a warehouse handler from its configuration record.
type Factory func(rec config.Record, env Env) (Handler, error)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 10 * time.Second

// Warehouse wraps a plugin Handler with its polling loop.
type Warehouse struct {
	typeName string
	record   config.Record
	handler  Handler
	interval time.Duration
	logger   Logger
}

// New creates a warehouse. Zero interval selects DefaultInterval; a nil
// logger discards output.
func New(typeName string, rec config.Record, h Handler, interval time.Duration, logger Logger) *Warehouse {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Warehouse{
		typeName: typeName,
		record:   rec,
		handler:  h,
		interval: interval,
		logger:   logger,
	}
}

// ID returns "Type" or "Type@tag".
func (w *Warehouse) ID() string { return w.record.Identity() }

// Type returns the plugin type name.
func (w *Warehouse) Type() string { return w.typeName }

// Interval returns the loop interval.
func (w *Warehouse) Interval() time.Duration { return w.interval }

// Handler returns the plugin handler.
func (w *Warehouse) Handler() Handler { return w.handler }

// Start runs the handler's Start, if any, with panic recovery.
func (w *Warehouse) Start(ctx context.Context) error {
	s, ok := w.handler.(Starter)
	if !ok {
		return nil
	}
	if err := safeCall(ctx, s.Start); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStartFailed, w.ID(), err)
	}
	return nil
}

// Stop runs the handler's Stop, if any, with panic recovery.
func (w *Warehouse) Stop(ctx context.Context) error {
	s, ok := w.handler.(Stopper)
	if !ok {
		return nil
	}
	if err := safeCall(ctx, s.Stop); err != nil {
		return fmt.Errorf("stopping warehouse %s: %w", w.ID(), err)
	}
	return nil
}

// Run calls Loop immediately and then every interval until ctx is cancelled.
// Loop errors and panics are logged; they never end the loop.
func (w *Warehouse) Run(ctx context.Context) {
	w.loopOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.loopOnce(ctx)
		}
	}
}

func (w *Warehouse) loopOnce(ctx context.Context) {
	if err := safeCall(ctx, w.handler.Loop); err != nil {
		w.logger.Warn("warehouse loop failed", "warehouse", w.ID(), "error", err)
	}
}

func safeCall(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Sensors returns the sensors of all active entities that currently hold a
// value, in entity then registration order.
func Sensors(src Source) []*entity.Sensor {
	var out []*entity.Sensor
	for _, e := range src.Active() {
		for _, s := range e.Sensors() {
			if _, ok := s.Value(); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

// Commands returns the commands of all active entities.
func Commands(src Source) []*entity.Command {
	var out []*entity.Command
	for _, e := range src.Active() {
		out = append(out, e.Commands()...)
	}
	return out
}

// Data returns every sensor and command of all active entities.
func Data(src Source) []entity.Data {
	var out []entity.Data
	for _, e := range src.Active() {
		out = append(out, e.Data()...)
	}
	return out
}
