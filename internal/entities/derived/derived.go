// Package derived republishes a scaled copy of another entity's sensor.
//
// It exists mostly to exercise dependency entities: the source is pulled
// lazily through Entity.Ensure, so a Derived entity works no matter which
// order the scheduler initializes entities in.
package derived

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// KeyValue is the sensor key.
const KeyValue = "value"

var (
	// ErrInvalidSource is returned for missing, self-referencing or
	// unresolvable sources.
	ErrInvalidSource = errors.New("derived: invalid source")

	// ErrNotNumeric is returned when the source value cannot be scaled.
	ErrNotNumeric = errors.New("derived: source value is not numeric")
)

// Source names the sensor to read.
type Source struct {
	Type string `yaml:"type"`
	Tag  string `yaml:"tag"`
	Key  string `yaml:"key"`
}

// Settings is the record configuration.
//
//	- type: Derived
//	  tag: uptime minutes
//	  source: {type: Uptime, key: uptime}
//	  scale: 0.016667
//	  unit: min
//	  precision: 1
type Settings struct {
	Source    Source  `yaml:"source"`
	Scale     float64 `yaml:"scale"`
	Offset    float64 `yaml:"offset"`
	Unit      string  `yaml:"unit"`
	Precision *int    `yaml:"precision"`
}

// Derived computes value = source * scale + offset.
type Derived struct {
	settings Settings
	lookup   func(typeName, tag string) (*entity.Entity, bool)
	source   *entity.Entity
}

// New builds a Derived entity.
func New(rec config.Record, env entity.Env) (entity.Handler, error) {
	s := Settings{Scale: 1}
	if err := rec.Decode(&s); err != nil {
		return nil, err
	}

	switch {
	case s.Source.Type == "" || s.Source.Key == "":
		return nil, fmt.Errorf("%w: %s: source type and key are required", ErrInvalidSource, rec.Identity())
	case s.Source.Type == rec.Type && s.Source.Tag == rec.Tag:
		return nil, fmt.Errorf("%w: %s reads itself", ErrInvalidSource, rec.Identity())
	case env.Lookup == nil:
		return nil, fmt.Errorf("%w: %s: entity lookup unavailable", ErrInvalidSource, rec.Identity())
	}

	return &Derived{settings: s, lookup: env.Lookup}, nil
}

// Dependencies reports the source entity so dependency cycles are refused
// when entities are added.
func (d *Derived) Dependencies() []entity.Ref {
	return []entity.Ref{{Type: d.settings.Source.Type, Tag: d.settings.Source.Tag}}
}

func (d *Derived) Initialize(_ context.Context, e *entity.Entity) error {
	src, ok := d.lookup(d.settings.Source.Type, d.settings.Source.Tag)
	if !ok {
		return fmt.Errorf("%w: no entity %s", ErrInvalidSource, sourceID(d.settings.Source))
	}
	d.source = src

	var opts []entity.DataOption
	if d.settings.Unit != "" {
		opts = append(opts, entity.WithUnit(d.settings.Unit))
	}
	if d.settings.Precision != nil {
		opts = append(opts, entity.WithPrecision(*d.settings.Precision))
	}
	_, err := e.RegisterSensor(KeyValue, opts...)
	return err
}

func (d *Derived) Update(ctx context.Context, e *entity.Entity) error {
	if err := d.source.Ensure(ctx); err != nil {
		return err
	}

	raw, err := d.source.GetValue(d.settings.Source.Key)
	if err != nil {
		return err
	}

	f, err := toFloat(raw)
	if err != nil {
		return err
	}
	return e.SetValue(KeyValue, f*d.settings.Scale+d.settings.Offset)
}

func sourceID(s Source) string {
	return entity.Ref{Type: s.Type, Tag: s.Tag}.ID()
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNotNumeric, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %T", ErrNotNumeric, v)
	}
}
