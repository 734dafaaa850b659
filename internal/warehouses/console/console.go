// Package console writes every sensor value to the agent log. Handy when
// bringing up a new entity without a broker around.
package console

import (
	"context"
	"errors"

	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-agent/internal/warehouse"
)

// Settings is the record configuration.
type Settings struct {
	// Attributes also logs extra attributes.
	Attributes bool `yaml:"attributes"`
}

// Console logs sensor values at info level.
type Console struct {
	settings Settings
	entities warehouse.Source
	logger   warehouse.Logger
}

// New builds a Console warehouse.
func New(rec config.Record, env warehouse.Env) (warehouse.Handler, error) {
	var s Settings
	if err := rec.Decode(&s); err != nil {
		return nil, err
	}
	if env.Logger == nil {
		return nil, ErrNoLogger
	}
	return &Console{settings: s, entities: env.Entities, logger: env.Logger}, nil
}

// ErrNoLogger is returned when the environment carries no logger to write to.
var ErrNoLogger = errors.New("console: no logger")

// Loop logs one line per sensor holding a value.
func (c *Console) Loop(context.Context) error {
	for _, s := range warehouse.Sensors(c.entities) {
		v, _ := s.Value()
		args := []any{"id", s.ID(), "value", warehouse.FormatValue(v)}
		if unit := s.Unit(); unit != "" {
			args = append(args, "unit", unit)
		}
		if c.settings.Attributes {
			if attrs := s.ExtraAttributes(); attrs != nil {
				args = append(args, "attributes", attrs)
			}
		}
		c.logger.Info("sensor value", args...)
	}
	return nil
}
