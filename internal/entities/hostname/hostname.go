// Package hostname reports the machine's host name.
package hostname

import (
	"context"
	"fmt"
	"os"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// KeyHostname is the sensor key.
const KeyHostname = "hostname"

type Hostname struct {
	lookup func() (string, error)
}

// New builds a Hostname entity.
func New(_ config.Record, _ entity.Env) (entity.Handler, error) {
	return &Hostname{lookup: os.Hostname}, nil
}

func (h *Hostname) Initialize(_ context.Context, e *entity.Entity) error {
	_, err := e.RegisterSensor(KeyHostname, entity.WithPayload(map[string]any{"icon": "mdi:server"}))
	return err
}

func (h *Hostname) Update(_ context.Context, e *entity.Entity) error {
	name, err := h.lookup()
	if err != nil {
		return fmt.Errorf("reading hostname: %w", err)
	}
	return e.SetValue(KeyHostname, name)
}
