// Package uptime reports how long the agent process has been running.
package uptime

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// KeyUptime is the sensor key.
const KeyUptime = "uptime"

// Uptime publishes whole seconds since the entity was created, with the
// start time as an attribute.
type Uptime struct {
	started time.Time
	now     func() time.Time
}

// New builds an Uptime entity.
func New(_ config.Record, _ entity.Env) (entity.Handler, error) {
	return &Uptime{started: time.Now(), now: time.Now}, nil
}

func (u *Uptime) Initialize(_ context.Context, e *entity.Entity) error {
	_, err := e.RegisterSensor(KeyUptime,
		entity.WithUnit("s"),
		entity.WithPrecision(0),
		entity.WithExtraAttributes(),
		entity.WithPayload(map[string]any{
			"device_class": "duration",
			"state_class":  "total_increasing",
		}))
	return err
}

func (u *Uptime) Update(_ context.Context, e *entity.Entity) error {
	elapsed := u.now().Sub(u.started)
	if err := e.SetValue(KeyUptime, int64(elapsed/time.Second)); err != nil {
		return err
	}
	return e.SetExtraAttribute(KeyUptime, "started_at", u.started.UTC().Format(time.RFC3339))
}
