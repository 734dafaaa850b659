// Package virtualswitch provides an in-memory ON/OFF switch, useful for
// driving automations from a dashboard without any hardware behind it.
package virtualswitch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// Data keys.
const (
	KeyState = "state"
	KeySet   = "set"
)

// PayloadToggle flips the current state.
const PayloadToggle = "TOGGLE"

// ErrInvalidPayload is returned for command payloads other than ON, OFF and TOGGLE.
var ErrInvalidPayload = errors.New("virtualswitch: invalid payload")

// Settings is the record configuration.
type Settings struct {
	Initial string `yaml:"initial"`
}

// VirtualSwitch exposes a state sensor and a stateful "set" command.
type VirtualSwitch struct {
	initial string
	state   *entity.Sensor
}

// New builds a VirtualSwitch entity.
//
// Record options:
//   - initial: ON or OFF (default OFF)
func New(rec config.Record, _ entity.Env) (entity.Handler, error) {
	s := Settings{Initial: entity.StateOff}
	if err := rec.Decode(&s); err != nil {
		return nil, err
	}

	initial, err := parseState(s.Initial, entity.StateOff)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rec.Identity(), err)
	}
	return &VirtualSwitch{initial: initial}, nil
}

func (v *VirtualSwitch) Initialize(_ context.Context, e *entity.Entity) error {
	state, err := e.RegisterSensor(KeyState, entity.WithPayload(map[string]any{"icon": "mdi:toggle-switch"}))
	if err != nil {
		return err
	}
	v.state = state
	state.SetValue(v.initial)

	_, err = e.RegisterCommand(KeySet, v.set, entity.WithConnectedSensors(state))
	return err
}

// Update has nothing to poll; the state only changes through commands.
func (v *VirtualSwitch) Update(context.Context, *entity.Entity) error {
	return nil
}

func (v *VirtualSwitch) set(_ context.Context, payload []byte) error {
	value, _ := v.state.Value()
	current, _ := value.(string)
	next, err := parseState(string(payload), current)
	if err != nil {
		return err
	}
	v.state.SetValue(next)
	return nil
}

// parseState maps a payload to ON or OFF. TOGGLE inverts current.
func parseState(payload, current string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case entity.StateOn:
		return entity.StateOn, nil
	case entity.StateOff:
		return entity.StateOff, nil
	case PayloadToggle:
		if current == entity.StateOn {
			return entity.StateOff, nil
		}
		return entity.StateOn, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPayload, payload)
	}
}
