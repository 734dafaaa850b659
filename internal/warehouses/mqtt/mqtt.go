// Package mqtt publishes entity values to a broker under
// {app}/{client}/... and accepts commands on the matching command topics.
//
// The Bridge type is shared with the homeassistant warehouse, which adds
// discovery on top of the same topic handling.
package mqtt

import (
	"github.com/nerrad567/gray-logic-agent/internal/discovery"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-agent/internal/warehouse"
)

// MQTT is the plain MQTT warehouse. Its topics carry no suffix.
type MQTT struct {
	*Bridge
}

// New builds an MQTT warehouse.
func New(rec config.Record, env warehouse.Env) (warehouse.Handler, error) {
	s, err := DecodeSettings(rec)
	if err != nil {
		return nil, err
	}

	topics := discovery.Topics{App: env.AppName, Client: env.ClientName}
	client := NewTransport(s, env.AppName, env.Logger)

	return &MQTT{Bridge: NewBridge(topics, client, env.Entities, env.Logger, s.Retain)}, nil
}
