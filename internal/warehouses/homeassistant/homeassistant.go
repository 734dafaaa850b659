// Package homeassistant publishes entity data with Home Assistant MQTT
// discovery. Topics live under {app}/{client}HomeAssistant so the plain MQTT
// warehouse can share the broker without clashing.
package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/discovery"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-agent/internal/warehouse"
	"github.com/nerrad567/gray-logic-agent/internal/warehouses/mqtt"
)

// TopicSuffix is appended to the client name in every topic.
const TopicSuffix = "HomeAssistant"

// Settings holds the discovery options. Broker keys are decoded by
// mqtt.DecodeSettings from the same record.
type Settings struct {
	// DiscoveryOverrides is the path of a YAML file mapping data IDs (or
	// patterns) to payload fragments.
	DiscoveryOverrides string `yaml:"discovery_overrides"`

	// ExpireAfter marks sensor values unavailable in Home Assistant when no
	// update arrives in time. Zero disables it.
	ExpireAfter time.Duration `yaml:"expire_after"`

	Manufacturer string `yaml:"manufacturer"`
}

// HomeAssistant is the discovery-aware MQTT warehouse.
type HomeAssistant struct {
	*mqtt.Bridge

	builder  *discovery.Builder
	entities warehouse.Source
}

// New builds a HomeAssistant warehouse.
func New(rec config.Record, env warehouse.Env) (warehouse.Handler, error) {
	broker, err := mqtt.DecodeSettings(rec)
	if err != nil {
		return nil, err
	}

	var s Settings
	if err := rec.Decode(&s); err != nil {
		return nil, err
	}
	if s.ExpireAfter < 0 {
		return nil, fmt.Errorf("%s: expire_after must not be negative", rec.Identity())
	}

	var overrides *discovery.Overrides
	if s.DiscoveryOverrides != "" {
		if overrides, err = discovery.LoadOverrides(s.DiscoveryOverrides); err != nil {
			return nil, err
		}
	}

	topics := discovery.Topics{App: env.AppName, Client: env.ClientName, Suffix: TopicSuffix}
	client := mqtt.NewTransport(broker, env.AppName, env.Logger)
	bridge := mqtt.NewBridge(topics, client, env.Entities, env.Logger, broker.Retain)

	return newHomeAssistant(bridge, &discovery.Builder{
		Topics:       topics,
		Version:      env.Version,
		Manufacturer: s.Manufacturer,
		ExpireAfter:  s.ExpireAfter,
		Overrides:    overrides,
	}, env), nil
}

func newHomeAssistant(bridge *mqtt.Bridge, builder *discovery.Builder, env warehouse.Env) *HomeAssistant {
	h := &HomeAssistant{
		Bridge:   bridge,
		builder:  builder,
		entities: env.Entities,
	}
	bridge.OnConnect(h.publishDiscovery)
	return h
}

// publishDiscovery publishes a retained config message for every sensor and
// command. It runs before "online" so Home Assistant knows the entities by
// the time they become available.
func (h *HomeAssistant) publishDiscovery(context.Context) error {
	var errs []error
	count := 0
	for _, d := range warehouse.Data(h.entities) {
		payload, err := json.Marshal(h.builder.Payload(d))
		if err != nil {
			errs = append(errs, fmt.Errorf("encoding discovery for %s: %w", d.ID(), err))
			continue
		}
		if err := h.PublishRetained(h.builder.DiscoveryTopic(d), payload); err != nil {
			errs = append(errs, fmt.Errorf("publishing discovery for %s: %w", d.ID(), err))
			continue
		}
		count++
	}

	h.Logger().Info("discovery published", "base", h.Topics().Base(), "count", count)
	return errors.Join(errs...)
}
