package discovery

import (
	"time"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
)

// Discovery components.
const (
	ComponentSensor = "sensor"
	ComponentSwitch = "switch"
	ComponentButton = "button"
)

// DefaultManufacturer is reported in the device descriptor.
const DefaultManufacturer = "Gray Logic"

// Builder synthesizes discovery payloads.
//
// Payload fields are layered, later layers winning key by key:
//  1. defaults derived from the data kind
//  2. the override file (exact display name, else first pattern found in it)
//  3. the entity's inline payload
//  4. the data's inline payload
//
// Nested maps are merged recursively. A nil value removes the key.
type Builder struct {
	Topics       Topics
	Version      string
	Manufacturer string

	// ExpireAfter is published as expire_after on sensors when positive.
	ExpireAfter time.Duration

	Overrides *Overrides
}

// Component returns the discovery component of d.
func Component(d entity.Data) string {
	switch v := d.(type) {
	case *entity.Command:
		if v.Stateful() {
			return ComponentSwitch
		}
		return ComponentButton
	default:
		return ComponentSensor
	}
}

// DiscoveryTopic returns the config topic for d.
func (b *Builder) DiscoveryTopic(d entity.Data) string {
	return b.Topics.Discovery(Component(d), b.Topics.UniqueID(d.ID()))
}

// Payload returns the merged discovery payload for d.
func (b *Builder) Payload(d entity.Data) map[string]any {
	payload := b.defaults(d)

	if fragment, ok := b.Overrides.Lookup(displayName(d)); ok {
		merge(payload, fragment)
	}
	merge(payload, d.Entity().Payload())
	merge(payload, d.Payload())

	return payload
}

func (b *Builder) defaults(d entity.Data) map[string]any {
	manufacturer := b.Manufacturer
	if manufacturer == "" {
		manufacturer = DefaultManufacturer
	}

	p := map[string]any{
		"name":      displayName(d),
		"unique_id": b.Topics.UniqueID(d.ID()),
		"device": map[string]any{
			"name":         b.Topics.Client,
			"model":        b.Topics.App,
			"identifiers":  []any{SanitizeID(b.Topics.App + "_" + b.Topics.Client)},
			"manufacturer": manufacturer,
			"sw_version":   b.Version,
		},
		"availability_topic":    b.Topics.Availability(),
		"payload_available":     PayloadAvailable,
		"payload_not_available": PayloadNotAvailable,
	}

	switch v := d.(type) {
	case *entity.Sensor:
		p["state_topic"] = b.Topics.Value(v.ID())
		if v.SupportsExtraAttributes() {
			p["json_attributes_topic"] = b.Topics.Attributes(v.ID())
		}
		if unit := v.Unit(); unit != "" {
			p["unit_of_measurement"] = unit
		}
		if digits, ok := v.Precision(); ok {
			p["suggested_display_precision"] = digits
		}
		if b.ExpireAfter > 0 {
			p["expire_after"] = int(b.ExpireAfter / time.Second)
		}
	case *entity.Command:
		p["command_topic"] = b.Topics.Value(v.ID())
		if v.Stateful() {
			p["state_topic"] = b.Topics.Value(v.Connected()[0].ID())
			p["payload_on"] = entity.StateOn
			p["payload_off"] = entity.StateOff
		}
	}

	return p
}

// displayName is the default "name" of d, e.g. "VirtualSwitch @desk lamp set".
func displayName(d entity.Data) string {
	return d.Entity().DisplayName() + " " + d.Key()
}

// merge applies src onto dst. Maps merge recursively, nil deletes.
func merge(dst, src map[string]any) {
	for k, v := range src {
		if v == nil {
			delete(dst, k)
			continue
		}
		srcMap, srcIsMap := v.(map[string]any)
		dstMap, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			merged := make(map[string]any, len(dstMap)+len(srcMap))
			for dk, dv := range dstMap {
				merged[dk] = dv
			}
			merge(merged, srcMap)
			dst[k] = merged
			continue
		}
		dst[k] = v
	}
}
