package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Reserved record keys.
const (
	keyType     = "type"
	keyTag      = "tag"
	keyInterval = "interval"
)

// Record is a single configuration entry for an entity or warehouse.
//
// In YAML a record is a flat mapping:
//
//	- type: VirtualSwitch
//	  tag: desk lamp
//	  initial_state: "ON"
//
// Type and Tag together form the record's identity; every other key is kept
// in Options and decoded by the plugin that owns the record.
type Record struct {
	Type    string
	Tag     string
	Options map[string]any
}

// NewRecord builds a record programmatically.
func NewRecord(typeName, tag string, options map[string]any) Record {
	if options == nil {
		options = map[string]any{}
	}
	return Record{Type: typeName, Tag: tag, Options: options}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *Record) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]any
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("record at line %d: %w", node.Line, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	if v, ok := raw[keyType]; ok && v != nil {
		r.Type = strings.TrimSpace(fmt.Sprint(v))
	}
	if v, ok := raw[keyTag]; ok && v != nil {
		r.Tag = strings.TrimSpace(fmt.Sprint(v))
	}
	delete(raw, keyType)
	delete(raw, keyTag)
	r.Options = raw

	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (r Record) MarshalYAML() (any, error) {
	out := make(map[string]any, len(r.Options)+2)
	for k, v := range r.Options {
		out[k] = v
	}
	out[keyType] = r.Type
	if r.Tag != "" {
		out[keyTag] = r.Tag
	}
	return out, nil
}

// Identity returns "Type" for untagged records and "Type@tag" otherwise.
func (r Record) Identity() string {
	if r.Tag == "" {
		return r.Type
	}
	return r.Type + "@" + r.Tag
}

// Decode unmarshals the record's options into out, which is typically a
// plugin-specific settings struct with yaml tags. Fields already set on out
// act as defaults.
func (r Record) Decode(out any) error {
	if len(r.Options) == 0 {
		return nil
	}
	data, err := yaml.Marshal(r.Options)
	if err != nil {
		return fmt.Errorf("encoding %s options: %w", r.Identity(), err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s options: %w", r.Identity(), err)
	}
	return nil
}

// String returns an option as a string, or def when it is absent.
func (r Record) String(key, def string) string {
	v, ok := r.Options[key]
	if !ok || v == nil {
		return def
	}
	return fmt.Sprint(v)
}

// Interval returns the per-record poll interval override, or def when the
// record does not set one. Accepts duration strings ("30s") and plain numbers
// of seconds.
func (r Record) Interval(def time.Duration) (time.Duration, error) {
	v, ok := r.Options[keyInterval]
	if !ok || v == nil {
		return def, nil
	}

	var d time.Duration
	switch val := v.(type) {
	case int:
		d = time.Duration(val) * time.Second
	case float64:
		d = time.Duration(val * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return 0, fmt.Errorf("invalid interval %q: %w", val, err)
		}
		d = parsed
	default:
		return 0, fmt.Errorf("invalid interval type %T", v)
	}

	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %v", d)
	}
	return d, nil
}
