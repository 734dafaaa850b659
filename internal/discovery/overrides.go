package discovery

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

type override struct {
	name    string
	pattern *regexp.Regexp
	payload map[string]any
}

// Overrides holds user-supplied discovery payload fragments keyed by display
// name or by a regular expression over display names, in file order.
type Overrides struct {
	entries []override
}

// LoadOverrides reads an override file.
//
// The file is a YAML mapping from display name to payload fragment:
//
//	"Uptime uptime":
//	  icon: mdi:timer
//	'^VirtualSwitch @.* set$':
//	  device_class: outlet
//
// Each key matches a display name exactly; keys that compile as regular
// expressions also match every display name they are found in, anchored
// only where the pattern says so. Exact matches win over patterns, and the
// first matching pattern in file order wins.
func LoadOverrides(path string) (*Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading discovery overrides: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides parses override file content. See LoadOverrides.
func ParseOverrides(data []byte) (*Overrides, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOverrides, err)
	}

	o := &Overrides{}
	if len(doc.Content) == 0 {
		return o, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: top level must be a mapping, line %d", ErrInvalidOverrides, root.Line)
	}

	// Mapping nodes keep key order; map[string]any would not.
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]

		var payload map[string]any
		if err := valNode.Decode(&payload); err != nil {
			return nil, fmt.Errorf("%w: %q at line %d: %w", ErrInvalidOverrides, keyNode.Value, valNode.Line, err)
		}

		entry := override{name: keyNode.Value, payload: payload}
		if re, err := regexp.Compile(keyNode.Value); err == nil {
			entry.pattern = re
		}
		o.entries = append(o.entries, entry)
	}

	return o, nil
}

// Lookup returns the payload fragment for a display name.
func (o *Overrides) Lookup(name string) (map[string]any, bool) {
	if o == nil {
		return nil, false
	}
	for _, e := range o.entries {
		if e.name == name {
			return e.payload, true
		}
	}
	for _, e := range o.entries {
		if e.pattern != nil && e.pattern.MatchString(name) {
			return e.payload, true
		}
	}
	return nil, false
}

// Len returns the number of entries.
func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	return len(o.entries)
}
