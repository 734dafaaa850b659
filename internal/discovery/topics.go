package discovery

import (
	"regexp"
	"strings"
)

// Availability payloads published on the LWT topic.
const (
	PayloadAvailable    = "online"
	PayloadNotAvailable = "offline"
)

// DiscoveryPrefix is the Home Assistant discovery root.
const DiscoveryPrefix = "homeassistant"

var normalizer = strings.NewReplacer(".", "/", " ", "_")

// Normalize turns a data ID into a topic path: "." becomes "/" and spaces
// become "_".
func Normalize(dataID string) string {
	return normalizer.Replace(dataID)
}

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// SanitizeID makes s usable as a discovery object id.
func SanitizeID(s string) string {
	return unsafeID.ReplaceAllString(s, "_")
}

// Topics builds the topic strings for one app/client pair. Suffix separates
// sinks publishing the same data, e.g. "HomeAssistant".
//
// Example with App "agent", Client "bench", Suffix "":
//
//	Value("VirtualSwitch@desk lamp.state")  →  agent/bench/VirtualSwitch@desk_lamp/state
//	Availability()                          →  agent/bench/LWT
type Topics struct {
	App    string
	Client string
	Suffix string
}

// Base returns "{app}/{client}{suffix}".
func (t Topics) Base() string {
	return t.App + "/" + t.Client + t.Suffix
}

// Value returns the value (state or command) topic of a data ID.
func (t Topics) Value(dataID string) string {
	return t.Base() + "/" + Normalize(dataID)
}

// Attributes returns the extra attributes topic of a data ID.
func (t Topics) Attributes(dataID string) string {
	return t.Value(dataID + "_extraattributes")
}

// Availability returns the last-will topic.
func (t Topics) Availability() string {
	return t.Base() + "/LWT"
}

// Discovery returns the retained discovery config topic.
func (t Topics) Discovery(component, uniqueID string) string {
	return DiscoveryPrefix + "/" + component + "/" + t.App + "/" + uniqueID + "/config"
}

// UniqueID returns the discovery unique id of a data ID on this client.
func (t Topics) UniqueID(dataID string) string {
	return SanitizeID(t.Client + t.Suffix + "_" + dataID)
}
