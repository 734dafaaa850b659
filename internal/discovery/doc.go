// Package discovery defines the wire protocol shared by MQTT sinks: topic
// naming and Home Assistant auto-discovery payloads.
//
// Topic layout:
//
//	{app}/{client}{suffix}/{normalized data id}                  value / command
//	{app}/{client}{suffix}/{normalized data id}_extraattributes  attributes (JSON)
//	{app}/{client}{suffix}/LWT                                   availability
//	homeassistant/{component}/{app}/{unique id}/config           discovery (retained)
//
// Normalization maps "." to "/" and " " to "_".
package discovery
