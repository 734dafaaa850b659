// Package registry discovers and loads entity and warehouse plugins.
//
// Plugins follow one layout convention: each lives in its own directory
// holding a file of the same name that declares an exported type of the same
// name, compared case-insensitively:
//
//	internal/entities/virtualswitch/virtualswitch.go  →  type VirtualSwitch
//
// cmd/plugingen uses Scan to find conforming plugins and renders the
// manifest in internal/plugins, which Adds them to a Registry at startup.
// Loading is lazy, memoized and isolated per plugin.
package registry
