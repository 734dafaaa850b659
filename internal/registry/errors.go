package registry

import "errors"

// Domain-specific errors for plugin registry operations.
var (
	// ErrPluginNotFound is returned when resolving an unknown or failed plugin.
	ErrPluginNotFound = errors.New("registry: plugin not found")

	// ErrPluginLoad wraps a plugin loader error or panic.
	ErrPluginLoad = errors.New("registry: plugin load failed")

	// ErrDuplicatePlugin is returned when two plugins share a type name.
	ErrDuplicatePlugin = errors.New("registry: duplicate plugin")

	// ErrRegistryLoaded is returned when adding plugins after the first load.
	ErrRegistryLoaded = errors.New("registry: already loaded")
)
