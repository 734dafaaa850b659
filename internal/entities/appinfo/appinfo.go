// Package appinfo reports the agent's own name and version.
package appinfo

import (
	"context"
	"runtime"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/infrastructure/config"
)

// Sensor keys.
const (
	KeyName    = "name"
	KeyVersion = "version"
)

// AppInfo publishes static build information. The name sensor carries the
// Go toolchain and platform as extra attributes.
type AppInfo struct {
	appName string
	version string
}

// New builds an AppInfo entity.
func New(_ config.Record, env entity.Env) (entity.Handler, error) {
	version := env.Version
	if version == "" {
		version = "dev"
	}
	return &AppInfo{appName: env.AppName, version: version}, nil
}

// Initialize registers the name and version sensors.
func (a *AppInfo) Initialize(_ context.Context, e *entity.Entity) error {
	if _, err := e.RegisterSensor(KeyName, entity.WithExtraAttributes(),
		entity.WithPayload(map[string]any{"icon": "mdi:information-outline"})); err != nil {
		return err
	}
	_, err := e.RegisterSensor(KeyVersion, entity.WithPayload(map[string]any{"icon": "mdi:tag"}))
	return err
}

// Update sets the values. They never change, but republishing keeps
// retained state fresh after a broker restart.
func (a *AppInfo) Update(_ context.Context, e *entity.Entity) error {
	if err := e.SetValue(KeyName, a.appName); err != nil {
		return err
	}
	if err := e.SetValue(KeyVersion, a.version); err != nil {
		return err
	}
	for name, v := range map[string]any{
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
	} {
		if err := e.SetExtraAttribute(KeyName, name, v); err != nil {
			return err
		}
	}
	return nil
}
