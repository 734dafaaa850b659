// Package plugins builds the entity and warehouse registries from the
// generated manifest.
//
// The manifest lists every directory under internal/entities and
// internal/warehouses that holds a <dir>/<dir>.go file declaring an exported
// type named like the directory. Regenerate it after adding a plugin:
//
//	go generate ./internal/plugins
package plugins

//go:generate go run ../../cmd/plugingen --root ../.. --out manifest_gen.go

import (
	"errors"

	"github.com/nerrad567/gray-logic-agent/internal/entity"
	"github.com/nerrad567/gray-logic-agent/internal/registry"
	"github.com/nerrad567/gray-logic-agent/internal/warehouse"
)

// Plugin kinds.
const (
	KindEntity    = "entity"
	KindWarehouse = "warehouse"
)

// Entities returns a registry holding every entity plugin in the manifest.
// Nothing is loaded until the first ListAvailable or Resolve call.
func Entities(logger registry.Logger) (*registry.Registry[entity.Factory], error) {
	r := registry.New[entity.Factory](KindEntity, logger)
	return r, addAll(r, entityManifest())
}

// Warehouses returns a registry holding every warehouse plugin in the manifest.
func Warehouses(logger registry.Logger) (*registry.Registry[warehouse.Factory], error) {
	r := registry.New[warehouse.Factory](KindWarehouse, logger)
	return r, addAll(r, warehouseManifest())
}

func addAll[F any](r *registry.Registry[F], entries []registry.Entry[F]) error {
	var errs []error
	for _, e := range entries {
		if err := r.Add(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
