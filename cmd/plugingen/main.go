// Command plugingen writes internal/plugins/manifest_gen.go.
//
// It scans internal/entities and internal/warehouses for directories that
// hold a <dir>/<dir>.go file declaring an exported type named like the
// directory, and emits a registry entry for each one.
//
// Usage:
//
//	plugingen [--root .] [--out internal/plugins/manifest_gen.go]
package main

import (
	"bytes"
	"errors"
	"fmt"
	"go/format"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"text/template"

	"github.com/spf13/pflag"
	"golang.org/x/mod/modfile"

	"github.com/nerrad567/gray-logic-agent/internal/registry"
)

// ErrNoModule is returned when go.mod has no module directive.
var ErrNoModule = errors.New("plugingen: no module directive in go.mod")

func main() {
	root := pflag.String("root", ".", "module root containing go.mod")
	out := pflag.String("out", "internal/plugins/manifest_gen.go", "output file, relative to the working directory")
	pflag.Parse()

	if err := run(*root, *out, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(root, out string, warn io.Writer) error {
	src, err := generate(root, warn)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, src, 0o644); err != nil { //nolint:gosec // generated source is world-readable
		return fmt.Errorf("writing %s: %w", out, err)
	}
	return nil
}

// generate scans root and returns the formatted manifest source. Plugin
// files that fail to parse are reported on warn and left out.
func generate(root string, warn io.Writer) ([]byte, error) {
	module, err := modulePath(filepath.Join(root, "go.mod"))
	if err != nil {
		return nil, err
	}

	entities, err := registry.Scan(filepath.Join(root, "internal", "entities"), root, "entity")
	if err != nil {
		return nil, fmt.Errorf("scanning entities: %w", err)
	}
	warehouses, err := registry.Scan(filepath.Join(root, "internal", "warehouses"), root, "warehouse")
	if err != nil {
		return nil, fmt.Errorf("scanning warehouses: %w", err)
	}

	return render(module, usable(entities, warn), usable(warehouses, warn))
}

// usable drops failed descriptors, reporting each on warn.
func usable(descs []registry.Descriptor, warn io.Writer) []registry.Descriptor {
	out := descs[:0]
	for _, d := range descs {
		if d.State == registry.Failed {
			fmt.Fprintf(warn, "Warning: skipping %s plugin %s: %v\n", d.Kind, d.Source, d.Err)
			continue
		}
		out = append(out, d)
	}
	return out
}

// modulePath reads the module path from a go.mod file.
func modulePath(goMod string) (string, error) {
	data, err := os.ReadFile(goMod)
	if err != nil {
		return "", fmt.Errorf("reading go.mod: %w", err)
	}
	f, err := modfile.ParseLax(goMod, data, nil)
	if err != nil {
		return "", fmt.Errorf("parsing go.mod: %w", err)
	}
	if f.Module == nil {
		return "", ErrNoModule
	}
	return f.Module.Mod.Path, nil
}

type importSpec struct {
	Alias string
	Path  string
}

type pluginSpec struct {
	Name   string
	Source string
	Alias  string
}

type manifest struct {
	Imports    []importSpec
	Entities   []pluginSpec
	Warehouses []pluginSpec
}

var manifestTemplate = template.Must(template.New("manifest").Parse(`// Code generated by plugingen. DO NOT EDIT.

package plugins

import (
{{- range .Imports}}
	{{if .Alias}}{{.Alias}} {{end}}"{{.Path}}"
{{- end}}
)

func entityManifest() []registry.Entry[entity.Factory] {
	return []registry.Entry[entity.Factory]{
{{- range .Entities}}
		{Name: "{{.Name}}", Source: "{{.Source}}", Load: func() (entity.Factory, error) { return {{.Alias}}.New, nil }},
{{- end}}
	}
}

func warehouseManifest() []registry.Entry[warehouse.Factory] {
	return []registry.Entry[warehouse.Factory]{
{{- range .Warehouses}}
		{Name: "{{.Name}}", Source: "{{.Source}}", Load: func() (warehouse.Factory, error) { return {{.Alias}}.New, nil }},
{{- end}}
	}
}
`))

// render produces the gofmt-formatted manifest for the given descriptors.
// Plugin packages are imported under "ent"/"wh" prefixed aliases so that
// names like runtime or mqtt never collide with other imports.
func render(module string, entities, warehouses []registry.Descriptor) ([]byte, error) {
	m := manifest{
		Imports: []importSpec{
			{Path: module + "/internal/entity"},
			{Path: module + "/internal/registry"},
			{Path: module + "/internal/warehouse"},
		},
	}

	add := func(prefix string, descs []registry.Descriptor) []pluginSpec {
		specs := make([]pluginSpec, 0, len(descs))
		for _, d := range descs {
			alias := prefix + d.Package
			m.Imports = append(m.Imports, importSpec{
				Alias: alias,
				Path:  module + "/" + path.Dir(d.Source),
			})
			specs = append(specs, pluginSpec{Name: d.Name, Source: d.Source, Alias: alias})
		}
		return specs
	}
	m.Entities = add("ent", entities)
	m.Warehouses = add("wh", warehouses)

	sort.Slice(m.Imports, func(i, j int) bool { return m.Imports[i].Path < m.Imports[j].Path })

	var buf bytes.Buffer
	if err := manifestTemplate.Execute(&buf, m); err != nil {
		return nil, fmt.Errorf("rendering manifest: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("formatting manifest: %w", err)
	}
	return src, nil
}
