package registry

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// Scan walks root recursively and returns one descriptor per directory, at
// any depth, that holds "<dir>/<dir>.go" declaring an exported type whose
// name equals <dir> case-insensitively.
//
// Helper files and directories that do not satisfy the convention are
// skipped without error. A convention file that does not parse is returned
// with State Failed and Err set, named after its directory; the rest of the
// tree is still scanned. Sources in the result are slash-separated and
// relative to base when base is non-empty.
//
// Parameters:
//   - root: Directory tree holding the plugin packages
//   - base: Directory Source paths are made relative to (usually the module root)
//   - kind: Plugin kind recorded on the descriptors
//
// Returns:
//   - []Descriptor: Plugins sorted by name
//   - error: Only when root itself cannot be walked
func Scan(root, base, kind string) ([]Descriptor, error) {
	fset := token.NewFileSet()
	var out []Descriptor

	err := filepath.WalkDir(root, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			if file == root {
				return err
			}
			return nil
		}
		if d.IsDir() {
			if file != root && skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		dir := filepath.Base(filepath.Dir(file))
		source := file
		if base != "" {
			if rel, err := filepath.Rel(base, file); err == nil {
				source = rel
			}
		}
		source = filepath.ToSlash(source)
		if !Conforms(source, dir) {
			return nil
		}

		parsed, err := parser.ParseFile(fset, file, nil, parser.SkipObjectResolution)
		if err != nil {
			out = append(out, Descriptor{
				Name:   dir,
				Source: source,
				Kind:   kind,
				State:  Failed,
				Err:    fmt.Errorf("%w: parsing %s: %w", ErrPluginLoad, source, err),
			})
			return nil
		}

		name := conventionType(parsed, dir)
		if name == "" {
			return nil
		}
		out = append(out, Descriptor{
			Name:    name,
			Source:  source,
			Kind:    kind,
			Package: parsed.Name.Name,
			State:   Unloaded,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading plugin root %s: %w", root, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// skipDir follows the go tool: testdata and names starting with "." or "_"
// never hold packages.
func skipDir(name string) bool {
	return name == "testdata" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")
}

// conventionType returns the exported type in f named like dir, or "".
func conventionType(f *ast.File, dir string) string {
	for _, decl := range f.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok || !ts.Name.IsExported() {
				continue
			}
			if strings.EqualFold(ts.Name.Name, dir) {
				return ts.Name.Name
			}
		}
	}
	return ""
}
