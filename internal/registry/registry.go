package registry

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// LoadState tracks whether a plugin factory has been loaded.
type LoadState int

// Load states.
const (
	Unloaded LoadState = iota
	Loaded
	Failed
)

// String returns the state name.
func (s LoadState) String() string {
	switch s {
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unloaded"
	}
}

// Entry is one plugin as recorded by the generated manifest.
type Entry[F any] struct {
	// Name is the exported type name, e.g. "VirtualSwitch".
	Name string
	// Source is the slash-separated path of the plugin file, e.g.
	// "internal/entities/virtualswitch/virtualswitch.go".
	Source string
	// Load returns the plugin factory. It may fail or panic; either way only
	// this plugin is excluded.
	Load func() (F, error)
}

// Descriptor describes a plugin and its load outcome.
type Descriptor struct {
	Name    string
	Source  string
	Kind    string
	Package string
	State   LoadState
	Err     error
}

// Logger interface for optional logging support.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry maps plugin type names to factories for one plugin kind.
//
// Loading happens once, on the first ListAvailable or Resolve call. Each
// plugin loads in isolation: an error or panic marks it Failed and is logged,
// the others are unaffected.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry[F any] struct {
	kind   string
	logger Logger

	mu      sync.Mutex
	entries []Entry[F]
	descs   map[string]*Descriptor
	loaded  map[string]F
	done    bool
}

// New creates an empty registry for the given kind ("entity", "warehouse").
func New[F any](kind string, logger Logger) *Registry[F] {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry[F]{
		kind:   kind,
		logger: logger,
		descs:  make(map[string]*Descriptor),
	}
}

// Kind returns the plugin kind this registry holds.
func (r *Registry[F]) Kind() string {
	return r.kind
}

// Add records a plugin. Entries whose Source does not follow the
// <dir>/<dir>.go convention are ignored.
//
// Returns:
//   - error: ErrDuplicatePlugin when the name is taken, ErrRegistryLoaded
//     after the first load
func (r *Registry[F]) Add(e Entry[F]) error {
	if e.Load == nil {
		return fmt.Errorf("%w: %s has no loader", ErrPluginLoad, e.Name)
	}
	if !Conforms(e.Source, e.Name) {
		r.logger.Debug("ignoring plugin outside naming convention",
			"kind", r.kind, "name", e.Name, "source", e.Source)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		return fmt.Errorf("%w: cannot add %s", ErrRegistryLoaded, e.Name)
	}
	key := strings.ToLower(e.Name)
	if _, exists := r.descs[key]; exists {
		return fmt.Errorf("%w: %s %s", ErrDuplicatePlugin, r.kind, e.Name)
	}

	r.entries = append(r.entries, e)
	r.descs[key] = &Descriptor{
		Name:    e.Name,
		Source:  e.Source,
		Kind:    r.kind,
		Package: path.Base(path.Dir(e.Source)),
		State:   Unloaded,
	}
	return nil
}

// ListAvailable loads every plugin on first use and returns the ones that
// loaded, keyed by type name. Later calls never reload.
func (r *Registry[F]) ListAvailable() map[string]F {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loadLocked()

	out := make(map[string]F, len(r.loaded))
	for name, f := range r.loaded {
		out[name] = f
	}
	return out
}

// Resolve returns the factory for a type name. An exact match is preferred;
// otherwise names are compared case-insensitively.
//
// Returns:
//   - error: ErrPluginNotFound when the type is unknown or failed to load
func (r *Registry[F]) Resolve(name string) (F, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loadLocked()

	if f, ok := r.loaded[name]; ok {
		return f, nil
	}

	var zero F
	desc, ok := r.descs[strings.ToLower(name)]
	if !ok {
		return zero, fmt.Errorf("%w: %s %q", ErrPluginNotFound, r.kind, name)
	}
	if desc.State == Failed {
		return zero, fmt.Errorf("%w: %s %q failed to load: %w", ErrPluginNotFound, r.kind, name, desc.Err)
	}
	return r.loaded[desc.Name], nil
}

// Descriptors returns every recorded plugin sorted by name.
func (r *Registry[F]) Descriptors() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Descriptor, 0, len(r.descs))
	for _, d := range r.descs {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// loadLocked loads every entry exactly once. Caller holds r.mu.
func (r *Registry[F]) loadLocked() {
	if r.done {
		return
	}
	r.done = true
	r.loaded = make(map[string]F, len(r.entries))

	for _, e := range r.entries {
		desc := r.descs[strings.ToLower(e.Name)]

		f, err := loadIsolated(e)
		if err != nil {
			desc.State = Failed
			desc.Err = err
			r.logger.Error("plugin failed to load",
				"kind", r.kind, "name", e.Name, "source", e.Source, "error", err)
			continue
		}

		desc.State = Loaded
		r.loaded[e.Name] = f
		r.logger.Debug("plugin loaded", "kind", r.kind, "name", e.Name)
	}
}

// loadIsolated calls e.Load, converting a panic into ErrPluginLoad.
func loadIsolated[F any](e Entry[F]) (f F, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrPluginLoad, e.Name, rec)
		}
	}()

	f, err = e.Load()
	if err != nil {
		return f, fmt.Errorf("%w: %s: %w", ErrPluginLoad, e.Name, err)
	}
	return f, nil
}

// Conforms reports whether source is "<dir>/<dir>.go" with name equal to dir.
// Comparison is case-insensitive: package directories are lower case while
// exported type names are not.
func Conforms(source, name string) bool {
	source = strings.ReplaceAll(source, "\\", "/")
	base := path.Base(source)
	if !strings.HasSuffix(base, ".go") || strings.HasSuffix(base, "_test.go") {
		return false
	}
	stem := strings.TrimSuffix(base, ".go")
	dir := path.Base(path.Dir(source))
	return strings.EqualFold(stem, dir) && strings.EqualFold(stem, name)
}
