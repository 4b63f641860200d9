package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// Source is one place modules can be loaded from.
type Source interface {
	// Load returns a freshly loaded module or an error matching
	// ErrModuleNotFound when the source has no module with that name.
	Load(ctx context.Context, name string) (*Module, error)
	// Names lists the modules the source can currently offer.
	Names(ctx context.Context) ([]string, error)
}

// Registry consults its sources in order; the first source that has a
// module wins, which lets in-process modules shadow same-named files.
type Registry struct {
	sources []Source
	logger  *slog.Logger
}

func NewRegistry(logger *slog.Logger, sources ...Source) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{sources: sources, logger: logger}
}

// Resolve loads the current version of a module.
func (r *Registry) Resolve(ctx context.Context, name string) (*Module, error) {
	if !ValidName(name) {
		return nil, &ModuleNotFoundError{Name: name}
	}
	for _, src := range r.sources {
		m, err := src.Load(ctx, name)
		if errors.Is(err, ErrModuleNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, &ModuleNotFoundError{Name: name}
}

// ListAll loads every module offered by the sources and describes it.
// Modules that fail to load are logged and left out. The result is sorted by
// name.
func (r *Registry) ListAll(ctx context.Context) ([]Descriptor, error) {
	seen := make(map[string]struct{})
	out := make([]Descriptor, 0)
	for _, src := range r.sources {
		names, err := src.Names(ctx)
		if err != nil {
			return nil, fmt.Errorf("list modules: %w", err)
		}
		for _, name := range names {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			m, err := src.Load(ctx, name)
			if err != nil {
				r.logger.Warn("skipping module that failed to load", "module", name, "error", err)
				continue
			}
			out = append(out, m.Descriptor())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Invoke calls fn on m. A panicking handler is reported as an error.
func (r *Registry) Invoke(ctx context.Context, m *Module, fn string, args []any) (result any, err error) {
	f, ok := m.Lookup(fn)
	if !ok {
		return nil, &FunctionNotFoundError{Module: m.Name, Function: fn}
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panicked", "module", m.Name, "function", fn, "panic", p)
			result, err = nil, fmt.Errorf("%s.%s panicked: %v", m.Name, fn, p)
		}
	}()
	return f(ctx, args)
}
