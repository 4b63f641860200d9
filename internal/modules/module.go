// Package modules resolves, loads and enumerates handler modules.
//
// A handler module is a named set of callable functions. Modules come from
// one or more Sources consulted in priority order: a builtin source for
// in-process modules and a directory source that reads *.hcl files. Loads
// are never cached, so every Resolve observes the file as it is on disk at
// that moment.
package modules

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrModuleNotFound   = errors.New("module not found")
	ErrFunctionNotFound = errors.New("function not found")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Func is the calling convention shared by every handler function.
type Func func(ctx context.Context, args []any) (any, error)

// Module maps function names to callables, remembering declaration order.
type Module struct {
	Name string
	// Path is the backing file, empty for in-process modules.
	Path string

	funcs map[string]Func
	order []string
}

func NewModule(name, path string) *Module {
	return &Module{Name: name, Path: path, funcs: make(map[string]Func)}
}

// Define adds or replaces a function. A replaced function keeps its original
// position.
func (m *Module) Define(name string, fn Func) *Module {
	if _, exists := m.funcs[name]; !exists {
		m.order = append(m.order, name)
	}
	m.funcs[name] = fn
	return m
}

func (m *Module) Lookup(name string) (Func, bool) {
	fn, ok := m.funcs[name]
	return fn, ok && fn != nil
}

func (m *Module) Functions() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

func (m *Module) Descriptor() Descriptor {
	return Descriptor{Name: m.Name, Functions: m.Functions()}
}

// Descriptor is the listing form of a module. It is rebuilt on every scan.
type Descriptor struct {
	Name      string   `json:"name"`
	Functions []string `json:"functions"`
}

type ModuleNotFoundError struct {
	Name string
}

func (e *ModuleNotFoundError) Error() string { return fmt.Sprintf("module %s not found", e.Name) }

func (e *ModuleNotFoundError) Is(target error) bool { return target == ErrModuleNotFound }

type FunctionNotFoundError struct {
	Module   string
	Function string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("function %s not found in module %s", e.Function, e.Module)
}

func (e *FunctionNotFoundError) Is(target error) bool { return target == ErrFunctionNotFound }

// LoadError reports a backing file that exists but does not load as a
// module. It is returned as-is; loads are not retried.
type LoadError struct {
	Module string
	Path   string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load module %s (%s): %v", e.Module, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ValidName reports whether name is usable as a module or function name.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}
