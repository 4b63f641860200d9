package modules

import (
	"context"
	"sort"
	"sync"
)

// BuiltinSource serves in-process modules. Each Load runs the registered
// constructor again so callers never share a Module value.
type BuiltinSource struct {
	mu       sync.RWMutex
	builders map[string]func() *Module
}

func NewBuiltinSource() *BuiltinSource {
	return &BuiltinSource{builders: make(map[string]func() *Module)}
}

func (s *BuiltinSource) Register(name string, build func() *Module) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.builders[name] = build
}

func (s *BuiltinSource) Load(_ context.Context, name string) (*Module, error) {
	s.mu.RLock()
	build, ok := s.builders[name]
	s.mu.RUnlock()
	if !ok {
		return nil, &ModuleNotFoundError{Name: name}
	}
	return build(), nil
}

func (s *BuiltinSource) Names(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.builders))
	for name := range s.builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
