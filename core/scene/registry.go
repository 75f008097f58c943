package scene

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry maps scene names to scenes. It accepts registrations until
// Freeze is called and is read-only afterwards.
type Registry struct {
	mu     sync.RWMutex
	scenes map[string]*Scene
	frozen atomic.Bool
}

// NewRegistry builds a registry holding the given scenes.
func NewRegistry(scenes ...*Scene) (*Registry, error) {
	r := &Registry{scenes: make(map[string]*Scene, len(scenes))}
	for _, s := range scenes {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error, for static setups.
func MustRegistry(scenes ...*Scene) *Registry {
	r, err := NewRegistry(scenes...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds a scene.
func (r *Registry) Register(s *Scene) error {
	if s == nil || s.name == "" {
		return ErrInvalidScene
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrRegistryFrozen
	}
	if _, exists := r.scenes[s.name]; exists {
		return &DuplicateSceneError{Name: s.name}
	}
	r.scenes[s.name] = s
	return nil
}

// Lookup returns the scene registered under name.
func (r *Registry) Lookup(name string) (*Scene, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.scenes[name]; ok {
		return s, nil
	}
	return nil, &UnknownSceneError{Name: name}
}

// Freeze stops further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen.Store(true)
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

// Names returns registered scene names sorted (for diagnostics).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scenes))
	for name := range r.scenes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
