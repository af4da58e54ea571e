package backend

import (
	"fmt"
	"sort"

	"github.com/gogpu/gpucontext"
)

// Factory opens a backend.
type Factory func(opts Options) (Backend, error)

// Registered backend names, in priority order.
const (
	Reference = "reference"
	Immediate = "immediate"
	Headless  = "headless"
)

var registry = gpucontext.NewRegistry[Factory](
	gpucontext.WithPriority(Reference, Immediate),
)

// Register registers a backend factory with the given name.
// This is typically called from init() functions in backend packages.
// If a backend with the same name is already registered, it will be replaced.
func Register(name string, factory Factory) {
	registry.Register(name, func() Factory { return factory })
}

// Unregister removes a backend from the registry.
// This is useful for testing.
func Unregister(name string) {
	registry.Unregister(name)
}

// Available returns the registered backend names, sorted.
func Available() []string {
	names := registry.Available()
	sort.Strings(names)
	return names
}

// IsRegistered checks if a backend with the given name is registered.
func IsRegistered(name string) bool {
	return registry.Has(name)
}

// Open opens the named backend. An empty name selects the highest-priority
// registered backend.
func Open(name string, opts Options) (Backend, error) {
	if name == "" {
		name = registry.BestName()
		if name == "" {
			return nil, ErrNoBackend
		}
	}
	factory := registry.Get(name)
	if factory == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return factory(opts)
}
