package registry

import (
	"fmt"
	"sync"
)

// Container is a minimal service locator handed to handlers through the
// Invocation. Dependencies are provided during startup wiring; handlers only
// read, so lookups after startup are contention-free in practice.
type Container struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{values: make(map[string]any)}
}

// Provide registers a named dependency, replacing any previous value.
func (c *Container) Provide(name string, value any) {
	c.mu.Lock()
	c.values[name] = value
	c.mu.Unlock()
}

// Get returns the named dependency.
func (c *Container) Get(name string) (any, bool) {
	c.mu.RLock()
	v, ok := c.values[name]
	c.mu.RUnlock()
	return v, ok
}

// Resolve fetches a dependency and asserts its type.
func Resolve[T any](c *Container, name string) (T, error) {
	var zero T
	if c == nil {
		return zero, fmt.Errorf("resolve %q: no container configured", name)
	}
	v, ok := c.Get(name)
	if !ok {
		return zero, fmt.Errorf("resolve %q: not provided", name)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("resolve %q: have %T, want %T", name, v, zero)
	}
	return t, nil
}
