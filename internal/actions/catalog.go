package actions

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Result is what an executed action reports back to the loop.
type Result struct {
	OK   bool
	Text string
}

// Handler executes one planned action invocation. Handler errors stay
// inside their own action result and never fail the cycle.
type Handler interface {
	Execute(ctx context.Context) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) (Result, error)

func (f HandlerFunc) Execute(ctx context.Context) (Result, error) { return f(ctx) }

// Factory builds a handler for one invocation payload.
type Factory func(payload Payload) (Handler, error)

// NopFactory builds a handler that acknowledges the invocation without side
// effects, echoing the planner's reasoning. A minimal Factory for embedders
// to start from.
func NopFactory(payload Payload) (Handler, error) {
	return HandlerFunc(func(context.Context) (Result, error) {
		return Result{OK: true, Text: payload.Reasoning}, nil
	}), nil
}

type catalogEntry struct {
	info    Info
	factory Factory
}

// Catalog registers named actions and builds their handlers.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]catalogEntry
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: map[string]catalogEntry{}}
}

// Register adds a named action. Built-in type names are reserved and
// re-registering a name replaces the earlier entry.
func (c *Catalog) Register(name string, info Info, factory Factory) error {
	if name == "" {
		return fmt.Errorf("actions: action name is required")
	}
	if Type(name).Internal() {
		return fmt.Errorf("actions: %q is a reserved built-in action", name)
	}
	if factory == nil {
		return fmt.Errorf("actions: action %q needs a factory", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = catalogEntry{info: info, factory: factory}
	return nil
}

// Unregister removes a named action.
func (c *Catalog) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}

// Available returns every registered action's info.
func (c *Catalog) Available() map[string]Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Info, len(c.entries))
	for name, entry := range c.entries {
		out[name] = entry.info.clone()
	}
	return out
}

// Using filters the catalog by activation policy for one planning pass.
// transcript is the recent conversation text scanned by keyword policies
// and draw feeds random policies.
func (c *Catalog) Using(transcript string, draw func() float64) map[string]Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Info, len(c.entries))
	for name, entry := range c.entries {
		sample := 0.0
		if entry.info.Activation.Kind == ActivationRandom && draw != nil {
			sample = draw()
		}
		if entry.info.Activation.Matches(transcript, sample) {
			out[name] = entry.info.clone()
		}
	}
	return out
}

// Names returns the registered action names in order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for name := range c.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether name is registered.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[name]
	return ok
}

// CreateHandler builds a handler for one invocation of the named action.
func (c *Catalog) CreateHandler(name string, payload Payload) (Handler, error) {
	c.mu.RLock()
	entry, ok := c.entries[name]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("actions: unknown action %q", name)
	}
	handler, err := entry.factory(payload)
	if err != nil {
		return nil, fmt.Errorf("actions: build handler for %q: %w", name, err)
	}
	return handler, nil
}
