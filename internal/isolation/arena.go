package isolation

import (
	"sync"
	"time"
)

// Arena holds one value per tenant with explicit reference counting.
// A value stays resident while any holder has it acquired; once every
// holder releases it, a sweep may evict it after the idle window. This
// makes tenant lifetime observable and testable instead of depending on
// collector behavior.
type Arena[T any] struct {
	mu      sync.Mutex
	factory func(tenantID string) T
	entries map[string]*arenaEntry[T]
	now     func() time.Time
}

type arenaEntry[T any] struct {
	value      T
	refs       int
	lastAccess time.Time
}

// NewArena creates an arena that constructs missing values with factory.
func NewArena[T any](factory func(tenantID string) T) *Arena[T] {
	return &Arena[T]{
		factory: factory,
		entries: map[string]*arenaEntry[T]{},
		now:     time.Now,
	}
}

// Acquire returns the tenant's value, constructing it on first use, and
// takes a reference. Every Acquire must be paired with a Release.
func (a *Arena[T]) Acquire(tenantID string) T {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.entries[tenantID]
	if !ok {
		entry = &arenaEntry[T]{value: a.factory(tenantID)}
		a.entries[tenantID] = entry
	}
	entry.refs++
	entry.lastAccess = a.now()
	return entry.value
}

// Release drops one reference. Releasing an unknown tenant is a no-op.
func (a *Arena[T]) Release(tenantID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.entries[tenantID]
	if !ok {
		return
	}
	if entry.refs > 0 {
		entry.refs--
	}
	entry.lastAccess = a.now()
}

// Sweep evicts unreferenced entries idle for at least the given window and
// returns how many were removed.
func (a *Arena[T]) Sweep(idle time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	cutoff := a.now().Add(-idle)
	evicted := 0
	for tenantID, entry := range a.entries {
		if entry.refs == 0 && entry.lastAccess.Before(cutoff) {
			delete(a.entries, tenantID)
			evicted++
		}
	}
	return evicted
}

// ClearTenant evicts the tenant's entry regardless of references. Used for
// tenant offboarding and tests; clearing an absent tenant is a no-op.
func (a *Arena[T]) ClearTenant(tenantID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, tenantID)
}

// Len reports the number of resident entries.
func (a *Arena[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
