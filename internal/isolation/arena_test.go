package isolation

import (
	"testing"
	"time"
)

func newCountingArena() (*Arena[*int], *int) {
	built := 0
	arena := NewArena(func(string) *int {
		built++
		v := built
		return &v
	})
	return arena, &built
}

func TestArenaAcquireConstructsOnce(t *testing.T) {
	arena, built := newCountingArena()

	a := arena.Acquire("acme")
	b := arena.Acquire("acme")
	if a != b {
		t.Error("second acquire built a new value")
	}
	if *built != 1 {
		t.Errorf("factory ran %d times, want 1", *built)
	}

	other := arena.Acquire("beta")
	if other == a {
		t.Error("tenants share a value")
	}
	if *built != 2 {
		t.Errorf("factory ran %d times, want 2", *built)
	}
}

func TestArenaSweepRespectsReferences(t *testing.T) {
	arena, _ := newCountingArena()
	now := time.Now()
	arena.now = func() time.Time { return now }

	arena.Acquire("held")
	arena.Acquire("idle")
	arena.Release("idle")

	now = now.Add(time.Hour)
	if evicted := arena.Sweep(30 * time.Minute); evicted != 1 {
		t.Errorf("Sweep evicted %d entries, want 1", evicted)
	}
	if arena.Len() != 1 {
		t.Errorf("Len = %d, want 1 (held entry survives)", arena.Len())
	}
}

func TestArenaSweepKeepsRecentlyReleased(t *testing.T) {
	arena, _ := newCountingArena()
	arena.Acquire("acme")
	arena.Release("acme")

	if evicted := arena.Sweep(time.Hour); evicted != 0 {
		t.Errorf("Sweep evicted %d fresh entries", evicted)
	}
}

func TestArenaReacquireAfterSweepRebuilds(t *testing.T) {
	arena, built := newCountingArena()
	now := time.Now()
	arena.now = func() time.Time { return now }

	arena.Acquire("acme")
	arena.Release("acme")
	now = now.Add(time.Hour)
	arena.Sweep(time.Minute)

	arena.Acquire("acme")
	if *built != 2 {
		t.Errorf("factory ran %d times, want rebuild after eviction", *built)
	}
}

func TestArenaClearTenantIdempotent(t *testing.T) {
	arena, _ := newCountingArena()
	arena.Acquire("acme")

	arena.ClearTenant("acme")
	arena.ClearTenant("acme")
	arena.ClearTenant("never-existed")

	if arena.Len() != 0 {
		t.Errorf("Len = %d after clear, want 0", arena.Len())
	}
}

func TestArenaReleaseUnknownTenant(t *testing.T) {
	arena, _ := newCountingArena()
	arena.Release("ghost")
	if arena.Len() != 0 {
		t.Error("Release invented an entry")
	}
}
