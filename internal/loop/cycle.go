package loop

import (
	"log/slog"
	"sync"
	"time"
)

// Cycle outcomes reported in history and metrics.
const (
	OutcomeIdle    = "idle"
	OutcomeSkip    = "skip"
	OutcomeSilent  = "silent"
	OutcomeReply   = "reply"
	OutcomeActions = "actions"
	OutcomeError   = "error"
)

// LoopInfo is the merged effect of one planning pass's executed decisions.
type LoopInfo struct {
	Replied      bool
	Silenced     bool
	ActionsRun   int
	ActionErrors int
}

// CycleDetail records one loop iteration. CycleID is strictly increasing
// within a loop, including across crash restarts.
type CycleDetail struct {
	CycleID    int64
	ThinkingID string
	StartedAt  time.Time
	EndedAt    time.Time
	Outcome    string
	Timers     map[string]time.Duration
	Info       LoopInfo
}

// cycleHistory is the bounded append-only record of recent iterations.
type cycleHistory struct {
	mu      sync.Mutex
	limit   int
	details []CycleDetail
}

func newCycleHistory(limit int) *cycleHistory {
	if limit <= 0 {
		limit = 100
	}
	return &cycleHistory{limit: limit}
}

func (h *cycleHistory) append(detail CycleDetail) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.details = append(h.details, detail)
	if len(h.details) > h.limit {
		h.details = h.details[len(h.details)-h.limit:]
	}
}

func (h *cycleHistory) recent(n int) []CycleDetail {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n <= 0 || n > len(h.details) {
		n = len(h.details)
	}
	out := make([]CycleDetail, n)
	copy(out, h.details[len(h.details)-n:])
	return out
}

// timerSet measures the named phases of one iteration.
type timerSet struct {
	now    func() time.Time
	timers map[string]time.Duration
}

func newTimerSet(now func() time.Time) *timerSet {
	return &timerSet{now: now, timers: map[string]time.Duration{}}
}

// measure runs fn and records its wall time under name.
func (t *timerSet) measure(name string, fn func()) {
	start := t.now()
	fn()
	t.timers[name] = t.now().Sub(start)
}

// logVisible writes one line per timer at or above the visibility floor.
func (t *timerSet) logVisible(logger *slog.Logger, floor time.Duration) {
	for name, elapsed := range t.timers {
		if elapsed >= floor {
			logger.Debug("cycle timer", "phase", name, "elapsed", elapsed)
		}
	}
}
