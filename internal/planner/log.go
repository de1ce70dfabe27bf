package planner

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// planLogSize bounds the retained plan/execution history.
const planLogSize = 20

// ExecutionRecord is the outcome of one executed decision.
type ExecutionRecord struct {
	ActionType string
	OK         bool
	Text       string
	Error      string
	Time       time.Time
}

// PlanRecord is one planning pass with its decisions and, once the loop
// reports back, their execution outcomes.
type PlanRecord struct {
	ThinkingID string
	Time       time.Time
	Reasoning  string
	Decisions  []string
	Executions []ExecutionRecord
}

type planLog struct {
	mu      sync.Mutex
	records []PlanRecord
}

func (l *planLog) append(rec PlanRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	if len(l.records) > planLogSize {
		l.records = l.records[len(l.records)-planLogSize:]
	}
}

func (l *planLog) recordExecution(thinkingID string, exec ExecutionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].ThinkingID == thinkingID {
			l.records[i].Executions = append(l.records[i].Executions, exec)
			return
		}
	}
}

func (l *planLog) recent(n int) []PlanRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	out := make([]PlanRecord, n)
	copy(out, l.records[len(l.records)-n:])
	return out
}

// promptLines renders the newest records for inclusion in the planning
// prompt.
func (l *planLog) promptLines(n int) string {
	records := l.recent(n)
	if len(records) == 0 {
		return ""
	}
	var b strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&b, "[%s] %s", rec.Time.Format("15:04:05"), strings.Join(rec.Decisions, ", "))
		if rec.Reasoning != "" {
			fmt.Fprintf(&b, " (%s)", rec.Reasoning)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
