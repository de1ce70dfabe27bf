package loop

import (
	"context"
	"log/slog"
	"sync"
)

// taskSet runs a loop's background work (frequency adjustment, passive
// learning hooks) with a hard concurrency bound. Tasks are cancelled with
// the loop's context and waited for on Stop, so a stopped loop leaves no
// goroutines behind.
type taskSet struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	logger *slog.Logger
}

func newTaskSet(limit int, logger *slog.Logger) *taskSet {
	if limit <= 0 {
		limit = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &taskSet{sem: make(chan struct{}, limit), logger: logger}
}

// Go starts fn in the background if the set has capacity and reports
// whether it was started. Task panics are contained.
func (t *taskSet) Go(ctx context.Context, name string, fn func(ctx context.Context)) bool {
	select {
	case t.sem <- struct{}{}:
	default:
		t.logger.Debug("background task dropped, set at capacity", "task", name)
		return false
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() { <-t.sem }()
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("background task panicked", "task", name, "panic", r)
			}
		}()
		fn(ctx)
	}()
	return true
}

// Wait blocks until every started task has returned.
func (t *taskSet) Wait() { t.wg.Wait() }
