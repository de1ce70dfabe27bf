package agents

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/haasonsaas/chatloop/internal/debounce"
)

// resyncDelay coalesces bursts of filesystem events (editors write, rename,
// and chmod in quick succession) into one re-sync.
const resyncDelay = 250 * time.Millisecond

// Watcher re-syncs agent definitions when files in the definitions
// directory change.
type Watcher struct {
	dir    string
	sync   func() error
	logger *slog.Logger
}

// NewWatcher creates a watcher over dir that calls sync after changes. The
// sync callback owns routing the reloaded definitions into registries.
func NewWatcher(dir string, sync func() error, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dir: dir, sync: sync, logger: logger}
}

// Start syncs once, then watches the directory until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.sync(); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return err
	}

	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	defer fw.Close()

	trigger := debounce.NewTrigger(resyncDelay)
	defer trigger.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".toml") {
				continue
			}
			if !event.Has(fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename) {
				continue
			}
			trigger.Hit()
		case <-trigger.C:
			if err := w.sync(); err != nil {
				w.logger.Warn("agent definition re-sync failed", "error", err)
			} else {
				w.logger.Info("agent definitions re-synced", "dir", w.dir)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("agents directory watch error", "error", err)
		}
	}
}
