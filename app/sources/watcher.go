package sources

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the sources configuration when the file changes on disk.
// Events are debounced because editors and config management tools tend to
// emit several write events per save.
type Watcher struct {
	path   string
	reload func()
}

func NewWatcher(path string, reload func()) *Watcher {
	return &Watcher{path: filepath.Clean(path), reload: reload}
}

// Run blocks until the context is cancelled. The parent directory is
// watched rather than the file itself so atomic rename-into-place saves
// are picked up.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(w.path), err)
	}

	slog.Debug("Watching sources file", "path", w.path)

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != w.path {
				continue
			}

			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}

			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, w.reload)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("Sources file watcher error", "error", err)
		}
	}
}
