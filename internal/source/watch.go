package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is the quiet period required after the last file
// event before an import fires. Bulk copies into a watched directory land
// as one import, not one per file.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watcher triggers imports for directory sources whose files change. The
// source directory itself is watched, not nested subdirectories.
type Watcher struct {
	log      *slog.Logger
	trigger  func(source string)
	debounce time.Duration
	targets  map[string]string // directory -> source name
}

// NewWatcher creates a watcher that calls trigger with the source name once
// a watched directory settles after changes.
func NewWatcher(log *slog.Logger, trigger func(source string)) *Watcher {
	return &Watcher{
		log:      log,
		trigger:  trigger,
		debounce: DefaultWatchDebounce,
		targets:  make(map[string]string),
	}
}

// Add registers a directory source. One source per directory.
func (w *Watcher) Add(sourceName, dir string) error {
	dir = filepath.Clean(dir)
	if prev, ok := w.targets[dir]; ok {
		return fmt.Errorf("directory %s already watched for source %s", dir, prev)
	}
	w.targets[dir] = sourceName
	return nil
}

// Run watches the registered directories until ctx ends. It returns nil
// when nothing is registered.
func (w *Watcher) Run(ctx context.Context) error {
	if len(w.targets) == 0 {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	for dir, source := range w.targets {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s for source %s: %w", dir, source, err)
		}
		w.log.Info("watching directory", "source", source, "dir", dir)
	}

	// pending collects sources with unflushed changes; the timer restarts
	// on every event, so a burst flushes once after the quiet period.
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			source, ok := w.targets[filepath.Dir(event.Name)]
			if !ok {
				continue
			}
			w.log.Debug("file event", "source", source, "path", event.Name, "op", event.Op.String())
			pending[source] = struct{}{}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			w.log.Error("watcher error", "error", err)

		case <-timer.C:
			for source := range pending {
				delete(pending, source)
				w.log.Info("changes detected, import triggered", "source", source)
				w.trigger(source)
			}
		}
	}
}
