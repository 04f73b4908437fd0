// Package watcher monitors a vault directory tree and emits debounced change
// events. The watch command uses it to coalesce editor save bursts into
// single re-sync triggers.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Watcher monitors a vault for file changes. Hidden paths (any component
// starting with a dot) and conflict sidecars never produce events, matching
// what the scanner tracks.
type Watcher struct {
	root      string
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	ignore    []string
	stopCh    chan struct{}
}

// New creates a watcher over the vault at root. ignore holds the same glob
// patterns the scanner excludes; debounce is how long a path must stay quiet
// before its event is emitted.
func New(root string, debounce time.Duration, ignore []string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		root:      root,
		watcher:   fsWatcher,
		debouncer: NewDebouncer(debounce),
		ignore:    ignore,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start begins watching the vault and all subdirectories.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)

	slog.Info("watcher started", "vault", w.root, "ignore_patterns", len(w.ignore))
	return nil
}

// Events returns the channel of debounced file events.
func (w *Watcher) Events() <-chan FileEvent {
	return w.debouncer.Events()
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	w.debouncer.Stop()
	return w.watcher.Close()
}

// addRecursive adds a directory and all subdirectories to the watcher.
func (w *Watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			slog.Warn("error walking path", "path", path, "error", err)
			return nil
		}

		rel, _ := filepath.Rel(w.root, path)
		rel = filepath.ToSlash(rel)

		if rel != "." && w.shouldIgnore(rel) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if info.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				slog.Warn("failed to watch directory", "path", path, "error", err)
			}
		}
		return nil
	})
}

// processEvents handles fsnotify events.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			rel, err := filepath.Rel(w.root, event.Name)
			if err != nil {
				continue
			}
			rel = filepath.ToSlash(rel)

			if w.shouldIgnore(rel) {
				continue
			}
			w.handleEvent(event, rel)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

// handleEvent processes a single fsnotify event.
func (w *Watcher) handleEvent(event fsnotify.Event, rel string) {
	info, statErr := os.Stat(event.Name)

	switch {
	case event.Has(fsnotify.Create):
		// New directories join the watch set; only files emit events.
		if statErr == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				slog.Warn("failed to add new directory", "path", event.Name, "error", err)
			}
			return
		}
		w.debouncer.Add(rel, EventCreate)

	case event.Has(fsnotify.Write):
		if statErr == nil && info.IsDir() {
			return
		}
		w.debouncer.Add(rel, EventModify)

	case event.Has(fsnotify.Remove):
		w.debouncer.Add(rel, EventDelete)

	case event.Has(fsnotify.Rename):
		// Rename is treated as delete; the new name triggers its own create.
		w.debouncer.Add(rel, EventDelete)

	case event.Has(fsnotify.Chmod):
		// Permission changes never alter content.
	}
}

// shouldIgnore reports whether the vault-relative path is outside the synced
// set: hidden, a conflict sidecar, or matching an ignore pattern.
func (w *Watcher) shouldIgnore(rel string) bool {
	if strings.HasSuffix(rel, ".conflict") {
		return true
	}
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	for _, pattern := range w.ignore {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
		// A pattern matching a parent directory covers everything below it.
		parts := strings.Split(rel, "/")
		for i := 1; i < len(parts); i++ {
			if matched, _ := doublestar.Match(pattern, strings.Join(parts[:i], "/")); matched {
				return true
			}
		}
	}
	return false
}
