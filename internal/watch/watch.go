// Package watch implements the document-root file watcher (spec §4.10).
// It supplements the distilled spec, which says extraction is "triggered
// separately when files change" but does not name a mechanism: adapted
// from the teacher's FileWatcher, it watches doc_root recursively with
// fsnotify, debounces bursts, and on settle asks the Run Manager to start
// an extract run. It falls back to polling if fsnotify itself can't start.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Starter is the subset of the Run Manager the watcher needs: start an
// extract run, tolerating AlreadyRunning by skipping (logged by the
// caller, not retried) per the single-active-run invariant.
type Starter interface {
	StartExtractRun(ctx context.Context) error
}

// Logger receives watcher diagnostics; satisfied by *log/slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

const (
	debounceDelay = 500 * time.Millisecond
	pollInterval  = 5 * time.Second
)

// Watcher monitors docRoot for changes and triggers extract runs.
type Watcher struct {
	docRoot     string
	starter     Starter
	log         Logger
	watcher     *fsnotify.Watcher
	pollingMode bool

	debounce *debouncer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a watcher for docRoot. Set GENGLOSSARY_WATCHER_FALLBACK=false
// to require fsnotify and fail New instead of silently falling back to
// polling.
func New(docRoot string, starter Starter, log Logger) (*Watcher, error) {
	w := &Watcher{docRoot: docRoot, starter: starter, log: log}
	w.debounce = newDebouncer(debounceDelay, w.trigger)

	fallbackDisabled := os.Getenv("GENGLOSSARY_WATCHER_FALLBACK") == "false" ||
		os.Getenv("GENGLOSSARY_WATCHER_FALLBACK") == "0"

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		if fallbackDisabled {
			return nil, fmt.Errorf("fsnotify.NewWatcher failed and GENGLOSSARY_WATCHER_FALLBACK is disabled: %w", err)
		}
		log.Warn("fsnotify unavailable, falling back to polling", "error", err, "interval", pollInterval)
		w.pollingMode = true
		return w, nil
	}
	w.watcher = fsw

	if err := addRecursive(fsw, docRoot); err != nil {
		_ = fsw.Close()
		if fallbackDisabled {
			return nil, fmt.Errorf("failed to watch %s and GENGLOSSARY_WATCHER_FALLBACK is disabled: %w", docRoot, err)
		}
		log.Warn("failed to watch doc_root, falling back to polling", "error", err, "interval", pollInterval)
		w.pollingMode = true
		w.watcher = nil
	}

	return w, nil
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

// Start begins monitoring in a background goroutine until ctx is done.
func (w *Watcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	if w.pollingMode {
		w.startPolling(ctx)
		return
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if event.Op&fsnotify.Create != 0 {
					if info, statErr := os.Stat(event.Name); statErr == nil && info.IsDir() {
						_ = w.watcher.Add(event.Name)
					}
				}
				w.log.Info("doc_root change detected", "path", event.Name, "op", event.Op.String())
				w.debounce.Trigger()
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.log.Warn("watcher error", "error", err)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (w *Watcher) startPolling(ctx context.Context) {
	w.log.Info("starting doc_root poll loop", "interval", pollInterval)
	seen := snapshotModTimes(w.docRoot)

	ticker := time.NewTicker(pollInterval)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				current := snapshotModTimes(w.docRoot)
				if !sameSnapshot(seen, current) {
					seen = current
					w.log.Info("doc_root change detected (polling)")
					w.debounce.Trigger()
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func snapshotModTimes(root string) map[string]time.Time {
	out := make(map[string]time.Time)
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, statErr := d.Info(); statErr == nil {
			out[path] = info.ModTime()
		}
		return nil
	})
	return out
}

func sameSnapshot(a, b map[string]time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for path, modTime := range a {
		other, ok := b[path]
		if !ok || !other.Equal(modTime) {
			return false
		}
	}
	return true
}

func (w *Watcher) trigger() {
	ctx := context.Background()
	if err := w.starter.StartExtractRun(ctx); err != nil {
		w.log.Info("skipped extract trigger from watcher", "error", err)
	}
}

// Close stops monitoring and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.debounce.Stop()
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
