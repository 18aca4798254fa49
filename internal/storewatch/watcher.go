// Package storewatch notices when another process rewrites the local task
// store so that in-memory snapshots can be dropped.
package storewatch

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceInterval is the quiet period after the last event before the
// watched files are re-hashed.
const DebounceInterval = 100 * time.Millisecond

type Watcher struct {
	dir      string
	names    map[string]bool
	onChange func()
	ready    chan struct{}

	mu     sync.Mutex
	hashes map[string][sha256.Size]byte
}

// New watches the files names inside dir and calls onChange whenever the
// content of one of them changes.
func New(dir string, onChange func(), names ...string) *Watcher {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return &Watcher{
		dir:      dir,
		names:    set,
		onChange: onChange,
		ready:    make(chan struct{}),
		hashes:   make(map[string][sha256.Size]byte),
	}
}

// Ready is closed once the directory is being watched.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", w.dir, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// The store replaces files by rename, so the directory is watched
	// rather than the files.
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	for name := range w.names {
		w.changed(name)
	}
	close(w.ready)
	slog.DebugContext(ctx, "watching local store", "dir", w.dir)

	// check runs on this goroutine so onChange never fires after Run returns.
	var debounce *time.Timer
	var fire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-fire:
			fire = nil
			w.check()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !w.names[filepath.Base(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(DebounceInterval)
			} else {
				debounce.Reset(DebounceInterval)
			}
			fire = debounce.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.WarnContext(ctx, "local store watcher error", "error", err)
		}
	}
}

func (w *Watcher) check() {
	changed := false
	for name := range w.names {
		if w.changed(name) {
			changed = true
		}
	}
	if changed && w.onChange != nil {
		slog.Debug("local store changed on disk", "dir", w.dir)
		w.onChange()
	}
}

// changed re-hashes name and reports whether it differs from the last hash.
func (w *Watcher) changed(name string) bool {
	var sum [sha256.Size]byte
	data, err := os.ReadFile(filepath.Join(w.dir, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to read watched file", "name", name, "error", err)
		return false
	}
	if err == nil {
		sum = sha256.Sum256(data)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	prev, seen := w.hashes[name]
	w.hashes[name] = sum
	return seen && prev != sum
}
