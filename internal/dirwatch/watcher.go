// Package dirwatch recursively watches a set of directory trees for file
// activity. fsnotify (unlike the original monitor's watchdog.Observer)
// only watches the directories you explicitly add and reports Rename
// and Create as two independent events rather than one move(src, dst),
// so this package adds the recursion itself (walk the tree, add a watch
// per subdirectory, and extend on observed directory creation) and
// reconstructs logical moves by pairing a Rename with the Create that
// follows it within a short window: first for the same basename, else
// for the same parent directory (a rename in place).
package dirwatch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// renamePairWindow bounds how long a Rename waits for a matching
// Create before it's reported as a plain removal (moved outside any
// watched tree, or to a destination fsnotify can't see).
const renamePairWindow = 250 * time.Millisecond

// Kind categorises a reconstructed filesystem event.
type Kind int

const (
	Created Kind = iota
	Modified
	Removed
	Moved
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	case Moved:
		return "moved"
	}
	return "unknown"
}

// Event is a reconstructed, recursion-aware filesystem event.
type Event struct {
	Kind    Kind
	Path    string
	OldPath string // populated for Moved
}

// Handler receives dispatched events.
type Handler func(Event)

type pendingRename struct {
	path string
	at   time.Time
}

// Watcher recursively watches one or more directory trees.
type Watcher struct {
	fsw *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]pendingRename // basename -> rename awaiting a pair
}

// New creates a Watcher with no roots yet added.
func New() (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("dirwatch: creating watcher: %w", err)
	}
	return &Watcher{fsw: fsw, pending: make(map[string]pendingRename)}, nil
}

// AddRecursive walks root and adds a watch for every directory found,
// including root itself.
func (w *Watcher) AddRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if addErr := w.fsw.Add(path); addErr != nil {
				return fmt.Errorf("dirwatch: watching %s: %w", path, addErr)
			}
		}
		return nil
	})
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Start runs the dispatch loop until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context, handler Handler) error {
	flush := time.NewTicker(renamePairWindow)
	defer flush.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			_ = err // fsnotify errors are dropped; only events reach the handler
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.dispatch(ev, handler)
		case <-flush.C:
			w.flushStalePending(handler)
		}
	}
}

func (w *Watcher) dispatch(ev fsnotify.Event, handler Handler) {
	base := filepath.Base(ev.Name)

	switch {
	case ev.Has(fsnotify.Create):
		w.mu.Lock()
		pr, ok := w.pending[base]
		if ok {
			delete(w.pending, base)
		} else {
			// A rename in place changes the basename: fall back to a
			// pending rename from the same parent directory.
			dir := filepath.Dir(ev.Name)
			for b, p := range w.pending {
				if filepath.Dir(p.path) == dir {
					pr, ok = p, true
					delete(w.pending, b)
					break
				}
			}
		}
		w.mu.Unlock()

		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// Directory events are discarded before dispatch; only the
			// watch-extension bookkeeping happens for them.
			_ = w.AddRecursive(ev.Name)
			return
		}

		if ok {
			handler(Event{Kind: Moved, OldPath: pr.path, Path: ev.Name})
		} else {
			handler(Event{Kind: Created, Path: ev.Name})
		}

	case ev.Has(fsnotify.Write):
		handler(Event{Kind: Modified, Path: ev.Name})

	case ev.Has(fsnotify.Chmod):
		handler(Event{Kind: Modified, Path: ev.Name})

	case ev.Has(fsnotify.Rename):
		w.mu.Lock()
		w.pending[base] = pendingRename{path: ev.Name, at: time.Now()}
		w.mu.Unlock()

	case ev.Has(fsnotify.Remove):
		handler(Event{Kind: Removed, Path: ev.Name})
	}
}

func (w *Watcher) flushStalePending(handler Handler) {
	cutoff := time.Now().Add(-renamePairWindow)

	w.mu.Lock()
	var stalePaths []string
	for base, pr := range w.pending {
		if pr.at.Before(cutoff) {
			stalePaths = append(stalePaths, pr.path)
			delete(w.pending, base)
		}
	}
	w.mu.Unlock()

	for _, path := range stalePaths {
		handler(Event{Kind: Removed, Path: path})
	}
}
