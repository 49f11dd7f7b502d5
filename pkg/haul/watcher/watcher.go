// Package watcher provides filesystem watching that keeps the metadata
// cache honest about external changes. Events on watched directories
// invalidate the affected cache records and fan out to subscribers.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/haulfm/haul/pkg/haul/cache"
	"github.com/haulfm/haul/pkg/haul/logging"
)

// EventKind classifies a filesystem change.
type EventKind string

// Event kinds.
const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventRemoved  EventKind = "removed"
)

// Event is one observed filesystem change.
type Event struct {
	Path string
	Kind EventKind
}

// Watcher watches directories and invalidates the metadata cache when
// their contents change outside the engine.
type Watcher struct {
	cache   *cache.Metadata
	watcher *fsnotify.Watcher
	log     *logging.Logger

	mu     sync.Mutex
	paths  map[string]bool
	subs   map[int]chan Event
	nextID int
	closed bool
}

// New creates a Watcher invalidating the given cache.
func New(c *cache.Metadata) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		cache:   c,
		watcher: fsw,
		log:     logging.Get("watcher"),
		paths:   make(map[string]bool),
		subs:    make(map[int]chan Event),
	}, nil
}

// Watch starts watching a directory tree. Symlinks are not followed.
func (w *Watcher) Watch(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	info, err := os.Lstat(absRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	return filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			return w.addWatch(path)
		}
		return nil
	})
}

// WatchDir starts watching a single directory without descending into its
// subtree. Non-directories are ignored.
func (w *Watcher) WatchDir(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	info, err := os.Lstat(absDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}
	return w.addWatch(absDir)
}

// Unwatch stops watching a directory tree.
func (w *Watcher) Unwatch(root string) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}

	for path := range w.paths {
		if path == absRoot || isSubPath(path, absRoot) {
			_ = w.watcher.Remove(path)
			delete(w.paths, path)
		}
	}
}

// Subscribe registers an event channel and returns an unsubscribe
// function. Slow subscribers drop events rather than blocking the loop.
func (w *Watcher) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	w.mu.Lock()
	id := w.nextID
	w.nextID++
	w.subs[id] = ch
	w.mu.Unlock()

	return ch, func() {
		w.mu.Lock()
		if sub, ok := w.subs[id]; ok {
			delete(w.subs, id)
			close(sub)
		}
		w.mu.Unlock()
	}
}

// Run processes events until the context is cancelled or the watcher is
// closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error("watch error", "error", err)
		}
	}
}

// Close releases the watcher and all subscriber channels.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.paths = make(map[string]bool)
	for id, ch := range w.subs {
		delete(w.subs, id)
		close(ch)
	}
	return w.watcher.Close()
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}
	if err := w.watcher.Add(path); err != nil {
		w.log.Warn("failed to add watch", "path", path, "error", err)
		return err
	}
	w.paths[path] = true
	return nil
}

// handleEvent invalidates cache records for the changed path and its
// parent listing, then notifies subscribers. Renames surface as removals;
// the new name arrives as its own create event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	var kind EventKind
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = EventCreated
		w.handleCreate(event.Name)
	case event.Op&fsnotify.Write != 0:
		kind = EventModified
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		kind = EventRemoved
		w.dropWatches(event.Name)
	default:
		return
	}

	if w.cache != nil {
		w.cache.Invalidate(event.Name)
		w.cache.Invalidate(filepath.Dir(event.Name))
	}
	w.notify(Event{Path: event.Name, Kind: kind})
}

// handleCreate extends the watch set when new directories appear, covering
// any subtree created in one burst.
func (w *Watcher) handleCreate(path string) {
	info, err := os.Lstat(path)
	if err != nil || info.Mode()&fs.ModeSymlink != 0 || !info.IsDir() {
		return
	}

	_ = w.addWatch(path)
	_ = filepath.WalkDir(path, func(subpath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() && subpath != path {
			_ = w.addWatch(subpath)
		}
		return nil
	})
}

// dropWatches removes the watch for a deleted directory and its children.
func (w *Watcher) dropWatches(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.paths[path] {
		_ = w.watcher.Remove(path)
		delete(w.paths, path)
	}
	for child := range w.paths {
		if isSubPath(child, path) {
			_ = w.watcher.Remove(child)
			delete(w.paths, child)
		}
	}
}

func (w *Watcher) notify(e Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, ch := range w.subs {
		select {
		case ch <- e:
		default:
			// Subscriber buffer full; drop rather than block.
		}
	}
}

// isSubPath reports whether path is under parent.
func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
