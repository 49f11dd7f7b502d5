package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulfm/haul/pkg/haul/cache"
	"github.com/haulfm/haul/pkg/haul/types"
)

func newWatcher(t *testing.T) (*Watcher, *cache.Metadata) {
	t.Helper()
	c := cache.New(cache.Options{})
	w, err := New(c)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w, c
}

// waitFor drains events until the predicate matches or the timeout fires.
func waitFor(t *testing.T, ch <-chan Event, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				t.Fatal("event channel closed before expected event")
			}
			if match(e) {
				return e
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestWatchTracksSubdirectories(t *testing.T) {
	w, _ := newWatcher(t)
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	require.NoError(t, w.Watch(dir))

	w.mu.Lock()
	assert.True(t, w.paths[dir])
	assert.True(t, w.paths[sub])
	w.mu.Unlock()
}

func TestWatchDirIsNotRecursive(t *testing.T) {
	w, _ := newWatcher(t)
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	require.NoError(t, w.WatchDir(dir))

	w.mu.Lock()
	assert.True(t, w.paths[dir])
	assert.False(t, w.paths[sub])
	w.mu.Unlock()
}

func TestWatchNonDirectoryIsNoOp(t *testing.T) {
	w, _ := newWatcher(t)
	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	require.NoError(t, w.Watch(file))

	w.mu.Lock()
	assert.Empty(t, w.paths)
	w.mu.Unlock()
}

func TestCreateEventInvalidatesCachedListing(t *testing.T) {
	w, c := newWatcher(t)
	dir := t.TempDir()
	require.NoError(t, w.Watch(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	events, unsubscribe := w.Subscribe(16)
	defer unsubscribe()

	// Prime the cache with a listing for the watched directory.
	c.PutListing(dir, cache.ListOptions{}, []types.FileEntry{})
	_, ok := c.GetListing(dir, cache.ListOptions{})
	require.True(t, ok)

	newFile := filepath.Join(dir, "appeared.txt")
	require.NoError(t, os.WriteFile(newFile, []byte("external write"), 0o644))

	waitFor(t, events, func(e Event) bool {
		return e.Path == newFile && e.Kind == EventCreated
	})

	_, ok = c.GetListing(dir, cache.ListOptions{})
	assert.False(t, ok, "listing should be invalidated after external create")
}

func TestRemoveEventObserved(t *testing.T) {
	w, _ := newWatcher(t)
	dir := t.TempDir()
	victim := filepath.Join(dir, "victim.txt")
	require.NoError(t, os.WriteFile(victim, []byte("x"), 0o644))
	require.NoError(t, w.Watch(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	events, unsubscribe := w.Subscribe(16)
	defer unsubscribe()

	require.NoError(t, os.Remove(victim))

	e := waitFor(t, events, func(e Event) bool { return e.Path == victim })
	assert.Equal(t, EventRemoved, e.Kind)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	w, _ := newWatcher(t)
	events, unsubscribe := w.Subscribe(1)
	unsubscribe()

	_, ok := <-events
	assert.False(t, ok)
}

func TestCloseIdempotent(t *testing.T) {
	w, _ := newWatcher(t)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}

func TestUnwatchDropsSubtree(t *testing.T) {
	w, _ := newWatcher(t)
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested", "deep")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, w.Watch(dir))

	w.Unwatch(dir)

	w.mu.Lock()
	assert.Empty(t, w.paths)
	w.mu.Unlock()
}
