package cache

import (
	"fmt"
	"testing"
	"time"

	"github.com/haulfm/haul/pkg/haul/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, opts Options) *Metadata {
	t.Helper()
	return New(opts)
}

func TestGetPut(t *testing.T) {
	c := newTestCache(t, Options{})

	_, ok := c.Get("/a/b.txt")
	assert.False(t, ok, "miss on empty cache")

	entry := types.FileEntry{Path: "/a/b.txt", Size: 42}
	c.Put("/a/b.txt", entry)

	got, ok := c.Get("/a/b.txt")
	require.True(t, ok)
	assert.Equal(t, entry, got)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t, Options{FileTTL: 20 * time.Millisecond})
	c.Put("/stale", types.FileEntry{Path: "/stale"})

	_, ok := c.Get("/stale")
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)

	_, ok = c.Get("/stale")
	assert.False(t, ok, "expired record must not be returned")
}

func TestLRUEviction(t *testing.T) {
	c := newTestCache(t, Options{FileCapacity: 3})

	for i := 0; i < 3; i++ {
		path := fmt.Sprintf("/f%d", i)
		c.Put(path, types.FileEntry{Path: path})
	}

	// Touch /f0 so /f1 becomes least recently used.
	_, ok := c.Get("/f0")
	require.True(t, ok)

	c.Put("/f3", types.FileEntry{Path: "/f3"})

	_, ok = c.Get("/f1")
	assert.False(t, ok, "least recently used record should be evicted")
	_, ok = c.Get("/f0")
	assert.True(t, ok)
	_, ok = c.Get("/f3")
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, 3, stats.FileSize)
	assert.Equal(t, 3, stats.FileCapacity)
}

func TestListingCache(t *testing.T) {
	c := newTestCache(t, Options{})

	opts := ListOptions{SortBy: SortByName}
	_, ok := c.GetListing("/dir", opts)
	assert.False(t, ok)

	entries := []types.FileEntry{{Path: "/dir/a"}, {Path: "/dir/b"}}
	c.PutListing("/dir", opts, entries)

	got, ok := c.GetListing("/dir", opts)
	require.True(t, ok)
	assert.Equal(t, entries, got)

	// Different options are independent cache slots.
	_, ok = c.GetListing("/dir", ListOptions{SortBy: SortBySize})
	assert.False(t, ok)
	_, ok = c.GetListing("/dir", ListOptions{SortBy: SortByName, ShowHidden: true})
	assert.False(t, ok)
}

func TestListingFreshnessWindow(t *testing.T) {
	c := newTestCache(t, Options{ListingFreshness: 20 * time.Millisecond})

	opts := ListOptions{SortBy: SortByName}
	c.PutListing("/dir", opts, []types.FileEntry{{Path: "/dir/a"}})

	time.Sleep(40 * time.Millisecond)

	_, ok := c.GetListing("/dir", opts)
	assert.False(t, ok, "listing beyond freshness window must be refreshed")
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(t, Options{})

	c.Put("/dir/f.txt", types.FileEntry{Path: "/dir/f.txt"})
	c.PutListing("/dir", ListOptions{SortBy: SortByName}, []types.FileEntry{{Path: "/dir/f.txt"}})
	c.PutListing("/dir", ListOptions{SortBy: SortBySize}, []types.FileEntry{{Path: "/dir/f.txt"}})
	c.PutListing("/other", ListOptions{SortBy: SortByName}, []types.FileEntry{})

	c.Invalidate("/dir/f.txt")
	_, ok := c.Get("/dir/f.txt")
	assert.False(t, ok)

	// Invalidating the directory drops all listing variants for it.
	c.Invalidate("/dir")
	_, ok = c.GetListing("/dir", ListOptions{SortBy: SortByName})
	assert.False(t, ok)
	_, ok = c.GetListing("/dir", ListOptions{SortBy: SortBySize})
	assert.False(t, ok)

	// Unrelated listings survive.
	_, ok = c.GetListing("/other", ListOptions{SortBy: SortByName})
	assert.True(t, ok)
}

func TestInvalidateAll(t *testing.T) {
	c := newTestCache(t, Options{})

	c.Put("/a", types.FileEntry{Path: "/a"})
	c.PutListing("/dir", ListOptions{}, []types.FileEntry{})

	c.InvalidateAll()

	stats := c.Stats()
	assert.Equal(t, 0, stats.FileSize)
	assert.Equal(t, 0, stats.ListingSize)
}

func TestPutUpdatesExisting(t *testing.T) {
	c := newTestCache(t, Options{FileCapacity: 2})

	c.Put("/a", types.FileEntry{Path: "/a", Size: 1})
	c.Put("/a", types.FileEntry{Path: "/a", Size: 2})

	got, ok := c.Get("/a")
	require.True(t, ok)
	assert.Equal(t, int64(2), got.Size)
	assert.Equal(t, 1, c.Stats().FileSize)
}

func TestConcurrentAccess(t *testing.T) {
	c := newTestCache(t, Options{FileCapacity: 100})

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func(g int) {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 200; i++ {
				path := fmt.Sprintf("/g%d/f%d", g, i%50)
				c.Put(path, types.FileEntry{Path: path})
				c.Get(path)
				if i%17 == 0 {
					c.Invalidate(path)
				}
			}
		}(g)
	}
	for g := 0; g < 8; g++ {
		<-done
	}
}
