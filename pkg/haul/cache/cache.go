// Package cache provides the bounded, time-aware metadata cache for the
// haul engine. It holds two cache classes: a file-info cache mapping a path
// to its last-known FileEntry, and a directory-listing cache keyed by
// (path, listing options). Both are capacity-bounded with least-recently-used
// eviction and per-record expiry.
//
// The cache is the only state shared across concurrent callers; a single
// mutex per cache instance guards all access.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/haulfm/haul/pkg/haul/types"
)

// KeySeparator separates the directory path from the option fingerprint in
// listing cache keys.
const KeySeparator = '\x00'

// SortType selects the ordering of a directory listing.
type SortType string

// Supported listing sort orders.
const (
	SortByName SortType = "name"
	SortBySize SortType = "size"
	SortByTime SortType = "time"
	SortByKind SortType = "kind"
)

// ListOptions parameterizes a directory listing. Two listings of the same
// path with different options are cached independently.
type ListOptions struct {
	ShowHidden bool
	SortBy     SortType
	Reverse    bool
	Pattern    string
}

// fingerprint renders the options into a stable cache key component.
func (o ListOptions) fingerprint() string {
	var b strings.Builder
	if o.ShowHidden {
		b.WriteString("h1:")
	} else {
		b.WriteString("h0:")
	}
	b.WriteString(string(o.SortBy))
	if o.Reverse {
		b.WriteString(":r")
	}
	if o.Pattern != "" {
		b.WriteString(":")
		b.WriteString(o.Pattern)
	}
	return b.String()
}

// listingKey builds the listing cache key for a path and options.
func listingKey(path string, opts ListOptions) string {
	return path + string(KeySeparator) + opts.fingerprint()
}

// Stats reports the occupancy of both cache classes.
type Stats struct {
	FileSize        int
	FileCapacity    int
	ListingSize     int
	ListingCapacity int
}

// Options configures a Metadata cache.
type Options struct {
	// FileCapacity bounds the file-info cache.
	FileCapacity int

	// ListingCapacity bounds the directory-listing cache.
	ListingCapacity int

	// FileTTL is the maximum age of a file-info record.
	FileTTL time.Duration

	// ListingFreshness is the window within which a cached listing may be
	// served. Older listings are treated as misses.
	ListingFreshness time.Duration
}

// Validate applies defaults for zero or invalid values.
func (o *Options) Validate() {
	if o.FileCapacity <= 0 {
		o.FileCapacity = 1000
	}
	if o.ListingCapacity <= 0 {
		o.ListingCapacity = 500
	}
	if o.FileTTL <= 0 {
		o.FileTTL = 30 * time.Second
	}
	if o.ListingFreshness <= 0 {
		o.ListingFreshness = 3 * time.Second
	}
}

// Metadata is the engine's metadata cache.
type Metadata struct {
	mu       sync.Mutex
	files    *lruCache[types.FileEntry]
	listings *lruCache[[]types.FileEntry]
}

// New creates a Metadata cache with the given options.
func New(opts Options) *Metadata {
	opts.Validate()
	return &Metadata{
		files:    newLRUCache[types.FileEntry](opts.FileCapacity, opts.FileTTL),
		listings: newLRUCache[[]types.FileEntry](opts.ListingCapacity, opts.ListingFreshness),
	}
}

// Get returns the cached FileEntry for a path. Expired records are misses.
func (m *Metadata) Get(path string) (types.FileEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files.get(path)
}

// Put stores the FileEntry for a path.
func (m *Metadata) Put(path string, entry types.FileEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files.put(path, entry)
}

// GetListing returns the cached directory listing for (path, opts) if it is
// still within the freshness window.
func (m *Metadata) GetListing(path string, opts ListOptions) ([]types.FileEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listings.get(listingKey(path, opts))
}

// PutListing stores a directory listing for (path, opts).
func (m *Metadata) PutListing(path string, opts ListOptions, entries []types.FileEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings.put(listingKey(path, opts), entries)
}

// Invalidate drops the file-info record for a path and every cached listing
// of that path. Callers that mutate a path must also invalidate its parent
// directory so stale listings are not served.
func (m *Metadata) Invalidate(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files.remove(path)

	prefix := path + string(KeySeparator)
	m.listings.removeFunc(func(key string) bool {
		return strings.HasPrefix(key, prefix)
	})
}

// InvalidateAll empties both cache classes.
func (m *Metadata) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files.clear()
	m.listings.clear()
}

// Stats returns current occupancy and capacity for both cache classes.
func (m *Metadata) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		FileSize:        m.files.len(),
		FileCapacity:    m.files.capacity,
		ListingSize:     m.listings.len(),
		ListingCapacity: m.listings.capacity,
	}
}
