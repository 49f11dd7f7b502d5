// Package engine assembles the haul file operations engine. An Engine owns
// the metadata cache, progress tracker, verifier, executor, conflict
// resolver, batch manager, archive codec, trash and watcher, wired together
// from one configuration. Callers construct an Engine explicitly with Open
// and release it with Close; there is no shared global instance.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/haulfm/haul/pkg/haul/archive"
	"github.com/haulfm/haul/pkg/haul/batch"
	"github.com/haulfm/haul/pkg/haul/cache"
	"github.com/haulfm/haul/pkg/haul/config"
	"github.com/haulfm/haul/pkg/haul/conflict"
	"github.com/haulfm/haul/pkg/haul/fileops"
	"github.com/haulfm/haul/pkg/haul/logging"
	"github.com/haulfm/haul/pkg/haul/progress"
	"github.com/haulfm/haul/pkg/haul/trash"
	"github.com/haulfm/haul/pkg/haul/types"
	"github.com/haulfm/haul/pkg/haul/verify"
	"github.com/haulfm/haul/pkg/haul/watcher"
)

// Engine is the assembled file operations engine.
type Engine struct {
	Cache    *cache.Metadata
	Tracker  *progress.Tracker
	Verifier *verify.Verifier
	Executor *fileops.Executor
	Resolver *conflict.Resolver
	Batches  *batch.Manager
	Codec    *archive.Codec
	Trash    *trash.Trash
	Watcher  *watcher.Watcher

	stopWatcher context.CancelFunc
	log         *logging.Logger
}

// Open wires an Engine from the given configuration.
func Open(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	chunkSize, err := types.ParseSize(cfg.ChunkSize)
	if err != nil {
		return nil, fmt.Errorf("invalid chunk_size: %w", err)
	}
	hashThreshold, err := types.ParseSize(cfg.Verify.HashThreshold)
	if err != nil {
		return nil, fmt.Errorf("invalid verify.hash_threshold: %w", err)
	}

	metadataCache := cache.New(cache.Options{
		FileCapacity:     cfg.Cache.FileCapacity,
		ListingCapacity:  cfg.Cache.ListingCapacity,
		FileTTL:          time.Duration(cfg.Cache.FileTTLSeconds) * time.Second,
		ListingFreshness: time.Duration(cfg.Cache.FreshnessSeconds) * time.Second,
	})
	tracker := progress.NewTracker()
	verifier := verify.New(hashThreshold)

	trashDir := cfg.Trash.Dir
	if trashDir == "" {
		trashDir = config.DefaultTrashDir()
	}
	// The index lives beside the fallback directory: <trash>/files and
	// <trash>/index.
	bin, err := trash.Open(trash.Options{
		Dir:       trashDir,
		IndexPath: filepath.Join(filepath.Dir(trashDir), "index"),
		UseSystem: cfg.Trash.UseSystem,
	})
	if err != nil {
		return nil, fmt.Errorf("opening trash: %w", err)
	}

	executor := fileops.NewExecutor(fileops.Config{
		ChunkSize: chunkSize,
		Cache:     metadataCache,
		Tracker:   tracker,
		Verifier:  verifier,
		Trash:     bin,
	})

	resolver := conflict.NewResolver(conflict.Rules{
		OverwriteNewer:    cfg.Conflict.OverwriteNewer,
		OverwriteLarger:   cfg.Conflict.OverwriteLarger,
		BackupOnOverwrite: cfg.Conflict.BackupOnOverwrite,
		MaxRenameAttempts: cfg.Conflict.MaxRenameAttempts,
	})

	batches := batch.NewManager(executor, resolver, batch.Options{
		Workers:           cfg.Batch.Workers,
		SequentialLimit:   cfg.Batch.SequentialLimit,
		ParallelThreshold: cfg.Batch.ParallelThreshold,
		ProbeItems:        cfg.Batch.ProbeItems,
		ProbeFastPerItem:  time.Duration(cfg.Batch.ProbeFastMillis) * time.Millisecond,
	})

	codec := archive.NewCodec(archive.Config{
		ChunkSize: chunkSize,
		Tracker:   tracker,
	})

	w, err := watcher.New(metadataCache)
	if err != nil {
		bin.Close()
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	watchCtx, stopWatcher := context.WithCancel(context.Background())
	go w.Run(watchCtx)

	return &Engine{
		Cache:       metadataCache,
		Tracker:     tracker,
		Verifier:    verifier,
		Executor:    executor,
		Resolver:    resolver,
		Batches:     batches,
		Codec:       codec,
		Trash:       bin,
		Watcher:     w,
		stopWatcher: stopWatcher,
		log:         logging.Get("engine"),
	}, nil
}

// Close releases the engine's resources: the watcher and the trash index.
func (e *Engine) Close() error {
	var errs []error
	if e.stopWatcher != nil {
		e.stopWatcher()
	}
	if e.Watcher != nil {
		if err := e.Watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing watcher: %w", err))
		}
	}
	if e.Trash != nil {
		if err := e.Trash.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing trash: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ListDirectory returns the entries of a directory, sorted and filtered per
// the options. Listings are served from the cache within its freshness
// window; reads populate both the listing and file-info caches.
func (e *Engine) ListDirectory(path string, opts cache.ListOptions) ([]types.FileEntry, error) {
	if cached, ok := e.Cache.GetListing(path, opts); ok {
		return cached, nil
	}

	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory %q: %w", path, err)
	}

	entries := make([]types.FileEntry, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if !opts.ShowHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if opts.Pattern != "" {
			matched, matchErr := filepath.Match(opts.Pattern, name)
			if matchErr != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", opts.Pattern, matchErr)
			}
			if !matched {
				continue
			}
		}

		info, infoErr := de.Info()
		if infoErr != nil {
			// Entry vanished between ReadDir and stat.
			continue
		}
		entry := types.NewFileEntry(filepath.Join(path, name), info)
		entries = append(entries, entry)
		e.Cache.Put(entry.Path, entry)
	}

	sortEntries(entries, opts)
	e.Cache.PutListing(path, opts, entries)

	// Listed directories get a watch so external changes invalidate the
	// cached listing before its freshness window expires.
	if e.Watcher != nil {
		if watchErr := e.Watcher.WatchDir(path); watchErr != nil {
			e.log.Debug("watch registration failed", "path", path, "error", watchErr)
		}
	}
	return entries, nil
}

// sortEntries orders a listing: directories always first, then by the
// requested key, name as the tie-breaker. Reverse flips the key order but
// keeps directories grouped ahead of files.
func sortEntries(entries []types.FileEntry, opts cache.ListOptions) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		if opts.Reverse {
			a, b = b, a
		}
		switch opts.SortBy {
		case cache.SortBySize:
			if a.Size != b.Size {
				return a.Size < b.Size
			}
		case cache.SortByTime:
			if !a.ModTime.Equal(b.ModTime) {
				return a.ModTime.Before(b.ModTime)
			}
		case cache.SortByKind:
			if a.Kind != b.Kind {
				return a.Kind < b.Kind
			}
		}
		return filepath.Base(a.Path) < filepath.Base(b.Path)
	})
}

// Stat returns the FileEntry for a path, served from the cache when fresh.
func (e *Engine) Stat(path string) (types.FileEntry, error) {
	if entry, ok := e.Cache.Get(path); ok {
		return entry, nil
	}

	info, err := os.Lstat(path)
	if err != nil {
		return types.FileEntry{}, err
	}
	entry := types.NewFileEntry(path, info)
	e.Cache.Put(path, entry)
	return entry, nil
}
