// Package config provides configuration management for the haul file
// operations engine.
package config

// Default configuration values for haul.
const (
	// DefaultChunkSize is the block size for streamed copies and extractions.
	DefaultChunkSize = "64KiB"

	// DefaultHashThreshold is the size below which copies are verified by
	// full content hash. At or above it, size equality is accepted.
	DefaultHashThreshold = "10MiB"

	// DefaultWorkers is the bounded worker count for parallel batches.
	DefaultWorkers = 4

	// DefaultSequentialLimit is the batch size below which the adaptive
	// strategy always runs sequentially.
	DefaultSequentialLimit = 10

	// DefaultParallelThreshold is the batch size above which copy and move
	// batches run in parallel.
	DefaultParallelThreshold = 100

	// DefaultProbeItems is the number of items the adaptive strategy times
	// before committing to a strategy for the remainder.
	DefaultProbeItems = 5

	// DefaultProbeFastMillis is the per-item probe average, in milliseconds,
	// below which the adaptive remainder runs in parallel.
	DefaultProbeFastMillis = 100

	// DefaultMaxRenameAttempts bounds counter probing when generating an
	// available name; beyond it a timestamp suffix is used.
	DefaultMaxRenameAttempts = 100

	// DefaultFileCacheCapacity is the file-info cache capacity.
	DefaultFileCacheCapacity = 1000

	// DefaultListingCacheCapacity is the directory-listing cache capacity.
	DefaultListingCacheCapacity = 500

	// DefaultFileTTLSeconds is the file-info cache record time-to-live.
	DefaultFileTTLSeconds = 30

	// DefaultListingFreshnessSeconds is the window within which a cached
	// directory listing may be served without refreshing.
	DefaultListingFreshnessSeconds = 3
)
