package fileops

import "errors"

// Error kinds surfaced by the executor. Per-item failures inside a batch or
// recursive copy are captured into the result's error list; these sentinels
// are returned only for whole-operation failures detected before any work
// begins, or wrapped inside per-item messages.
var (
	// ErrNoSources indicates an empty source list (contract violation).
	ErrNoSources = errors.New("no source paths supplied")

	// ErrNotDirectory indicates the destination exists but is not a directory.
	ErrNotDirectory = errors.New("destination is not a directory")

	// ErrNotFound indicates a source path does not exist.
	ErrNotFound = errors.New("source path does not exist")

	// ErrDestinationConflict indicates a destination exists unexpectedly,
	// with conflict resolution bypassed.
	ErrDestinationConflict = errors.New("destination already exists")

	// ErrVerificationFailed indicates a post-copy content check mismatch.
	ErrVerificationFailed = errors.New("copy verification failed")

	// ErrCancelled indicates the operation was stopped by caller request.
	ErrCancelled = errors.New("operation cancelled")

	// ErrInvalidName indicates a rename target that is empty or contains a
	// path separator.
	ErrInvalidName = errors.New("invalid file name")
)
