// Package fileops implements the file operation executor for the haul
// engine: copy, move, delete and rename against single paths or recursive
// trees. Copies are streamed in fixed-size chunks with per-chunk progress
// updates and cancellation checks, verified after transfer, and never leave
// a truncated file at the destination. Moves take a rename-only fast path
// when source and destination share a storage volume.
package fileops

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/haulfm/haul/pkg/haul/cache"
	"github.com/haulfm/haul/pkg/haul/logging"
	"github.com/haulfm/haul/pkg/haul/progress"
	"github.com/haulfm/haul/pkg/haul/trash"
	"github.com/haulfm/haul/pkg/haul/types"
	"github.com/haulfm/haul/pkg/haul/verify"
)

// DefaultChunkSize is the streaming block size when none is configured.
const DefaultChunkSize = 64 * types.KiB

// Config wires an Executor's collaborators.
type Config struct {
	// ChunkSize is the streaming block size in bytes.
	ChunkSize int64

	// Cache receives invalidations for every mutated path. Optional.
	Cache *cache.Metadata

	// Tracker records operation progress. Required.
	Tracker *progress.Tracker

	// Verifier confirms copy integrity. Required.
	Verifier *verify.Verifier

	// Trash receives recoverable deletions. Optional; when nil, delete is
	// always permanent.
	Trash *trash.Trash
}

// Executor performs file operations.
type Executor struct {
	chunkSize int64
	cache     *cache.Metadata
	tracker   *progress.Tracker
	verifier  *verify.Verifier
	trash     *trash.Trash
	log       *logging.Logger

	// bytesCopied counts payload bytes physically transferred, exposed for
	// instrumentation. Fast-path moves do not increment it.
	bytesCopied atomic.Int64
}

// NewExecutor creates an Executor from the given configuration.
func NewExecutor(cfg Config) *Executor {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &Executor{
		chunkSize: chunk,
		cache:     cfg.Cache,
		tracker:   cfg.Tracker,
		verifier:  cfg.Verifier,
		trash:     cfg.Trash,
		log:       logging.Get("fileops"),
	}
}

// BytesCopied returns the total payload bytes physically transferred by
// this executor since creation.
func (e *Executor) BytesCopied() int64 {
	return e.bytesCopied.Load()
}

// Tracker exposes the executor's progress tracker so callers can register
// observers or cancel operations by id.
func (e *Executor) Tracker() *progress.Tracker {
	return e.tracker
}

// Copy copies each source (file or directory tree) into the destination
// directory. Per-item failures are aggregated; unaffected items still
// succeed. Returns an error only for whole-operation contract violations.
func (e *Executor) Copy(ctx context.Context, sources []string, destDir string, cb progress.Callback) (types.OperationResult, error) {
	if len(sources) == 0 {
		return types.OperationResult{}, ErrNoSources
	}
	if err := ensureDirectory(destDir); err != nil {
		return types.OperationResult{}, err
	}

	totalFiles, totalBytes := e.measure(sources)

	id := progress.NewID(types.OpCopy)
	e.tracker.Create(id, types.OpCopy, totalFiles, totalBytes)
	defer e.tracker.Remove(id)
	if cb != nil {
		e.tracker.AddCallback(id, cb)
	}
	e.tracker.Start(id)
	start := time.Now()

	var affected, errs []string
	cancelled := false

	for _, source := range sources {
		if e.stopRequested(ctx, id) {
			cancelled = true
			break
		}

		info, err := os.Lstat(source)
		if err != nil {
			errs = append(errs, fmt.Sprintf("copy %s: %v", source, ErrNotFound))
			e.tracker.Updates(id, progress.Update{Error: ErrNotFound.Error()})
			continue
		}

		dest := filepath.Join(destDir, filepath.Base(source))
		if info.IsDir() {
			copied, dirErrs, dirCancelled := e.copyTree(ctx, id, source, dest)
			affected = append(affected, copied...)
			errs = append(errs, dirErrs...)
			if dirCancelled {
				cancelled = true
				break
			}
		} else {
			if err := e.copyFile(ctx, id, source, dest); err != nil {
				if isCancel(err) {
					cancelled = true
					break
				}
				errs = append(errs, fmt.Sprintf("copy %s: %v", source, err))
				e.tracker.Updates(id, progress.Update{Error: err.Error()})
				continue
			}
			affected = append(affected, dest)
		}
	}

	e.invalidate(destDir)
	return e.finish(id, types.OpCopy, start, affected, errs, cancelled), nil
}

// Move moves each source into the destination directory, using a
// metadata-only rename when both sides share a storage volume and falling
// back to verified copy-then-delete otherwise.
func (e *Executor) Move(ctx context.Context, sources []string, destDir string, cb progress.Callback) (types.OperationResult, error) {
	if len(sources) == 0 {
		return types.OperationResult{}, ErrNoSources
	}
	if err := ensureDirectory(destDir); err != nil {
		return types.OperationResult{}, err
	}

	totalFiles, totalBytes := e.measure(sources)

	id := progress.NewID(types.OpMove)
	e.tracker.Create(id, types.OpMove, totalFiles, totalBytes)
	defer e.tracker.Remove(id)
	if cb != nil {
		e.tracker.AddCallback(id, cb)
	}
	e.tracker.Start(id)
	start := time.Now()

	var affected, errs []string
	cancelled := false

	for _, source := range sources {
		if e.stopRequested(ctx, id) {
			cancelled = true
			break
		}

		info, err := os.Lstat(source)
		if err != nil {
			errs = append(errs, fmt.Sprintf("move %s: %v", source, ErrNotFound))
			e.tracker.Updates(id, progress.Update{Error: ErrNotFound.Error()})
			continue
		}

		dest := filepath.Join(destDir, filepath.Base(source))

		if SameVolume(source, destDir) {
			if err := os.Rename(source, dest); err != nil {
				errs = append(errs, fmt.Sprintf("move %s: %v", source, err))
				e.tracker.Updates(id, progress.Update{Error: err.Error()})
				continue
			}
			var size int64
			if !info.IsDir() {
				size = info.Size()
			}
			e.tracker.Updates(id, progress.Update{AddFiles: 1, AddBytes: size, CurrentItem: source})
			e.invalidate(source)
			e.invalidate(dest)
			affected = append(affected, dest)
			continue
		}

		// Cross-volume: verified copy, then remove the source.
		var moveErrs []string
		if info.IsDir() {
			copied, dirErrs, dirCancelled := e.copyTree(ctx, id, source, dest)
			moveErrs = dirErrs
			if dirCancelled {
				cancelled = true
				break
			}
			if len(dirErrs) == 0 {
				affected = append(affected, copied...)
			}
		} else {
			if err := e.copyFile(ctx, id, source, dest); err != nil {
				if isCancel(err) {
					cancelled = true
					break
				}
				moveErrs = []string{fmt.Sprintf("move %s: %v", source, err)}
			} else {
				affected = append(affected, dest)
			}
		}

		if len(moveErrs) > 0 {
			errs = append(errs, moveErrs...)
			continue
		}
		if err := os.RemoveAll(source); err != nil {
			errs = append(errs, fmt.Sprintf("move %s: removing source: %v", source, err))
			continue
		}
		e.invalidate(source)
	}

	e.invalidate(destDir)
	return e.finish(id, types.OpMove, start, affected, errs, cancelled), nil
}

// DeleteOptions configures Delete.
type DeleteOptions struct {
	// Permanent bypasses the trash and removes the paths outright.
	Permanent bool
}

// Delete removes each path, recursively for directories. By default items
// go to the trash; Permanent removes them outright. Deleting a missing path
// is an idempotent no-op.
func (e *Executor) Delete(ctx context.Context, paths []string, opts DeleteOptions, cb progress.Callback) (types.OperationResult, error) {
	if len(paths) == 0 {
		return types.OperationResult{}, ErrNoSources
	}

	totalFiles, totalBytes := e.measure(paths)

	id := progress.NewID(types.OpDelete)
	e.tracker.Create(id, types.OpDelete, totalFiles, totalBytes)
	defer e.tracker.Remove(id)
	if cb != nil {
		e.tracker.AddCallback(id, cb)
	}
	e.tracker.Start(id)
	start := time.Now()

	var affected, errs []string
	cancelled := false

	for _, path := range paths {
		if e.stopRequested(ctx, id) {
			cancelled = true
			break
		}

		if _, err := os.Lstat(path); os.IsNotExist(err) {
			// Idempotent: deleting a missing path succeeds with no effect.
			continue
		}

		var err error
		if opts.Permanent || e.trash == nil {
			err = os.RemoveAll(path)
		} else {
			_, err = e.trash.Put(path)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("delete %s: %v", path, err))
			e.tracker.Updates(id, progress.Update{Error: err.Error()})
			continue
		}

		e.tracker.Updates(id, progress.Update{AddFiles: 1, CurrentItem: path})
		e.invalidate(path)
		affected = append(affected, path)
	}

	return e.finish(id, types.OpDelete, start, affected, errs, cancelled), nil
}

// Rename renames a single file or directory within its parent. The new name
// must be non-empty, free of path separators, and not already taken.
func (e *Executor) Rename(oldPath, newName string) (types.OperationResult, error) {
	if newName == "" || strings.ContainsAny(newName, `/\`) {
		return types.OperationResult{}, fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}
	if _, err := os.Lstat(oldPath); err != nil {
		return types.OperationResult{}, fmt.Errorf("%w: %s", ErrNotFound, oldPath)
	}

	newPath := filepath.Join(filepath.Dir(oldPath), newName)
	if _, err := os.Lstat(newPath); err == nil {
		return types.OperationResult{}, fmt.Errorf("%w: %s", ErrDestinationConflict, newPath)
	}

	start := time.Now()
	if err := os.Rename(oldPath, newPath); err != nil {
		return types.OperationResult{}, fmt.Errorf("rename %s: %w", oldPath, err)
	}

	e.invalidate(oldPath)
	e.invalidate(newPath)

	return types.OperationResult{
		Success:       true,
		Message:       fmt.Sprintf("Renamed %q to %q", filepath.Base(oldPath), newName),
		AffectedFiles: []string{newPath},
		Progress:      100,
		Duration:      time.Since(start),
	}, nil
}

// copyFile streams one file to dest in chunks, checking for cancellation
// between chunks. On cancellation or verification failure the partial
// destination is removed. Source metadata is preserved on success. A
// destination already identical to the source short-circuits as a no-op
// success.
func (e *Executor) copyFile(ctx context.Context, id, source, dest string) error {
	if _, err := os.Lstat(dest); err == nil {
		if ok, err := e.verifier.Verify(source, dest); err == nil && ok {
			info, statErr := os.Lstat(source)
			if statErr == nil {
				e.tracker.Updates(id, progress.Update{AddFiles: 1, AddBytes: info.Size(), CurrentItem: source})
			}
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("creating destination directory: %w", err)
	}

	src, err := os.Open(source)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}

	buf := make([]byte, e.chunkSize)
	for {
		if e.stopRequested(ctx, id) {
			dst.Close()
			os.Remove(dest)
			return ErrCancelled
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				dst.Close()
				os.Remove(dest)
				return fmt.Errorf("writing %s: %w", dest, writeErr)
			}
			e.bytesCopied.Add(int64(n))
			e.tracker.Updates(id, progress.Update{AddBytes: int64(n), CurrentItem: source})
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			dst.Close()
			os.Remove(dest)
			return fmt.Errorf("reading %s: %w", source, readErr)
		}
	}
	if err := dst.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("closing %s: %w", dest, err)
	}

	ok, err := e.verifier.Verify(source, dest)
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("verifying %s: %w", dest, err)
	}
	if !ok {
		os.Remove(dest)
		return ErrVerificationFailed
	}

	if info, err := os.Stat(source); err == nil {
		_ = os.Chmod(dest, info.Mode().Perm())
		_ = os.Chtimes(dest, info.ModTime(), info.ModTime())
	}

	e.tracker.Updates(id, progress.Update{AddFiles: 1})
	e.invalidate(dest)
	return nil
}

// copyTree recursively copies a directory, creating destination directories
// before their contents. Per-file failures do not abort siblings.
func (e *Executor) copyTree(ctx context.Context, id, source, dest string) (affected, errs []string, cancelled bool) {
	walkErr := filepath.WalkDir(source, func(path string, d os.DirEntry, err error) error {
		if e.stopRequested(ctx, id) {
			cancelled = true
			return filepath.SkipAll
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("walk %s: %v", path, err))
			return nil
		}

		rel, relErr := filepath.Rel(source, path)
		if relErr != nil {
			errs = append(errs, fmt.Sprintf("walk %s: %v", path, relErr))
			return nil
		}
		target := filepath.Join(dest, rel)

		if d.IsDir() {
			if mkErr := os.MkdirAll(target, 0o755); mkErr != nil {
				errs = append(errs, fmt.Sprintf("mkdir %s: %v", target, mkErr))
				return filepath.SkipDir
			}
			return nil
		}

		if cpErr := e.copyFile(ctx, id, path, target); cpErr != nil {
			if isCancel(cpErr) {
				cancelled = true
				return filepath.SkipAll
			}
			errs = append(errs, fmt.Sprintf("copy %s: %v", path, cpErr))
			e.tracker.Updates(id, progress.Update{Error: cpErr.Error()})
			return nil
		}
		affected = append(affected, target)
		return nil
	})
	if walkErr != nil {
		errs = append(errs, fmt.Sprintf("walk %s: %v", source, walkErr))
	}
	e.invalidate(dest)
	return affected, errs, cancelled
}

// finish settles the tracker state and builds the uniform result.
func (e *Executor) finish(id string, kind types.OperationType, start time.Time, affected, errs []string, cancelled bool) types.OperationResult {
	success := len(errs) == 0 && !cancelled
	if cancelled {
		e.tracker.Cancel(id)
	} else {
		e.tracker.Complete(id, success)
	}

	snapshot, _ := e.tracker.Get(id)

	message := fmt.Sprintf("%s completed: %d items", kind, len(affected))
	switch {
	case cancelled:
		message = fmt.Sprintf("%s cancelled after %d items", kind, len(affected))
	case len(errs) > 0:
		message = fmt.Sprintf("%s completed with %d errors", kind, len(errs))
	}

	return types.OperationResult{
		Success:        success,
		Message:        message,
		AffectedFiles:  affected,
		Errors:         errs,
		Progress:       snapshot.Percent(),
		Duration:       time.Since(start),
		BytesProcessed: snapshot.ProcessedBytes,
	}
}

// stopRequested reports whether the context is done or the operation has
// been cancelled through the tracker.
func (e *Executor) stopRequested(ctx context.Context, id string) bool {
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	return e.tracker.Cancelled(id)
}

// invalidate drops cache records for a path and its parent's listings.
func (e *Executor) invalidate(path string) {
	if e.cache == nil {
		return
	}
	e.cache.Invalidate(path)
	e.cache.Invalidate(filepath.Dir(path))
}

// ensureDirectory creates destDir if needed and verifies it is a directory.
func ensureDirectory(destDir string) error {
	if destDir == "" {
		return ErrNotDirectory
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	info, err := os.Stat(destDir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	return nil
}

func isCancel(err error) bool {
	return err == ErrCancelled || err == context.Canceled || err == context.DeadlineExceeded
}
