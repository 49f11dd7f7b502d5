package fileops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haulfm/haul/pkg/haul/progress"
)

// Per-pair entry points used by batch orchestration, where the destination
// path is explicit (possibly adjusted by conflict resolution) rather than
// derived from a destination directory. Progress is reported against the
// caller-owned operation id.

// CopyTo copies a single source file or tree to an explicit destination
// path under an existing tracker operation.
func (e *Executor) CopyTo(ctx context.Context, id, source, dest string) error {
	info, err := os.Lstat(source)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, source)
	}

	if info.IsDir() {
		_, errs, cancelled := e.copyTree(ctx, id, source, dest)
		if cancelled {
			return ErrCancelled
		}
		if len(errs) > 0 {
			return errors.New(errs[0])
		}
		return nil
	}
	return e.copyFile(ctx, id, source, dest)
}

// MoveTo moves a single source to an explicit destination path, renaming
// when both sides share a volume and copy-then-deleting otherwise.
func (e *Executor) MoveTo(ctx context.Context, id, source, dest string) error {
	info, err := os.Lstat(source)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, source)
	}

	if SameVolume(source, filepath.Dir(dest)) {
		if err := os.Rename(source, dest); err != nil {
			return err
		}
		var size int64
		if !info.IsDir() {
			size = info.Size()
		}
		e.tracker.Updates(id, progress.Update{AddFiles: 1, AddBytes: size, CurrentItem: source})
		e.invalidate(source)
		e.invalidate(dest)
		return nil
	}

	if err := e.CopyTo(ctx, id, source, dest); err != nil {
		return err
	}
	if err := os.RemoveAll(source); err != nil {
		return fmt.Errorf("removing source after copy: %w", err)
	}
	e.invalidate(source)
	return nil
}

// SetAside renames an occupied destination to an aside path, typically a
// backup name, before it is overwritten.
func SetAside(path, aside string) error {
	return os.Rename(path, aside)
}

// DeletePath deletes a single path, recursively for directories, trashing
// unless permanent is requested. Missing paths are idempotent no-ops.
func (e *Executor) DeletePath(id, path string, permanent bool) error {
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return nil
	}

	var err error
	if permanent || e.trash == nil {
		err = os.RemoveAll(path)
	} else {
		_, err = e.trash.Put(path)
	}
	if err != nil {
		return err
	}

	e.tracker.Updates(id, progress.Update{AddFiles: 1, CurrentItem: path})
	e.invalidate(path)
	return nil
}
