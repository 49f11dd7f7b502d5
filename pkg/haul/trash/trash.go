// Package trash provides recoverable file deletion for the haul engine.
// It moves files to the system trash where available, falling back to a
// local trash directory, and keeps a persistent index of trashed items so
// they can be listed and restored.
package trash

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/haulfm/haul/pkg/haul/logging"
)

// commandTimeout is the maximum time to wait for system trash commands.
const commandTimeout = 30 * time.Second

// maxCollisionAttempts bounds counter probing for a free name in the
// fallback trash directory.
const maxCollisionAttempts = 100

// ErrNotRestorable is returned when a record was trashed through the system
// facility and its final location is not known to haul.
var ErrNotRestorable = errors.New("item was trashed by the system facility and cannot be restored by haul")

// ErrRecordNotFound is returned when a trash record id is unknown.
var ErrRecordNotFound = errors.New("trash record not found")

// Record describes one trashed item.
type Record struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to,omitempty"` // empty when the system facility holds the item
	TrashedAt time.Time `json:"trashed_at"`
	Size      int64     `json:"size"`
	IsDir     bool      `json:"is_dir"`
}

// Options configures a Trash.
type Options struct {
	// Dir is the fallback trash directory.
	Dir string

	// IndexPath is the location of the persistent trash index.
	IndexPath string

	// UseSystem tries the platform trash facility before the fallback dir.
	UseSystem bool
}

// Trash moves files aside recoverably.
type Trash struct {
	dir       string
	useSystem bool
	index     *Index
	log       *logging.Logger
}

// Open creates a Trash with its fallback directory and index ready.
func Open(opts Options) (*Trash, error) {
	if opts.Dir == "" {
		return nil, errors.New("trash directory not configured")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating trash directory: %w", err)
	}

	index, err := OpenIndex(opts.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("opening trash index: %w", err)
	}

	return &Trash{
		dir:       opts.Dir,
		useSystem: opts.UseSystem,
		index:     index,
		log:       logging.Get("trash"),
	}, nil
}

// Close releases the trash index.
func (t *Trash) Close() error {
	return t.index.Close()
}

// Put moves a file or directory to the trash and records it in the index.
func (t *Trash) Put(path string) (Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Record{}, fmt.Errorf("cannot trash %q: %w", path, err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Record{}, fmt.Errorf("cannot resolve absolute path for %q: %w", path, err)
	}

	rec := Record{
		ID:        uuid.New().String(),
		From:      absPath,
		TrashedAt: time.Now(),
		Size:      info.Size(),
		IsDir:     info.IsDir(),
	}

	if t.useSystem && systemTrash(absPath) == nil {
		t.log.Debug("trashed via system facility", "path", absPath)
	} else {
		target, err := t.fallbackTrash(absPath)
		if err != nil {
			return Record{}, err
		}
		rec.To = target
	}

	if err := t.index.Put(rec); err != nil {
		t.log.Warn("failed to index trashed item", "path", absPath, "error", err)
	}
	return rec, nil
}

// fallbackTrash moves the item into the local trash directory, renaming
// name_<n> on collision.
func (t *Trash) fallbackTrash(absPath string) (string, error) {
	target := filepath.Join(t.dir, filepath.Base(absPath))
	if _, err := os.Lstat(target); err == nil {
		target = t.availableName(filepath.Base(absPath))
	}

	if err := os.Rename(absPath, target); err != nil {
		// Rename across volumes fails; there is no cheap recoverable move
		// in that case, so surface the error to the caller.
		return "", fmt.Errorf("moving %q to trash: %w", absPath, err)
	}
	return target, nil
}

// availableName probes name_<n> variants in the trash directory until a
// free name is found, falling back to a timestamp suffix.
func (t *Trash) availableName(base string) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for n := 1; n <= maxCollisionAttempts; n++ {
		candidate := filepath.Join(t.dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
	return filepath.Join(t.dir, fmt.Sprintf("%s_%d%s", stem, time.Now().UnixNano(), ext))
}

// List returns all indexed trash records, newest first.
func (t *Trash) List() ([]Record, error) {
	return t.index.List()
}

// Restore moves a trashed item back to its original path. It fails if the
// original path is occupied or the item was trashed by the system facility.
func (t *Trash) Restore(id string) error {
	rec, err := t.index.Get(id)
	if err != nil {
		return err
	}
	if rec.To == "" {
		return ErrNotRestorable
	}
	if _, err := os.Lstat(rec.From); err == nil {
		return fmt.Errorf("restore target %q already exists", rec.From)
	}
	if err := os.MkdirAll(filepath.Dir(rec.From), 0o755); err != nil {
		return fmt.Errorf("recreating parent directory: %w", err)
	}
	if err := os.Rename(rec.To, rec.From); err != nil {
		return fmt.Errorf("restoring %q: %w", rec.From, err)
	}
	return t.index.Delete(id)
}

// systemTrash attempts the platform trash facility.
func systemTrash(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return trashMacOS(path)
	case "linux":
		return trashLinux(path)
	default:
		return fmt.Errorf("no system trash on %s", runtime.GOOS)
	}
}

// trashMacOS moves a file to Trash using Finder, which preserves "Put Back".
func trashMacOS(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	script := fmt.Sprintf(`tell application "Finder" to delete POSIX file %q`, path)
	return exec.CommandContext(ctx, "osascript", "-e", script).Run()
}

// trashLinux tries gio, then trash-cli.
func trashLinux(path string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if gioPath, err := exec.LookPath("gio"); err == nil {
		if err := exec.CommandContext(ctx, gioPath, "trash", path).Run(); err == nil {
			return nil
		}
	}
	if trashPath, err := exec.LookPath("trash-put"); err == nil {
		if err := exec.CommandContext(ctx, trashPath, path).Run(); err == nil {
			return nil
		}
	}
	return errors.New("no trash tool available")
}
