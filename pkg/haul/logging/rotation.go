package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// RotationConfig controls log file rotation.
type RotationConfig struct {
	// MaxSize is the file size in bytes that triggers a rotation.
	MaxSize int64

	// MaxBackups is how many rotated files to keep. Zero keeps all.
	MaxBackups int

	// MaxAgeDays removes rotated files older than this many days.
	// Zero disables age-based pruning.
	MaxAgeDays int
}

// DefaultRotationConfig returns the rotation defaults: 10 MiB per file,
// five backups, thirty days.
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    10 * 1024 * 1024,
		MaxBackups: 5,
		MaxAgeDays: 30,
	}
}

// RotatingWriter is an io.WriteCloser that rotates the underlying log file
// once a write would push it past the configured size. Rotated files carry
// a timestamp suffix beside the live file; stale backups are pruned on
// startup and after each rotation.
type RotatingWriter struct {
	path string
	cfg  RotationConfig

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewRotatingWriter opens (or creates) the log file at path, creating
// parent directories as needed.
func NewRotatingWriter(path string, cfg RotationConfig) (*RotatingWriter, error) {
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultRotationConfig().MaxSize
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	w := &RotatingWriter{path: path, cfg: cfg}
	if err := w.open(); err != nil {
		return nil, err
	}
	w.prune()
	return w, nil
}

func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.cfg.MaxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close syncs and closes the current file. Safe to call multiple times.
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	_ = w.file.Sync()
	err := w.file.Close()
	w.file = nil
	return err
}

func (w *RotatingWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	w.file = f
	w.size = 0
	if info, err := f.Stat(); err == nil {
		w.size = info.Size()
	}
	return nil
}

// rotate renames the current file to a timestamped backup and reopens the
// live path. Caller must hold the lock.
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing log file: %w", err)
	}
	w.file = nil

	if err := os.Rename(w.path, w.backupName(time.Now())); err != nil {
		// Keep logging into the old file rather than going dark.
		if reopenErr := w.open(); reopenErr != nil {
			return reopenErr
		}
		return fmt.Errorf("rotating log file: %w", err)
	}
	if err := w.open(); err != nil {
		return err
	}
	w.prune()
	return nil
}

// backupName builds a rotated file name: haul.2006-01-02-150405.log.
func (w *RotatingWriter) backupName(ts time.Time) string {
	ext := filepath.Ext(w.path)
	stem := strings.TrimSuffix(w.path, ext)
	return fmt.Sprintf("%s.%s%s", stem, ts.Format("2006-01-02-150405"), ext)
}

// prune removes rotated backups beyond MaxBackups or older than
// MaxAgeDays. The live file is never touched.
func (w *RotatingWriter) prune() {
	dir := filepath.Dir(w.path)
	base := filepath.Base(w.path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	var backups []string
	for _, e := range entries {
		name := e.Name()
		if name == base || !strings.HasPrefix(name, stem+".") || !strings.HasSuffix(name, ext) {
			continue
		}
		backups = append(backups, name)
	}

	// Timestamped names sort chronologically, so reverse order is
	// newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))

	var cutoff time.Time
	if w.cfg.MaxAgeDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -w.cfg.MaxAgeDays)
	}
	for i, name := range backups {
		full := filepath.Join(dir, name)
		if w.cfg.MaxBackups > 0 && i >= w.cfg.MaxBackups {
			_ = os.Remove(full)
			continue
		}
		if !cutoff.IsZero() {
			if info, err := os.Stat(full); err == nil && info.ModTime().Before(cutoff) {
				_ = os.Remove(full)
			}
		}
	}
}
