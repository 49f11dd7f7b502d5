package archive

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/haulfm/haul/pkg/haul/progress"
	"github.com/haulfm/haul/pkg/haul/types"
)

// Extract unpacks an archive into destDir, creating parent directories as
// needed. The format is detected from the archive itself. Entry names that
// would escape destDir fail the extraction.
func (c *Codec) Extract(ctx context.Context, archivePath, destDir string, cb progress.Callback) (types.OperationResult, error) {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return types.OperationResult{}, err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return types.OperationResult{}, fmt.Errorf("creating destination: %w", err)
	}

	totalFiles, totalBytes := c.extractTotals(archivePath, format)

	id := progress.NewID(types.OpExtract)
	c.tracker.Create(id, types.OpExtract, totalFiles, totalBytes)
	defer c.tracker.Remove(id)
	if cb != nil {
		c.tracker.AddCallback(id, cb)
	}
	c.tracker.Start(id)
	start := time.Now()

	var affected []string
	if format == FormatZip {
		affected, err = c.extractZip(ctx, id, archivePath, destDir)
	} else {
		affected, err = c.extractTar(ctx, id, archivePath, destDir, format)
	}
	if err != nil {
		if err == ErrCancelled {
			c.tracker.Cancel(id)
			snapshot, _ := c.tracker.Get(id)
			return types.OperationResult{
				Message:        fmt.Sprintf("extraction cancelled after %d entries", len(affected)),
				AffectedFiles:  affected,
				Progress:       snapshot.Percent(),
				Duration:       time.Since(start),
				BytesProcessed: snapshot.ProcessedBytes,
			}, nil
		}
		c.tracker.Complete(id, false)
		return types.OperationResult{}, err
	}

	c.tracker.Complete(id, true)
	snapshot, _ := c.tracker.Get(id)

	return types.OperationResult{
		Success:        true,
		Message:        fmt.Sprintf("Extracted %d entries to %s", len(affected), destDir),
		AffectedFiles:  affected,
		Progress:       snapshot.Percent(),
		Duration:       time.Since(start),
		BytesProcessed: snapshot.ProcessedBytes,
	}, nil
}

// extractTotals pre-computes progress totals where the format allows it
// cheaply. The zip index carries uncompressed sizes; tar streams would need
// a full decompression pass, so their progress runs without totals.
func (c *Codec) extractTotals(archivePath string, format Format) (files, bytes int64) {
	if format != FormatZip {
		return 0, 0
	}
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, 0
	}
	defer r.Close()
	for _, f := range r.File {
		if !f.FileInfo().IsDir() {
			files++
			bytes += int64(f.UncompressedSize64)
		}
	}
	return files, bytes
}

func (c *Codec) extractZip(ctx context.Context, id, archivePath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedArchive, err)
	}
	defer r.Close()

	var affected []string
	for _, f := range r.File {
		if c.stopRequested(ctx, id) {
			return affected, ErrCancelled
		}

		target, err := entryWithin(destDir, f.Name)
		if err != nil {
			return affected, err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return affected, fmt.Errorf("creating %s: %w", target, err)
			}
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return affected, fmt.Errorf("%w: %v", ErrCorruptedArchive, err)
		}
		err = c.writeEntry(ctx, id, target, rc, f.FileInfo().Mode())
		rc.Close()
		if err != nil {
			return affected, err
		}
		affected = append(affected, target)
	}
	return affected, nil
}

func (c *Codec) extractTar(ctx context.Context, id, archivePath, destDir string, format Format) ([]string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stream, closeStream, err := decompressor(f, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedArchive, err)
	}
	defer closeStream()

	var affected []string
	tr := tar.NewReader(stream)
	for {
		if c.stopRequested(ctx, id) {
			return affected, ErrCancelled
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return affected, nil
		}
		if err != nil {
			return affected, fmt.Errorf("%w: %v", ErrCorruptedArchive, err)
		}

		target, err := entryWithin(destDir, hdr.Name)
		if err != nil {
			return affected, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return affected, fmt.Errorf("creating %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := c.writeEntry(ctx, id, target, tr, hdr.FileInfo().Mode()); err != nil {
				return affected, err
			}
			affected = append(affected, target)
		default:
			c.log.Debug("skipping unsupported tar entry", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}
}

// writeEntry streams one archive entry to disk in chunks. A cancelled or
// failed entry is removed.
func (c *Codec) writeEntry(ctx context.Context, id, target string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(target), err)
	}

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode.Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}

	buf := make([]byte, c.chunkSize)
	for {
		if c.stopRequested(ctx, id) {
			out.Close()
			os.Remove(target)
			return ErrCancelled
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				out.Close()
				os.Remove(target)
				return fmt.Errorf("writing %s: %w", target, writeErr)
			}
			c.tracker.Updates(id, progress.Update{AddBytes: int64(n), CurrentItem: target})
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			out.Close()
			os.Remove(target)
			return fmt.Errorf("%w: %v", ErrCorruptedArchive, readErr)
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(target)
		return fmt.Errorf("closing %s: %w", target, err)
	}

	c.tracker.Updates(id, progress.Update{AddFiles: 1})
	return nil
}

// decompressor wraps the raw archive reader in the format's decompression
// layer.
func decompressor(r io.Reader, format Format) (io.Reader, func(), error) {
	switch format {
	case FormatTar:
		return r, func() {}, nil
	case FormatTarGz:
		gzr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return gzr, func() { gzr.Close() }, nil
	case FormatTarZst:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, err
		}
		return zr, zr.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}
