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

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/haulfm/haul/pkg/haul/progress"
	"github.com/haulfm/haul/pkg/haul/types"
)

// entry is one path scheduled for archiving, with its name inside the
// archive.
type entry struct {
	path string
	name string
	info os.FileInfo
}

// Create builds an archive at archivePath from the given files and
// directory trees. Directory inputs are archived under their base name
// with relative paths preserved. level tunes compression for the
// compressed formats; zero or negative selects the format default. A
// cancelled or failed create removes the partial archive.
func (c *Codec) Create(ctx context.Context, sources []string, archivePath string, format Format, level int, cb progress.Callback) (types.OperationResult, error) {
	if len(sources) == 0 {
		return types.OperationResult{}, ErrNoInputs
	}
	switch format {
	case FormatZip, FormatTar, FormatTarGz, FormatTarZst:
	default:
		return types.OperationResult{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	entries, totalFiles, totalBytes, err := collectEntries(sources)
	if err != nil {
		return types.OperationResult{}, err
	}

	id := progress.NewID(types.OpArchive)
	c.tracker.Create(id, types.OpArchive, totalFiles, totalBytes)
	defer c.tracker.Remove(id)
	if cb != nil {
		c.tracker.AddCallback(id, cb)
	}
	c.tracker.Start(id)
	start := time.Now()

	out, err := os.Create(archivePath)
	if err != nil {
		c.tracker.Complete(id, false)
		return types.OperationResult{}, fmt.Errorf("creating archive: %w", err)
	}

	if format == FormatZip {
		err = c.writeZip(ctx, id, out, entries, level)
	} else {
		err = c.writeTar(ctx, id, out, entries, format, level)
	}
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("closing archive: %w", closeErr)
	}
	if err != nil {
		os.Remove(archivePath)
		if err == ErrCancelled {
			c.tracker.Cancel(id)
			snapshot, _ := c.tracker.Get(id)
			return types.OperationResult{
				Message:        fmt.Sprintf("archive creation cancelled: %s", archivePath),
				Progress:       snapshot.Percent(),
				Duration:       time.Since(start),
				BytesProcessed: snapshot.ProcessedBytes,
			}, nil
		}
		c.tracker.Complete(id, false)
		return types.OperationResult{}, err
	}

	// Best-effort integrity check: a created archive that cannot be read
	// back is reported in the log, not as a failure.
	if _, verifyErr := c.List(archivePath); verifyErr != nil {
		c.log.Warn("created archive failed readback check", "path", archivePath, "error", verifyErr)
	}

	c.tracker.Complete(id, true)
	snapshot, _ := c.tracker.Get(id)

	return types.OperationResult{
		Success:        true,
		Message:        fmt.Sprintf("Created %s archive %s (%d entries)", format, archivePath, totalFiles),
		AffectedFiles:  []string{archivePath},
		Progress:       snapshot.Percent(),
		Duration:       time.Since(start),
		BytesProcessed: snapshot.ProcessedBytes,
	}, nil
}

// collectEntries expands the input paths into archive entries. Directory
// trees are walked depth-first so parent directories precede their
// contents; archive names always use forward slashes.
func collectEntries(sources []string) (entries []entry, files, bytes int64, err error) {
	for _, source := range sources {
		info, statErr := os.Lstat(source)
		if statErr != nil {
			return nil, 0, 0, fmt.Errorf("inspecting %s: %w", source, statErr)
		}

		if !info.IsDir() {
			entries = append(entries, entry{path: source, name: filepath.Base(source), info: info})
			files++
			bytes += info.Size()
			continue
		}

		base := filepath.Base(source)
		walkErr := filepath.WalkDir(source, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(source, path)
			if err != nil {
				return err
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			entries = append(entries, entry{
				path: path,
				name: filepath.ToSlash(filepath.Join(base, rel)),
				info: fi,
			})
			if !fi.IsDir() {
				files++
				bytes += fi.Size()
			}
			return nil
		})
		if walkErr != nil {
			return nil, 0, 0, fmt.Errorf("walking %s: %w", source, walkErr)
		}
	}
	return entries, files, bytes, nil
}

func (c *Codec) writeZip(ctx context.Context, id string, out io.Writer, entries []entry, level int) error {
	zw := zip.NewWriter(out)
	if level > 0 {
		if level > flate.BestCompression {
			level = flate.BestCompression
		}
		zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, level)
		})
	}

	for _, e := range entries {
		if c.stopRequested(ctx, id) {
			zw.Close()
			return ErrCancelled
		}

		hdr, err := zip.FileInfoHeader(e.info)
		if err != nil {
			return fmt.Errorf("header for %s: %w", e.path, err)
		}
		hdr.Name = e.name
		if e.info.IsDir() {
			hdr.Name += "/"
		} else {
			hdr.Method = zip.Deflate
		}

		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return fmt.Errorf("adding %s: %w", e.name, err)
		}
		if e.info.IsDir() {
			continue
		}
		if err := c.streamInto(ctx, id, w, e.path); err != nil {
			return err
		}
	}
	return zw.Close()
}

func (c *Codec) writeTar(ctx context.Context, id string, out io.Writer, entries []entry, format Format, level int) error {
	compressed, closeCompressor, err := compressor(out, format, level)
	if err != nil {
		return err
	}

	tw := tar.NewWriter(compressed)
	for _, e := range entries {
		if c.stopRequested(ctx, id) {
			tw.Close()
			closeCompressor()
			return ErrCancelled
		}

		hdr, err := tar.FileInfoHeader(e.info, "")
		if err != nil {
			return fmt.Errorf("header for %s: %w", e.path, err)
		}
		hdr.Name = e.name
		if e.info.IsDir() {
			hdr.Name += "/"
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("adding %s: %w", e.name, err)
		}
		if e.info.IsDir() {
			continue
		}
		if err := c.streamInto(ctx, id, tw, e.path); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		closeCompressor()
		return err
	}
	return closeCompressor()
}

// compressor wraps the raw archive writer in the format's compression
// layer. The returned close function flushes the layer; plain tar needs
// no flushing.
func compressor(out io.Writer, format Format, level int) (io.Writer, func() error, error) {
	switch format {
	case FormatTar:
		return out, func() error { return nil }, nil
	case FormatTarGz:
		if level <= 0 {
			level = gzip.DefaultCompression
		} else if level > gzip.BestCompression {
			level = gzip.BestCompression
		}
		gzw, err := gzip.NewWriterLevel(out, level)
		if err != nil {
			return nil, nil, err
		}
		return gzw, gzw.Close, nil
	case FormatTarZst:
		encLevel := zstd.SpeedDefault
		if level > 0 {
			encLevel = zstd.EncoderLevelFromZstd(level)
		}
		zw, err := zstd.NewWriter(out, zstd.WithEncoderLevel(encLevel))
		if err != nil {
			return nil, nil, err
		}
		return zw, zw.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// streamInto copies one file into the archive writer in chunks, checking
// for cancellation between chunks.
func (c *Codec) streamInto(ctx context.Context, id string, w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, c.chunkSize)
	for {
		if c.stopRequested(ctx, id) {
			return ErrCancelled
		}
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("writing %s: %w", path, writeErr)
			}
			c.tracker.Updates(id, progress.Update{AddBytes: int64(n), CurrentItem: path})
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("reading %s: %w", path, readErr)
		}
	}
	c.tracker.Updates(id, progress.Update{AddFiles: 1})
	return nil
}

func (c *Codec) stopRequested(ctx context.Context, id string) bool {
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	return c.tracker.Cancelled(id)
}
