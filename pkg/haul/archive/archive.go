// Package archive creates and extracts archives in the container formats
// the engine supports: zip, tar, gzip-compressed tar and zstd-compressed
// tar. Archives are produced byte-compatibly with the standard tools for
// each format. Transfers stream in chunks and report progress through the
// shared tracker.
package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/haulfm/haul/pkg/haul/logging"
	"github.com/haulfm/haul/pkg/haul/progress"
	"github.com/haulfm/haul/pkg/haul/types"
)

// Format identifies an archive container format.
type Format string

// Supported formats.
const (
	FormatZip    Format = "zip"
	FormatTar    Format = "tar"
	FormatTarGz  Format = "tar.gz"
	FormatTarZst Format = "tar.zst"
)

// Typed archive errors.
var (
	// ErrUnsupportedFormat indicates a format the codec does not handle,
	// or a path whose format could not be detected.
	ErrUnsupportedFormat = errors.New("unsupported archive format")

	// ErrCorruptedArchive indicates an archive that failed its internal
	// consistency checks.
	ErrCorruptedArchive = errors.New("corrupted archive")

	// ErrNoInputs indicates an empty input list (contract violation).
	ErrNoInputs = errors.New("no input paths supplied")

	// ErrCancelled indicates the operation was stopped by caller request.
	ErrCancelled = errors.New("operation cancelled")
)

// Info describes an archive, computed on demand.
type Info struct {
	Path             string
	Format           Format
	CompressedSize   int64
	UncompressedSize int64
	EntryCount       int
}

// Config wires a Codec.
type Config struct {
	// ChunkSize is the streaming block size in bytes.
	ChunkSize int64

	// Tracker records operation progress. Required.
	Tracker *progress.Tracker
}

// Codec creates and extracts archives.
type Codec struct {
	chunkSize int64
	tracker   *progress.Tracker
	log       *logging.Logger
}

// NewCodec creates a Codec from the given configuration.
func NewCodec(cfg Config) *Codec {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = 64 * types.KiB
	}
	return &Codec{
		chunkSize: chunk,
		tracker:   cfg.Tracker,
		log:       logging.Get("archive"),
	}
}

// Magic byte sequences for format sniffing.
var (
	magicZip  = []byte{0x50, 0x4b}             // "PK"
	magicGzip = []byte{0x1f, 0x8b}             // gzip member header
	magicZstd = []byte{0x28, 0xb5, 0x2f, 0xfd} // zstd frame header
	magicTar  = []byte("ustar")                // at offset 257 in the first header block
)

// recognized-but-unsupported extensions; these fail typed rather than
// falling through to a generic detection failure.
var unsupportedExts = map[string]bool{
	".7z": true, ".rar": true, ".bz2": true, ".xz": true,
}

// DetectFormat determines an archive's format, preferring the file
// extension and falling back to magic-byte sniffing when the extension is
// not conclusive.
func DetectFormat(path string) (Format, error) {
	if f, ok := formatFromExtension(path); ok {
		return f, nil
	}
	if unsupportedExts[strings.ToLower(filepath.Ext(path))] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	return sniffFormat(path)
}

func formatFromExtension(path string) (Format, bool) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return FormatTarGz, true
	case strings.HasSuffix(lower, ".tar.zst"), strings.HasSuffix(lower, ".tzst"):
		return FormatTarZst, true
	case strings.HasSuffix(lower, ".tar"):
		return FormatTar, true
	case strings.HasSuffix(lower, ".zip"):
		return FormatZip, true
	}
	return "", false
}

// sniffFormat reads the archive header and matches known magic bytes. The
// tar check looks for the ustar marker at offset 257 inside the first
// header block.
func sniffFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, magicZip):
		return FormatZip, nil
	case bytes.HasPrefix(head, magicGzip):
		return FormatTarGz, nil
	case bytes.HasPrefix(head, magicZstd):
		return FormatTarZst, nil
	case len(head) >= 262 && bytes.Equal(head[257:262], magicTar):
		return FormatTar, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// List returns the entry names recorded in an archive, in archive order.
func (c *Codec) List(archivePath string) ([]string, error) {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatZip:
		return listZip(archivePath)
	default:
		return c.listTar(archivePath, format)
	}
}

// ArchiveInfo computes summary information for an archive.
func (c *Codec) ArchiveInfo(archivePath string) (Info, error) {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return Info{}, err
	}

	stat, err := os.Stat(archivePath)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Path:           archivePath,
		Format:         format,
		CompressedSize: stat.Size(),
	}

	switch format {
	case FormatZip:
		r, err := zip.OpenReader(archivePath)
		if err != nil {
			return Info{}, fmt.Errorf("%w: %v", ErrCorruptedArchive, err)
		}
		defer r.Close()
		for _, f := range r.File {
			if !f.FileInfo().IsDir() {
				info.EntryCount++
				info.UncompressedSize += int64(f.UncompressedSize64)
			}
		}
	default:
		err := c.walkTar(archivePath, format, func(hdr *tar.Header, _ *tar.Reader) error {
			if hdr.Typeflag == tar.TypeReg {
				info.EntryCount++
				info.UncompressedSize += hdr.Size
			}
			return nil
		})
		if err != nil {
			return Info{}, err
		}
	}
	return info, nil
}

func listZip(archivePath string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptedArchive, err)
	}
	defer r.Close()

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		names = append(names, f.Name)
	}
	return names, nil
}

func (c *Codec) listTar(archivePath string, format Format) ([]string, error) {
	var names []string
	err := c.walkTar(archivePath, format, func(hdr *tar.Header, _ *tar.Reader) error {
		names = append(names, hdr.Name)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// walkTar opens a (possibly compressed) tar stream and invokes fn for each
// header in order.
func (c *Codec) walkTar(archivePath string, format Format, fn func(*tar.Header, *tar.Reader) error) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	stream, closeStream, err := decompressor(f, format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptedArchive, err)
	}
	defer closeStream()

	tr := tar.NewReader(stream)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorruptedArchive, err)
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}

// entryWithin resolves an archive entry name under destDir, rejecting
// names that would escape it.
func entryWithin(destDir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, ".."+string(os.PathSeparator)) || cleaned == ".." {
		return "", fmt.Errorf("%w: entry %q escapes destination", ErrCorruptedArchive, name)
	}
	return filepath.Join(destDir, cleaned), nil
}
