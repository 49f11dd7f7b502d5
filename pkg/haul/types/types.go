// Package types provides core data types for the haul file operations engine.
// It includes the canonical FileEntry metadata record, operation enums, the
// uniform OperationResult returned by every public operation, and utility
// functions for parsing and formatting file sizes.
package types

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Size constants for binary (IEC) units.
const (
	KiB int64 = 1024
	MiB int64 = 1024 * KiB
	GiB int64 = 1024 * MiB
	TiB int64 = 1024 * GiB
)

// Kind classifies a file entry for display and filtering purposes.
type Kind string

// Known entry kinds.
const (
	KindDirectory Kind = "directory"
	KindRegular   Kind = "file"
	KindSymlink   Kind = "symlink"
	KindArchive   Kind = "archive"
	KindImage     Kind = "image"
	KindVideo     Kind = "video"
	KindAudio     Kind = "audio"
	KindDocument  Kind = "document"
	KindCode      Kind = "code"
)

// kindByExtension maps common file extensions to kinds.
var kindByExtension = map[string]Kind{
	".zip": KindArchive, ".tar": KindArchive, ".gz": KindArchive,
	".tgz": KindArchive, ".zst": KindArchive, ".7z": KindArchive, ".rar": KindArchive,
	".jpg": KindImage, ".jpeg": KindImage, ".png": KindImage, ".gif": KindImage,
	".webp": KindImage, ".svg": KindImage,
	".mp4": KindVideo, ".mkv": KindVideo, ".mov": KindVideo, ".avi": KindVideo,
	".mp3": KindAudio, ".flac": KindAudio, ".ogg": KindAudio, ".wav": KindAudio,
	".pdf": KindDocument, ".md": KindDocument, ".txt": KindDocument, ".doc": KindDocument,
	".go": KindCode, ".py": KindCode, ".rs": KindCode, ".c": KindCode,
	".js": KindCode, ".ts": KindCode, ".sh": KindCode,
}

// FileEntry is the canonical metadata record for a filesystem path.
// It is produced by stat-like inspection, cached by the metadata cache,
// and invalidated whenever an operation mutates the path.
type FileEntry struct {
	// Path is the absolute path to the entry.
	Path string `json:"path"`

	// Size is the entry size in bytes (0 for directories).
	Size int64 `json:"size"`

	// ModTime is the last modification time.
	ModTime time.Time `json:"mod_time"`

	// Mode is the entry's permission and mode bits.
	Mode os.FileMode `json:"mode"`

	// IsDir reports whether the entry is a directory.
	IsDir bool `json:"is_dir"`

	// IsSymlink reports whether the entry is a symbolic link.
	IsSymlink bool `json:"is_symlink"`

	// Kind is the classification tag derived from the entry's extension.
	Kind Kind `json:"kind"`
}

// NewFileEntry builds a FileEntry from os.FileInfo for the given path.
func NewFileEntry(path string, info os.FileInfo) FileEntry {
	e := FileEntry{
		Path:      path,
		Size:      info.Size(),
		ModTime:   info.ModTime(),
		Mode:      info.Mode(),
		IsDir:     info.IsDir(),
		IsSymlink: info.Mode()&os.ModeSymlink != 0,
	}
	e.Kind = classify(e)
	return e
}

// classify derives the kind tag for an entry.
func classify(e FileEntry) Kind {
	switch {
	case e.IsDir:
		return KindDirectory
	case e.IsSymlink:
		return KindSymlink
	}
	if k, ok := kindByExtension[strings.ToLower(filepath.Ext(e.Path))]; ok {
		return k
	}
	return KindRegular
}

// HumanSize returns the entry size formatted as a human-readable string.
func (e *FileEntry) HumanSize() string {
	return FormatSize(e.Size)
}

// OperationType identifies a file operation kind.
type OperationType string

// Supported operation types.
const (
	OpCopy    OperationType = "copy"
	OpMove    OperationType = "move"
	OpDelete  OperationType = "delete"
	OpRename  OperationType = "rename"
	OpArchive OperationType = "archive"
	OpExtract OperationType = "extract"
)

// OperationStatus tracks the lifecycle of an operation.
type OperationStatus string

// Operation lifecycle states. Completed, Failed and Cancelled are terminal.
const (
	StatusPending    OperationStatus = "pending"
	StatusInProgress OperationStatus = "in_progress"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
	StatusCancelled  OperationStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s OperationStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// OperationResult is the uniform outcome record returned by every public
// operation, single or batch, file or archive. It is immutable once returned.
type OperationResult struct {
	// Success is true only if every item in the operation succeeded.
	Success bool `json:"success"`

	// Message is a human-readable summary of the outcome.
	Message string `json:"message"`

	// AffectedFiles lists the paths created, moved, or removed.
	AffectedFiles []string `json:"affected_files"`

	// Errors contains one entry per failed item.
	Errors []string `json:"errors,omitempty"`

	// Progress is the overall completion percentage (0-100).
	Progress float64 `json:"progress"`

	// Duration is the total elapsed time of the operation.
	Duration time.Duration `json:"duration"`

	// BytesProcessed is the number of payload bytes transferred.
	BytesProcessed int64 `json:"bytes_processed"`
}

// sizePattern matches size strings like "100M", "2G", "500K", "1.5GiB", etc.
var sizePattern = regexp.MustCompile(`(?i)^\s*([0-9]+(?:\.[0-9]+)?)\s*([KMGT]?(?:i?B)?)\s*$`)

// ErrInvalidSize indicates that the size string could not be parsed.
var ErrInvalidSize = errors.New("invalid size format")

// ErrNegativeSize indicates that a negative size value was provided.
var ErrNegativeSize = errors.New("size cannot be negative")

// ParseSize parses a human-readable size string and returns the size in bytes.
// It supports plain bytes ("1024"), and K/M/G/T suffixes with optional B or
// iB ("64K", "10MiB", "1.5GB"). Decimal values are truncated to the nearest
// byte. Returns ErrInvalidSize for unrecognized formats and ErrNegativeSize
// for negative values.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrInvalidSize)
	}

	if strings.HasPrefix(s, "-") {
		return 0, ErrNegativeSize
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSize, s)
	}

	suffix := strings.ToUpper(matches[2])
	suffix = strings.TrimSuffix(suffix, "IB")
	suffix = strings.TrimSuffix(suffix, "B")

	var multiplier int64
	switch suffix {
	case "":
		multiplier = 1
	case "K":
		multiplier = KiB
	case "M":
		multiplier = MiB
	case "G":
		multiplier = GiB
	case "T":
		multiplier = TiB
	default:
		return 0, fmt.Errorf("%w: unknown suffix %q", ErrInvalidSize, suffix)
	}

	return int64(value * float64(multiplier)), nil
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units for consistency with common filesystem tools.
func FormatSize(bytes int64) string {
	return humanize.IBytes(uint64(bytes))
}
