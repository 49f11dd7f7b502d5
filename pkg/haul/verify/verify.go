// Package verify confirms that a copied file is byte-identical to its
// source. Sizes are compared first; below a configurable threshold both
// files are fully hashed, above it size equality is accepted. The threshold
// is a deliberate accuracy/cost trade-off: full hashing of very large files
// is cost-prohibitive at scale, so callers needing a hard guarantee for big
// files should set the threshold to zero, which hashes everything.
package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/haulfm/haul/pkg/haul/logging"
	"github.com/haulfm/haul/pkg/haul/types"
)

// Verifier checks copy integrity.
type Verifier struct {
	// HashThreshold is the source size, in bytes, below which full content
	// hashing is performed. Zero or negative hashes every file.
	HashThreshold int64

	log *logging.Logger
}

// New creates a Verifier with the given hash threshold.
func New(hashThreshold int64) *Verifier {
	return &Verifier{
		HashThreshold: hashThreshold,
		log:           logging.Get("verify"),
	}
}

// Verify reports whether destination matches source. A size mismatch fails
// immediately; otherwise content fingerprints are compared when the source
// is below the threshold.
func (v *Verifier) Verify(source, destination string) (bool, error) {
	srcInfo, err := os.Stat(source)
	if err != nil {
		return false, fmt.Errorf("stat source: %w", err)
	}
	dstInfo, err := os.Stat(destination)
	if err != nil {
		return false, fmt.Errorf("stat destination: %w", err)
	}

	if srcInfo.Size() != dstInfo.Size() {
		v.log.Debug("size mismatch", "source", source, "src_size", srcInfo.Size(), "dst_size", dstInfo.Size())
		return false, nil
	}

	if v.HashThreshold > 0 && srcInfo.Size() >= v.HashThreshold {
		// Size equality accepted above the threshold.
		return true, nil
	}

	srcHash, err := hashFile(source)
	if err != nil {
		return false, fmt.Errorf("hash source: %w", err)
	}
	dstHash, err := hashFile(destination)
	if err != nil {
		return false, fmt.Errorf("hash destination: %w", err)
	}

	if srcHash != dstHash {
		v.log.Debug("fingerprint mismatch", "source", source, "destination", destination)
		return false, nil
	}
	return true, nil
}

// hashFile computes the SHA-256 fingerprint of a file in chunks.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, 64*types.KiB)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
