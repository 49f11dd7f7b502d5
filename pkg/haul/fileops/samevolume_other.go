//go:build !unix

package fileops

import "path/filepath"

// SameVolume reports whether two paths share a volume name. Without device
// numbers this is a best-effort check on the path prefix.
func SameVolume(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return false
	}
	return filepath.VolumeName(absA) == filepath.VolumeName(absB)
}
