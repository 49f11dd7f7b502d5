//go:build unix

package fileops

import "golang.org/x/sys/unix"

// SameVolume reports whether two paths live on the same storage device, so
// a move between them can be a metadata-only rename. Unresolvable paths
// report false, forcing the safe copy-then-delete path.
func SameVolume(a, b string) bool {
	var sa, sb unix.Stat_t
	if err := unix.Stat(a, &sa); err != nil {
		return false
	}
	if err := unix.Stat(b, &sb); err != nil {
		return false
	}
	return sa.Dev == sb.Dev
}
