package fileops

import (
	"io/fs"
	"os"
	"sync/atomic"

	"github.com/charlievieth/fastwalk"
)

// measure computes the file count and byte total for a set of sources so
// progress can be reported against known totals. Directories are walked
// concurrently; unreadable entries are skipped rather than failing the
// measurement, since the operation itself will surface their errors.
func (e *Executor) measure(sources []string) (files, bytes int64) {
	var fileCount, byteCount atomic.Int64

	walkConf := fastwalk.Config{Follow: false}
	for _, source := range sources {
		info, err := os.Lstat(source)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			fileCount.Add(1)
			byteCount.Add(info.Size())
			continue
		}

		err = fastwalk.Walk(&walkConf, source, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			fileCount.Add(1)
			if fi, statErr := d.Info(); statErr == nil {
				byteCount.Add(fi.Size())
			}
			return nil
		})
		if err != nil {
			e.log.Debug("size measurement incomplete", "path", source, "error", err)
		}
	}
	return fileCount.Load(), byteCount.Load()
}
