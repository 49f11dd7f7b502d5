package fileops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulfm/haul/pkg/haul/progress"
	"github.com/haulfm/haul/pkg/haul/types"
	"github.com/haulfm/haul/pkg/haul/verify"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(Config{
		ChunkSize: 64 * types.KiB,
		Tracker:   progress.NewTracker(),
		Verifier:  verify.New(10 * types.MiB),
	})
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestCopyMultipleFiles(t *testing.T) {
	e := newTestExecutor(t)
	srcDir := t.TempDir()
	destDir := t.TempDir()

	content := make([]byte, 1024)
	for i := range content {
		content[i] = byte(i % 251)
	}
	var sources []string
	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		path := filepath.Join(srcDir, name)
		writeFile(t, path, content)
		sources = append(sources, path)
	}

	result, err := e.Copy(context.Background(), sources, destDir, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Len(t, result.AffectedFiles, 3)
	assert.Empty(t, result.Errors)
	assert.Equal(t, int64(3072), result.BytesProcessed)

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		got, readErr := os.ReadFile(filepath.Join(destDir, name))
		require.NoError(t, readErr)
		assert.Equal(t, content, got)
	}
}

func TestCopyReportsMonotonicProgress(t *testing.T) {
	e := newTestExecutor(t)
	src := filepath.Join(t.TempDir(), "big.bin")
	writeFile(t, src, make([]byte, 300*types.KiB))

	var snapshots []progress.Progress
	result, err := e.Copy(context.Background(), []string{src}, t.TempDir(), func(p progress.Progress) {
		snapshots = append(snapshots, p)
	})
	require.NoError(t, err)
	require.True(t, result.Success)

	require.NotEmpty(t, snapshots)
	var prev int64
	for _, p := range snapshots {
		assert.GreaterOrEqual(t, p.ProcessedBytes, prev)
		assert.LessOrEqual(t, p.ProcessedBytes, p.TotalBytes)
		prev = p.ProcessedBytes
	}
	last := snapshots[len(snapshots)-1]
	assert.Equal(t, last.TotalBytes, last.ProcessedBytes)
}

func TestCopyDirectoryTree(t *testing.T) {
	e := newTestExecutor(t)
	srcDir := t.TempDir()
	destDir := t.TempDir()

	writeFile(t, filepath.Join(srcDir, "tree", "top.txt"), []byte("top"))
	writeFile(t, filepath.Join(srcDir, "tree", "sub", "leaf.txt"), []byte("leaf"))

	result, err := e.Copy(context.Background(), []string{filepath.Join(srcDir, "tree")}, destDir, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)

	got, readErr := os.ReadFile(filepath.Join(destDir, "tree", "sub", "leaf.txt"))
	require.NoError(t, readErr)
	assert.Equal(t, []byte("leaf"), got)
}

func TestCopyMissingSourceAggregatesError(t *testing.T) {
	e := newTestExecutor(t)
	srcDir := t.TempDir()
	destDir := t.TempDir()

	present := filepath.Join(srcDir, "here.txt")
	writeFile(t, present, []byte("here"))
	missing := filepath.Join(srcDir, "gone.txt")

	result, err := e.Copy(context.Background(), []string{missing, present}, destDir, nil)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 1)
	// The present file is still copied despite the sibling failure.
	assert.FileExists(t, filepath.Join(destDir, "here.txt"))
}

func TestCopyNoSources(t *testing.T) {
	e := newTestExecutor(t)
	_, err := e.Copy(context.Background(), nil, t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrNoSources)
}

func TestCopyIdenticalDestinationShortCircuits(t *testing.T) {
	e := newTestExecutor(t)
	srcDir := t.TempDir()
	destDir := t.TempDir()

	src := filepath.Join(srcDir, "same.txt")
	writeFile(t, src, []byte("identical content"))
	writeFile(t, filepath.Join(destDir, "same.txt"), []byte("identical content"))

	result, err := e.Copy(context.Background(), []string{src}, destDir, nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
	// No payload bytes move when the destination already matches.
	assert.Zero(t, e.BytesCopied())
}

func TestCopyCancellationLeavesNoPartialFile(t *testing.T) {
	e := NewExecutor(Config{
		ChunkSize: 4 * types.KiB,
		Tracker:   progress.NewTracker(),
		Verifier:  verify.New(10 * types.MiB),
	})

	src := filepath.Join(t.TempDir(), "large.bin")
	writeFile(t, src, make([]byte, types.MiB))
	destDir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	chunks := 0
	result, err := e.Copy(ctx, []string{src}, destDir, func(p progress.Progress) {
		chunks++
		if chunks == 3 {
			cancel()
		}
	})
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.NoFileExists(t, filepath.Join(destDir, "large.bin"))
}

func TestMoveSameVolumeCopiesZeroBytes(t *testing.T) {
	e := newTestExecutor(t)
	base := t.TempDir()
	srcDir := filepath.Join(base, "from")
	destDir := filepath.Join(base, "to")
	require.NoError(t, os.MkdirAll(destDir, 0o755))

	src := filepath.Join(srcDir, "file.txt")
	writeFile(t, src, []byte("move me"))

	result, err := e.Move(context.Background(), []string{src}, destDir, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NoFileExists(t, src)
	assert.FileExists(t, filepath.Join(destDir, "file.txt"))
	// Same-volume moves rename; no payload bytes are streamed.
	assert.Zero(t, e.BytesCopied())
}

func TestMoveDirectorySameVolume(t *testing.T) {
	e := newTestExecutor(t)
	base := t.TempDir()
	destDir := filepath.Join(base, "dest")
	require.NoError(t, os.MkdirAll(destDir, 0o755))

	writeFile(t, filepath.Join(base, "pkg", "inner", "x.txt"), []byte("x"))

	result, err := e.Move(context.Background(), []string{filepath.Join(base, "pkg")}, destDir, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NoDirExists(t, filepath.Join(base, "pkg"))
	assert.FileExists(t, filepath.Join(destDir, "pkg", "inner", "x.txt"))
}

func TestMoveMissingSource(t *testing.T) {
	e := newTestExecutor(t)
	result, err := e.Move(context.Background(), []string{filepath.Join(t.TempDir(), "nope")}, t.TempDir(), nil)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Len(t, result.Errors, 1)
}

func TestDeletePermanent(t *testing.T) {
	e := newTestExecutor(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "victim.txt")
	writeFile(t, target, []byte("bye"))

	result, err := e.Delete(context.Background(), []string{target}, DeleteOptions{Permanent: true}, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NoFileExists(t, target)
}

func TestDeleteDirectoryRecursive(t *testing.T) {
	e := newTestExecutor(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tree", "sub", "f.txt"), []byte("f"))

	result, err := e.Delete(context.Background(), []string{filepath.Join(dir, "tree")}, DeleteOptions{Permanent: true}, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NoDirExists(t, filepath.Join(dir, "tree"))
}

func TestDeleteMissingPathIsIdempotent(t *testing.T) {
	e := newTestExecutor(t)
	result, err := e.Delete(context.Background(), []string{filepath.Join(t.TempDir(), "ghost")}, DeleteOptions{Permanent: true}, nil)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.AffectedFiles)
	assert.Empty(t, result.Errors)
}

func TestRename(t *testing.T) {
	e := newTestExecutor(t)
	dir := t.TempDir()
	old := filepath.Join(dir, "old.txt")
	writeFile(t, old, []byte("content"))

	result, err := e.Rename(old, "new.txt")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.NoFileExists(t, old)
	assert.FileExists(t, filepath.Join(dir, "new.txt"))
}

func TestRenameRejectsInvalidNames(t *testing.T) {
	e := newTestExecutor(t)
	dir := t.TempDir()
	old := filepath.Join(dir, "f.txt")
	writeFile(t, old, []byte("x"))

	for _, name := range []string{"", "a/b", `a\b`} {
		_, err := e.Rename(old, name)
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestRenameExistingTargetConflicts(t *testing.T) {
	e := newTestExecutor(t)
	dir := t.TempDir()
	old := filepath.Join(dir, "a.txt")
	writeFile(t, old, []byte("a"))
	writeFile(t, filepath.Join(dir, "b.txt"), []byte("b"))

	_, err := e.Rename(old, "b.txt")
	assert.ErrorIs(t, err, ErrDestinationConflict)
}

func TestRenameMissingSource(t *testing.T) {
	e := newTestExecutor(t)
	_, err := e.Rename(filepath.Join(t.TempDir(), "gone"), "still-gone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCopyPreservesPermissions(t *testing.T) {
	e := newTestExecutor(t)
	srcDir := t.TempDir()
	destDir := t.TempDir()

	src := filepath.Join(srcDir, "script.sh")
	writeFile(t, src, []byte("#!/bin/sh\n"))
	require.NoError(t, os.Chmod(src, 0o755))

	result, err := e.Copy(context.Background(), []string{src}, destDir, nil)
	require.NoError(t, err)
	require.True(t, result.Success)

	info, statErr := os.Stat(filepath.Join(destDir, "script.sh"))
	require.NoError(t, statErr)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestSameVolumeWithinTempDir(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	require.NoError(t, os.MkdirAll(a, 0o755))
	require.NoError(t, os.MkdirAll(b, 0o755))
	assert.True(t, SameVolume(a, b))
}

func TestSameVolumeMissingPath(t *testing.T) {
	dir := t.TempDir()
	assert.False(t, SameVolume(dir, filepath.Join(dir, "does-not-exist")))
}
