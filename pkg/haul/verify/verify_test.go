package verify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

func TestVerifyIdenticalFiles(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src", []byte("hello world"))
	dst := writeFile(t, dir, "dst", []byte("hello world"))

	ok, err := New(0).Verify(src, dst)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifySizeMismatch(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src", []byte("hello world"))
	dst := writeFile(t, dir, "dst", []byte("hello"))

	ok, err := New(0).Verify(src, dst)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyContentMismatchSameSize(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src", []byte("aaaa"))
	dst := writeFile(t, dir, "dst", []byte("bbbb"))

	ok, err := New(0).Verify(src, dst)
	require.NoError(t, err)
	assert.False(t, ok, "equal sizes with different content must fail below threshold")
}

func TestVerifyAboveThresholdAcceptsSizeEquality(t *testing.T) {
	// Documents the trade-off: at or above the threshold only sizes are
	// compared, so differing content of equal size passes.
	dir := t.TempDir()
	src := writeFile(t, dir, "src", []byte("aaaa"))
	dst := writeFile(t, dir, "dst", []byte("bbbb"))

	ok, err := New(4).Verify(src, dst)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyBelowThresholdHashes(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src", []byte("aaaa"))
	dst := writeFile(t, dir, "dst", []byte("bbbb"))

	ok, err := New(1024).Verify(src, dst)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyMissingFile(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "src", []byte("data"))

	_, err := New(0).Verify(src, filepath.Join(dir, "missing"))
	assert.Error(t, err)

	_, err = New(0).Verify(filepath.Join(dir, "missing"), src)
	assert.Error(t, err)
}
