package trash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestTrash creates a Trash with the system facility disabled so tests
// always exercise the fallback directory and index.
func openTestTrash(t *testing.T) *Trash {
	t.Helper()
	base := t.TempDir()
	tr, err := Open(Options{
		Dir:       filepath.Join(base, "files"),
		IndexPath: filepath.Join(base, "index"),
		UseSystem: false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestPutFile(t *testing.T) {
	tr := openTestTrash(t)

	src := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0o644))

	rec, err := tr.Put(src)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, int64(7), rec.Size)
	assert.False(t, rec.IsDir)
	assert.NotEmpty(t, rec.To)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "original path should be gone")

	data, err := os.ReadFile(rec.To)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestPutDirectory(t *testing.T) {
	tr := openTestTrash(t)

	dir := filepath.Join(t.TempDir(), "project")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "f.txt"), []byte("x"), 0o644))

	rec, err := tr.Put(dir)
	require.NoError(t, err)
	assert.True(t, rec.IsDir)

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(rec.To, "sub", "f.txt"))
	assert.NoError(t, err, "directory content preserved in trash")
}

func TestPutNonexistent(t *testing.T) {
	tr := openTestTrash(t)
	_, err := tr.Put(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestPutCollisionRenames(t *testing.T) {
	tr := openTestTrash(t)
	srcDir := t.TempDir()

	first := filepath.Join(srcDir, "same.txt")
	require.NoError(t, os.WriteFile(first, []byte("one"), 0o644))
	rec1, err := tr.Put(first)
	require.NoError(t, err)

	second := filepath.Join(srcDir, "same.txt")
	require.NoError(t, os.WriteFile(second, []byte("two"), 0o644))
	rec2, err := tr.Put(second)
	require.NoError(t, err)

	assert.NotEqual(t, rec1.To, rec2.To)
	assert.Equal(t, "same_1.txt", filepath.Base(rec2.To))
}

func TestListNewestFirst(t *testing.T) {
	tr := openTestTrash(t)
	srcDir := t.TempDir()

	for _, name := range []string{"a.txt", "b.txt"} {
		path := filepath.Join(srcDir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
		_, err := tr.Put(path)
		require.NoError(t, err)
	}

	records, err := tr.List()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.False(t, records[0].TrashedAt.Before(records[1].TrashedAt))
}

func TestRestore(t *testing.T) {
	tr := openTestTrash(t)

	src := filepath.Join(t.TempDir(), "restore-me.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	rec, err := tr.Put(src)
	require.NoError(t, err)

	require.NoError(t, tr.Restore(rec.ID))

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	// Restored record leaves the index.
	records, err := tr.List()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRestoreUnknownID(t *testing.T) {
	tr := openTestTrash(t)
	err := tr.Restore("no-such-id")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestRestoreOccupiedTarget(t *testing.T) {
	tr := openTestTrash(t)

	src := filepath.Join(t.TempDir(), "busy.txt")
	require.NoError(t, os.WriteFile(src, []byte("old"), 0o644))

	rec, err := tr.Put(src)
	require.NoError(t, err)

	// Recreate a file at the original path.
	require.NoError(t, os.WriteFile(src, []byte("new"), 0o644))

	err = tr.Restore(rec.ID)
	assert.Error(t, err)
}
