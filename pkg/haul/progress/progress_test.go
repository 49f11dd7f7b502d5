package progress

import (
	"strings"
	"testing"

	"github.com/haulfm/haul/pkg/haul/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	tr := NewTracker()

	id := NewID(types.OpCopy)
	assert.True(t, strings.HasPrefix(id, "copy-"))

	created := tr.Create(id, types.OpCopy, 3, 3072)
	assert.Equal(t, types.StatusPending, created.Status)

	got, ok := tr.Get(id)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.TotalFiles)
	assert.Equal(t, int64(3072), got.TotalBytes)
}

func TestGetUnknown(t *testing.T) {
	tr := NewTracker()
	_, ok := tr.Get("nope")
	assert.False(t, ok)
}

func TestUpdateCounters(t *testing.T) {
	tr := NewTracker()
	id := NewID(types.OpCopy)
	tr.Create(id, types.OpCopy, 2, 2048)
	tr.Start(id)

	tr.Updates(id, Update{AddBytes: 1024, CurrentItem: "/a"})
	tr.Updates(id, Update{AddFiles: 1, AddBytes: 1024, CurrentItem: "/b"})

	got, ok := tr.Get(id)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.ProcessedFiles)
	assert.Equal(t, int64(2048), got.ProcessedBytes)
	assert.Equal(t, "/b", got.CurrentItem)
	assert.InDelta(t, 100.0, got.Percent(), 0.001)
	assert.Greater(t, got.SpeedBPS, 0.0)
}

func TestProcessedNeverExceedsTotals(t *testing.T) {
	tr := NewTracker()
	id := NewID(types.OpCopy)
	tr.Create(id, types.OpCopy, 1, 100)
	tr.Start(id)

	tr.Updates(id, Update{AddFiles: 5, AddBytes: 500})

	got, _ := tr.Get(id)
	assert.Equal(t, int64(1), got.ProcessedFiles)
	assert.Equal(t, int64(100), got.ProcessedBytes)
}

func TestCallbacksInvokedSynchronously(t *testing.T) {
	tr := NewTracker()
	id := NewID(types.OpMove)
	tr.Create(id, types.OpMove, 1, 0)

	var seen []types.OperationStatus
	tr.AddCallback(id, func(p Progress) {
		seen = append(seen, p.Status)
	})

	tr.Start(id)
	tr.Updates(id, Update{AddFiles: 1})
	tr.Complete(id, true)

	require.Len(t, seen, 3)
	assert.Equal(t, types.StatusInProgress, seen[0])
	assert.Equal(t, types.StatusCompleted, seen[2])
}

func TestPanickingCallbackDoesNotAbort(t *testing.T) {
	tr := NewTracker()
	id := NewID(types.OpDelete)
	tr.Create(id, types.OpDelete, 2, 0)

	var calls int
	tr.AddCallback(id, func(Progress) { panic("observer bug") })
	tr.AddCallback(id, func(Progress) { calls++ })

	tr.Start(id)
	tr.Updates(id, Update{AddFiles: 1})

	assert.Equal(t, 2, calls, "later callbacks still run after a panic")
}

func TestCancelIsSticky(t *testing.T) {
	tr := NewTracker()
	id := NewID(types.OpCopy)
	tr.Create(id, types.OpCopy, 10, 1000)
	tr.Start(id)

	tr.Cancel(id)
	assert.True(t, tr.Cancelled(id))

	// Updates and completion after cancellation are ignored.
	tr.Updates(id, Update{AddFiles: 1})
	tr.Complete(id, true)

	got, _ := tr.Get(id)
	assert.Equal(t, types.StatusCancelled, got.Status)
	assert.Equal(t, int64(0), got.ProcessedFiles)
}

func TestCompleteFailed(t *testing.T) {
	tr := NewTracker()
	id := NewID(types.OpCopy)
	tr.Create(id, types.OpCopy, 1, 0)
	tr.Start(id)
	tr.Updates(id, Update{Error: "boom"})
	tr.Complete(id, false)

	got, _ := tr.Get(id)
	assert.Equal(t, types.StatusFailed, got.Status)
	assert.Equal(t, []string{"boom"}, got.Errors)
}

func TestRemove(t *testing.T) {
	tr := NewTracker()
	id := NewID(types.OpCopy)
	tr.Create(id, types.OpCopy, 1, 0)
	tr.Remove(id)

	_, ok := tr.Get(id)
	assert.False(t, ok)
}

func TestPercentFallsBackToFiles(t *testing.T) {
	p := Progress{TotalFiles: 4, ProcessedFiles: 1}
	assert.InDelta(t, 25.0, p.Percent(), 0.001)

	empty := Progress{}
	assert.Equal(t, 0.0, empty.Percent())
}
