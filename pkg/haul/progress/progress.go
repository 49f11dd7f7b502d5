// Package progress tracks per-operation counters for the haul engine and
// fans out updates to registered observers. Executors drive updates; any
// number of callbacks may observe an operation. Throughput and ETA are
// recomputed on every update and are advisory only.
package progress

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haulfm/haul/pkg/haul/logging"
	"github.com/haulfm/haul/pkg/haul/types"
)

// Progress is a snapshot of one operation's counters. Processed counters
// never exceed their totals; status is sticky once terminal.
type Progress struct {
	ID             string
	Type           types.OperationType
	TotalFiles     int64
	ProcessedFiles int64
	TotalBytes     int64
	ProcessedBytes int64
	CurrentItem    string
	Status         types.OperationStatus
	Errors         []string
	SpeedBPS       float64
	ETA            time.Duration
	StartTime      time.Time
}

// Percent returns the completion percentage, preferring byte totals over
// file counts.
func (p Progress) Percent() float64 {
	if p.TotalBytes > 0 {
		return float64(p.ProcessedBytes) / float64(p.TotalBytes) * 100
	}
	if p.TotalFiles > 0 {
		return float64(p.ProcessedFiles) / float64(p.TotalFiles) * 100
	}
	return 0
}

// Elapsed returns the time since the operation started.
func (p Progress) Elapsed() time.Duration {
	return time.Since(p.StartTime)
}

// Callback observes progress updates. Callbacks run synchronously on the
// updating goroutine; failures are logged and never abort the operation.
type Callback func(Progress)

// Update describes a delta applied to an operation's counters.
type Update struct {
	AddFiles    int64
	AddBytes    int64
	CurrentItem string
	Error       string
}

// Tracker tracks all in-flight operations.
type Tracker struct {
	mu        sync.Mutex
	ops       map[string]*Progress
	callbacks map[string][]Callback
	log       *logging.Logger
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		ops:       make(map[string]*Progress),
		callbacks: make(map[string][]Callback),
		log:       logging.Get("progress"),
	}
}

// NewID generates an operation id for the given kind.
func NewID(kind types.OperationType) string {
	return fmt.Sprintf("%s-%s", kind, uuid.New().String())
}

// Create registers a new operation and returns its initial snapshot.
func (t *Tracker) Create(id string, kind types.OperationType, totalFiles, totalBytes int64) Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := &Progress{
		ID:         id,
		Type:       kind,
		TotalFiles: totalFiles,
		TotalBytes: totalBytes,
		Status:     types.StatusPending,
		StartTime:  time.Now(),
	}
	t.ops[id] = p
	return *p
}

// Start marks an operation as in progress.
func (t *Tracker) Start(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.ops[id]
	if !ok || p.Status.Terminal() {
		return
	}
	p.Status = types.StatusInProgress
	t.notifyLocked(id, *p)
}

// Updates applies a delta to an operation, recomputes throughput and ETA,
// and notifies observers. Updates against terminal operations are ignored.
func (t *Tracker) Updates(id string, u Update) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.ops[id]
	if !ok || p.Status.Terminal() {
		return
	}

	p.ProcessedFiles += u.AddFiles
	if p.TotalFiles > 0 && p.ProcessedFiles > p.TotalFiles {
		p.ProcessedFiles = p.TotalFiles
	}
	p.ProcessedBytes += u.AddBytes
	if p.TotalBytes > 0 && p.ProcessedBytes > p.TotalBytes {
		p.ProcessedBytes = p.TotalBytes
	}
	if u.CurrentItem != "" {
		p.CurrentItem = u.CurrentItem
	}
	if u.Error != "" {
		p.Errors = append(p.Errors, u.Error)
	}

	elapsed := time.Since(p.StartTime).Seconds()
	if elapsed > 0 && p.ProcessedBytes > 0 {
		p.SpeedBPS = float64(p.ProcessedBytes) / elapsed
		if p.SpeedBPS > 0 {
			remaining := float64(p.TotalBytes - p.ProcessedBytes)
			p.ETA = time.Duration(remaining / p.SpeedBPS * float64(time.Second))
		}
	}

	t.notifyLocked(id, *p)
}

// AddCallback registers an observer for an operation.
func (t *Tracker) AddCallback(id string, cb Callback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks[id] = append(t.callbacks[id], cb)
}

// Complete marks an operation completed or failed. Already-terminal
// operations (notably cancelled ones) keep their status.
func (t *Tracker) Complete(id string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.ops[id]
	if !ok || p.Status.Terminal() {
		return
	}
	if success {
		p.Status = types.StatusCompleted
	} else {
		p.Status = types.StatusFailed
	}
	t.notifyLocked(id, *p)
}

// Cancel marks an operation cancelled. Executors observe this between
// units of work and stop before the next one.
func (t *Tracker) Cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.ops[id]
	if !ok || p.Status.Terminal() {
		return
	}
	p.Status = types.StatusCancelled
	t.notifyLocked(id, *p)
}

// Cancelled reports whether the operation has been cancelled.
func (t *Tracker) Cancelled(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.ops[id]
	return ok && p.Status == types.StatusCancelled
}

// Get returns a snapshot of the operation, if known.
func (t *Tracker) Get(id string) (Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.ops[id]
	if !ok {
		return Progress{}, false
	}
	return *p, true
}

// Remove discards a finished operation and its callbacks.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ops, id)
	delete(t.callbacks, id)
}

// notifyLocked invokes callbacks with a snapshot. Caller holds the lock;
// a panicking callback is logged and must not abort the operation.
func (t *Tracker) notifyLocked(id string, snapshot Progress) {
	for _, cb := range t.callbacks[id] {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.log.Error("progress callback panicked", "op", id, "panic", r)
				}
			}()
			cb(snapshot)
		}()
	}
}
