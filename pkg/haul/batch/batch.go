// Package batch orchestrates many (source, destination) pairs as one
// logical operation. The manager selects an execution strategy, resolves
// destination conflicts per item, and delegates the transfers to the file
// operation executor. Counters are synchronized; an item ends in exactly
// one of completed, failed or skipped.
package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haulfm/haul/pkg/haul/conflict"
	"github.com/haulfm/haul/pkg/haul/fileops"
	"github.com/haulfm/haul/pkg/haul/logging"
	"github.com/haulfm/haul/pkg/haul/progress"
	"github.com/haulfm/haul/pkg/haul/types"
)

// Strategy selects how a batch executes.
type Strategy string

// Execution strategies.
const (
	// StrategySequential processes items one at a time in supplied order.
	StrategySequential Strategy = "sequential"

	// StrategyParallel processes items with a bounded worker pool.
	StrategyParallel Strategy = "parallel"

	// StrategyAdaptive picks between the two from the item count, running a
	// timed probe over the first few items when the count alone is not
	// decisive.
	StrategyAdaptive Strategy = "adaptive"
)

// Item is one (source, destination) pair. Dest is empty for deletions.
type Item struct {
	Source string
	Dest   string
}

// Operation is one logical batch. It is created by a builder, mutated by
// the Manager during Run, and discarded once the result is returned.
type Operation struct {
	ID       string
	Type     types.OperationType
	Items    []Item
	Strategy Strategy

	mu        sync.Mutex
	status    types.OperationStatus
	completed int
	failed    int
	skipped   int
	conflicts []conflict.Info
	affected  []string
	errs      []string
}

// NewCopy builds a batch copying each source into destDir under its base
// name.
func NewCopy(sources []string, destDir string) *Operation {
	return newPairwise(types.OpCopy, sources, destDir)
}

// NewMove builds a batch moving each source into destDir under its base
// name.
func NewMove(sources []string, destDir string) *Operation {
	return newPairwise(types.OpMove, sources, destDir)
}

// NewDelete builds a batch deleting each path.
func NewDelete(paths []string) *Operation {
	op := &Operation{
		ID:       progress.NewID(types.OpDelete),
		Type:     types.OpDelete,
		Strategy: StrategyAdaptive,
		status:   types.StatusPending,
	}
	for _, p := range paths {
		op.Items = append(op.Items, Item{Source: p})
	}
	return op
}

func newPairwise(kind types.OperationType, sources []string, destDir string) *Operation {
	op := &Operation{
		ID:       progress.NewID(kind),
		Type:     kind,
		Strategy: StrategyAdaptive,
		status:   types.StatusPending,
	}
	for _, src := range sources {
		op.Items = append(op.Items, Item{
			Source: src,
			Dest:   filepath.Join(destDir, filepath.Base(src)),
		})
	}
	return op
}

// Counts returns the completed, failed and skipped item counts.
func (o *Operation) Counts() (completed, failed, skipped int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed, o.failed, o.skipped
}

// Status returns the operation's current state.
func (o *Operation) Status() types.OperationStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Conflicts returns the conflicts encountered during execution.
func (o *Operation) Conflicts() []conflict.Info {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]conflict.Info, len(o.conflicts))
	copy(out, o.conflicts)
	return out
}

func (o *Operation) setStatus(s types.OperationStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = s
}

func (o *Operation) recordConflict(info conflict.Info) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conflicts = append(o.conflicts, info)
}

// markCompleted records a finished item and the path it produced or
// removed: the final destination for copies and moves, including any
// conflict-renamed name, or the deleted path.
func (o *Operation) markCompleted(path string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.completed++
	o.affected = append(o.affected, path)
}

func (o *Operation) markSkipped() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped++
}

func (o *Operation) markFailed(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed++
	o.errs = append(o.errs, msg)
}

// Options tunes strategy selection and the worker pool.
type Options struct {
	// Workers bounds parallel execution.
	Workers int

	// SequentialLimit is the item count below which adaptive batches run
	// sequentially without probing.
	SequentialLimit int

	// ParallelThreshold is the item count above which adaptive copy or move
	// batches run parallel without probing.
	ParallelThreshold int

	// ProbeItems is how many leading items the adaptive probe measures.
	ProbeItems int

	// ProbeWorkers bounds probe concurrency.
	ProbeWorkers int

	// ProbeFastPerItem is the average per-item duration below which the
	// probe commits the remainder to parallel execution.
	ProbeFastPerItem time.Duration

	// Permanent applies to delete batches: bypass the trash.
	Permanent bool
}

// Validate applies defaults for zero or invalid values.
func (o *Options) Validate() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.SequentialLimit <= 0 {
		o.SequentialLimit = 10
	}
	if o.ParallelThreshold <= 0 {
		o.ParallelThreshold = 100
	}
	if o.ProbeItems <= 0 {
		o.ProbeItems = 5
	}
	if o.ProbeWorkers <= 0 {
		o.ProbeWorkers = 2
	}
	if o.ProbeFastPerItem <= 0 {
		o.ProbeFastPerItem = 100 * time.Millisecond
	}
}

// Manager executes batch operations.
type Manager struct {
	exec     *fileops.Executor
	resolver *conflict.Resolver
	opts     Options
	log      *logging.Logger
}

// NewManager creates a Manager delegating to the given executor and
// resolver.
func NewManager(exec *fileops.Executor, resolver *conflict.Resolver, opts Options) *Manager {
	opts.Validate()
	return &Manager{
		exec:     exec,
		resolver: resolver,
		opts:     opts,
		log:      logging.Get("batch"),
	}
}

// Run executes a batch to completion. The decision callback is consulted
// for conflicts the automatic rules cannot settle; cb observes progress.
// Success requires every item to complete or be skipped.
func (m *Manager) Run(ctx context.Context, op *Operation, decide conflict.DecisionFunc, cb progress.Callback) (types.OperationResult, error) {
	if len(op.Items) == 0 {
		return types.OperationResult{}, fileops.ErrNoSources
	}

	tracker := m.exec.Tracker()
	tracker.Create(op.ID, op.Type, int64(len(op.Items)), 0)
	defer tracker.Remove(op.ID)
	if cb != nil {
		tracker.AddCallback(op.ID, cb)
	}
	tracker.Start(op.ID)
	op.setStatus(types.StatusInProgress)
	start := time.Now()

	strategy := m.choose(op)
	m.log.Debug("executing batch", "id", op.ID, "type", op.Type, "items", len(op.Items), "strategy", strategy)

	var cancelled bool
	switch strategy {
	case StrategyParallel:
		cancelled = m.runParallel(ctx, op, op.Items, decide, m.opts.Workers)
	case StrategySequential:
		cancelled = m.runSequential(ctx, op, op.Items, decide)
	default:
		cancelled = m.runProbed(ctx, op, decide)
	}

	return m.finish(op, start, cancelled), nil
}

// choose maps an operation to a concrete strategy. Adaptive batches with a
// decisive item count skip the probe: small ones run sequential, large
// copy/move ones run parallel. The sentinel StrategyAdaptive return means
// "probe first".
func (m *Manager) choose(op *Operation) Strategy {
	if op.Strategy != StrategyAdaptive {
		return op.Strategy
	}
	n := len(op.Items)
	if n < m.opts.SequentialLimit {
		return StrategySequential
	}
	if n > m.opts.ParallelThreshold && (op.Type == types.OpCopy || op.Type == types.OpMove) {
		return StrategyParallel
	}
	return StrategyAdaptive
}

// runProbed times a small leading sample in parallel, then commits the
// remainder to parallel or sequential execution from the measured average
// per-item duration.
func (m *Manager) runProbed(ctx context.Context, op *Operation, decide conflict.DecisionFunc) bool {
	probeCount := m.opts.ProbeItems
	if probeCount > len(op.Items) {
		probeCount = len(op.Items)
	}

	probeStart := time.Now()
	if cancelled := m.runParallel(ctx, op, op.Items[:probeCount], decide, m.opts.ProbeWorkers); cancelled {
		return true
	}
	perItem := time.Since(probeStart) / time.Duration(probeCount)

	remainder := op.Items[probeCount:]
	if len(remainder) == 0 {
		return false
	}
	if perItem < m.opts.ProbeFastPerItem {
		m.log.Debug("probe fast, remainder parallel", "id", op.ID, "per_item", perItem)
		return m.runParallel(ctx, op, remainder, decide, m.opts.Workers)
	}
	m.log.Debug("probe slow, remainder sequential", "id", op.ID, "per_item", perItem)
	return m.runSequential(ctx, op, remainder, decide)
}

func (m *Manager) runSequential(ctx context.Context, op *Operation, items []Item, decide conflict.DecisionFunc) bool {
	for _, item := range items {
		if stopRequested(ctx, m.exec.Tracker(), op.ID) {
			return true
		}
		m.runItem(ctx, op, item, decide)
	}
	return false
}

func (m *Manager) runParallel(ctx context.Context, op *Operation, items []Item, decide conflict.DecisionFunc, workers int) bool {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, item := range items {
		item := item
		g.Go(func() error {
			if stopRequested(gctx, m.exec.Tracker(), op.ID) {
				return context.Canceled
			}
			m.runItem(gctx, op, item, decide)
			return nil
		})
	}
	return g.Wait() != nil
}

// runItem settles one pair: detect a conflict, resolve it, execute, and
// bump exactly one counter.
func (m *Manager) runItem(ctx context.Context, op *Operation, item Item, decide conflict.DecisionFunc) {
	tracker := m.exec.Tracker()

	if op.Type == types.OpDelete {
		if err := m.exec.DeletePath(op.ID, item.Source, m.opts.Permanent); err != nil {
			op.markFailed(fmt.Sprintf("delete %s: %v", item.Source, err))
			tracker.Updates(op.ID, progress.Update{Error: err.Error()})
			return
		}
		op.markCompleted(item.Source)
		return
	}

	dest := item.Dest
	info, err := conflict.Detect(item.Source, dest)
	if err != nil {
		op.markFailed(fmt.Sprintf("%s %s: %v", op.Type, item.Source, err))
		tracker.Updates(op.ID, progress.Update{Error: err.Error()})
		return
	}
	if info != nil {
		op.recordConflict(*info)
		switch m.resolver.Resolve(*info, decide) {
		case conflict.ActionSkip:
			op.markSkipped()
			tracker.Updates(op.ID, progress.Update{AddFiles: 1, CurrentItem: item.Source})
			return
		case conflict.ActionRename:
			dest = m.resolver.AvailableName(dest)
		case conflict.ActionBackup:
			if err := fileops.SetAside(dest, m.resolver.BackupName(dest)); err != nil {
				op.markFailed(fmt.Sprintf("%s %s: backing up destination: %v", op.Type, item.Source, err))
				tracker.Updates(op.ID, progress.Update{Error: err.Error()})
				return
			}
		case conflict.ActionOverwrite:
			// Streaming truncates the destination in place.
		}
	}

	switch op.Type {
	case types.OpCopy:
		err = m.exec.CopyTo(ctx, op.ID, item.Source, dest)
	case types.OpMove:
		err = m.exec.MoveTo(ctx, op.ID, item.Source, dest)
	default:
		err = fmt.Errorf("unsupported batch operation %q", op.Type)
	}
	if err != nil {
		op.markFailed(fmt.Sprintf("%s %s: %v", op.Type, item.Source, err))
		tracker.Updates(op.ID, progress.Update{Error: err.Error()})
		return
	}
	op.markCompleted(dest)
}

// finish settles status and builds the uniform result.
func (m *Manager) finish(op *Operation, start time.Time, cancelled bool) types.OperationResult {
	tracker := m.exec.Tracker()
	completed, failed, skipped := op.Counts()

	success := failed == 0 && !cancelled
	switch {
	case cancelled:
		op.setStatus(types.StatusCancelled)
		tracker.Cancel(op.ID)
	case success:
		op.setStatus(types.StatusCompleted)
		tracker.Complete(op.ID, true)
	default:
		op.setStatus(types.StatusFailed)
		tracker.Complete(op.ID, false)
	}

	snapshot, _ := tracker.Get(op.ID)

	message := fmt.Sprintf("batch %s: %d completed, %d failed, %d skipped of %d",
		op.Type, completed, failed, skipped, len(op.Items))
	if cancelled {
		message = fmt.Sprintf("batch %s cancelled: %d completed of %d", op.Type, completed, len(op.Items))
	}

	op.mu.Lock()
	errs := make([]string, len(op.errs))
	copy(errs, op.errs)
	affected := make([]string, len(op.affected))
	copy(affected, op.affected)
	op.mu.Unlock()

	return types.OperationResult{
		Success:        success,
		Message:        message,
		AffectedFiles:  affected,
		Errors:         errs,
		Progress:       snapshot.Percent(),
		Duration:       time.Since(start),
		BytesProcessed: snapshot.ProcessedBytes,
	}
}

func stopRequested(ctx context.Context, tracker *progress.Tracker, id string) bool {
	if ctx != nil && ctx.Err() != nil {
		return true
	}
	return tracker.Cancelled(id)
}
