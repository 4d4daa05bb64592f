// Package progress implements the job progress tracker: atomic item counters
// plus a snapshot that is persisted on lifecycle events and periodically
// while it changes.
package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tigerroll/ddbimport/pkg/batch/core/application/port"
	model "github.com/tigerroll/ddbimport/pkg/batch/core/domain/model"
	"github.com/tigerroll/ddbimport/pkg/batch/core/domain/repository"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/exception"
	"github.com/tigerroll/ddbimport/pkg/batch/support/util/logger"
)

const (
	moduleName = "progress"

	// DefaultFlushInterval is how often a changed snapshot is persisted.
	DefaultFlushInterval = time.Second
)

// Tracker tracks one job. RecordSuccess and RecordFailure are safe to call
// from any goroutine; the remaining methods are meant for the coordinator.
type Tracker struct {
	repo          repository.ProgressRepository // repo is where snapshots are saved.
	flushInterval time.Duration                 // flushInterval is the periodic flush period; zero disables it.
	now           func() time.Time              // now is the clock, replaceable in tests.

	processed atomic.Int64 // processed counts items written by the store.
	failed    atomic.Int64 // failed counts rejected and abandoned items.
	dirty     atomic.Bool  // dirty is set when counters changed since the last flush.

	mu          sync.Mutex
	jobID       string
	table       string
	currentFile string
	status      model.JobStatus
	total       *int64
	startTime   time.Time
	lastUpdate  time.Time
	lastPercent float64
	errMessage  string

	// saveMu serializes repository writes so snapshots land in order.
	saveMu   sync.Mutex
	baseCtx  context.Context
	stopOnce sync.Once
	stop     chan struct{}
	stopped  chan struct{}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithFlushInterval sets the periodic flush interval. Zero disables periodic flushing.
func WithFlushInterval(d time.Duration) Option {
	return func(t *Tracker) {
		if d >= 0 {
			t.flushInterval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a Tracker that persists to repo.
//
// Parameters:
//
//	repo: The progress store snapshots are saved to.
//	opts: Options such as [WithFlushInterval].
//
// Returns:
//
//	A new [Tracker] instance. Nothing is saved until Prepare or Start.
func NewTracker(repo repository.ProgressRepository, opts ...Option) *Tracker {
	t := &Tracker{
		repo:          repo,
		flushInterval: DefaultFlushInterval,
		now:           time.Now,
		status:        model.JobStatusPending,
		baseCtx:       context.Background(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

var _ port.ProgressSink = (*Tracker)(nil)

// Prepare records a pending job so that failures before Start are still visible.
func (t *Tracker) Prepare(ctx context.Context, jobID, table, currentFile string) error {
	t.mu.Lock()
	t.jobID = jobID
	t.table = table
	t.currentFile = currentFile
	t.status = model.JobStatusPending
	now := t.now()
	t.startTime = now
	t.lastUpdate = now
	t.baseCtx = context.WithoutCancel(ctx)
	t.mu.Unlock()
	return t.Flush()
}

// Start moves the job to running and begins periodic flushing.
//
// Parameters:
//
//	ctx: The context used for repository writes until Finish.
//	jobID: The job identifier.
//	table: The target table, for display.
//	total: The number of items to process, or nil when it is not known.
//
// Returns:
//
//	An error if the first snapshot cannot be saved.
func (t *Tracker) Start(ctx context.Context, jobID, table string, total *int64) error {
	t.mu.Lock()
	if t.status.IsFinished() {
		t.mu.Unlock()
		return exception.NewBatchErrorf(moduleName, "job %s already finished", t.jobID)
	}
	if t.jobID != jobID || t.startTime.IsZero() {
		t.startTime = t.now()
	}
	t.jobID = jobID
	t.table = table
	t.status = model.JobStatusRunning
	t.total = cloneInt64(total)
	t.lastUpdate = t.now()
	t.baseCtx = context.WithoutCancel(ctx)
	t.mu.Unlock()

	if t.flushInterval > 0 && t.stop == nil {
		t.stop = make(chan struct{})
		t.stopped = make(chan struct{})
		go t.flushLoop(t.stop, t.stopped)
	}
	logger.Infof("Tracker: job %s started on table %s.", jobID, table)
	return t.Flush()
}

// SetTotal replaces the expected item count.
func (t *Tracker) SetTotal(total *int64) {
	t.mu.Lock()
	t.total = cloneInt64(total)
	t.mu.Unlock()
	t.dirty.Store(true)
}

// SetCurrentFile records the file being imported and flushes.
func (t *Tracker) SetCurrentFile(name string) error {
	t.mu.Lock()
	t.currentFile = name
	t.lastUpdate = t.now()
	t.mu.Unlock()
	return t.Flush()
}

// RecordSuccess counts n items acknowledged by the store.
func (t *Tracker) RecordSuccess(n int64) {
	if n <= 0 {
		return
	}
	t.processed.Add(n)
	t.dirty.Store(true)
}

// RecordFailure counts n rejected or abandoned items.
func (t *Tracker) RecordFailure(n int64) {
	if n <= 0 {
		return
	}
	t.failed.Add(n)
	t.dirty.Store(true)
}

// Finish records the terminal status, stops periodic flushing and flushes.
//
// Parameters:
//
//	status: The terminal status, completed or failed.
//	cause: The failure, if any; it becomes the snapshot's error message.
//
// Returns:
//
//	An error if the final snapshot cannot be saved.
func (t *Tracker) Finish(status model.JobStatus, cause error) error {
	if !status.IsFinished() {
		return exception.NewBatchErrorf(moduleName, "status %s is not terminal", status)
	}
	t.Close()

	t.mu.Lock()
	t.status = status
	if cause != nil {
		t.errMessage = exception.ExtractErrorMessage(cause)
	}
	t.lastUpdate = t.now()
	jobID := t.jobID
	t.mu.Unlock()

	snap := t.Snapshot()
	if status == model.JobStatusFailed {
		logger.Errorf("Tracker: job %s failed after %d processed, %d failed: %s", jobID, snap.ProcessedItems, snap.FailedItems, snap.ErrorMessage)
	} else {
		logger.Infof("Tracker: job %s completed: %d processed, %d failed.", jobID, snap.ProcessedItems, snap.FailedItems)
	}
	return t.save(snap)
}

// Close stops periodic flushing without changing the status. It is safe to
// call more than once.
func (t *Tracker) Close() {
	t.stopOnce.Do(func() {
		if t.stop != nil {
			close(t.stop)
			<-t.stopped
		}
	})
}

// Flush persists the current snapshot.
func (t *Tracker) Flush() error {
	t.dirty.Store(false)
	return t.save(t.Snapshot())
}

func (t *Tracker) save(snap *model.JobProgress) error {
	if snap.JobID == "" {
		return nil
	}
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.Lock()
	ctx := t.baseCtx
	t.mu.Unlock()
	if err := t.repo.Save(ctx, snap); err != nil {
		logger.Warnf("Tracker: failed to save snapshot of job %s: %v", snap.JobID, err)
		return exception.NewBatchError(moduleName, "failed to save progress snapshot", err, true, false)
	}
	return nil
}

func (t *Tracker) flushLoop(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(t.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if t.dirty.Load() {
				t.mu.Lock()
				t.lastUpdate = t.now()
				t.mu.Unlock()
				_ = t.Flush()
			}
		}
	}
}

// Snapshot returns a consistent copy of the job's progress.
func (t *Tracker) Snapshot() *model.JobProgress {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	processed := t.processed.Load()
	failed := t.failed.Load()

	elapsed := 0.0
	if !t.startTime.IsZero() {
		elapsed = now.Sub(t.startTime).Seconds()
	}
	perSecond := 0.0
	if elapsed > 0 {
		perSecond = float64(processed) / max(1, elapsed)
	}

	pct := t.percentage(processed)
	if pct < t.lastPercent {
		pct = t.lastPercent
	}
	t.lastPercent = pct

	return &model.JobProgress{
		JobID:               t.jobID,
		Status:              t.status,
		TableName:           t.table,
		CurrentFile:         t.currentFile,
		TotalItems:          cloneInt64(t.total),
		ProcessedItems:      processed,
		FailedItems:         failed,
		ProgressPercentage:  pct,
		StartTime:           model.TimeToUnixSeconds(t.startTime),
		LastUpdateTime:      model.TimeToUnixSeconds(t.lastUpdate),
		ElapsedTime:         model.Round2(elapsed),
		ItemsPerSecond:      model.Round2(perSecond),
		EstimatedCompletion: t.estimate(now, processed, elapsed, pct),
		ErrorMessage:        t.errMessage,
	}
}

// percentage is processed/total clamped to [0,100]; it must be called with mu held.
func (t *Tracker) percentage(processed int64) float64 {
	if t.total == nil {
		return 0
	}
	if *t.total <= 0 {
		if t.status == model.JobStatusCompleted {
			return 100
		}
		return 0
	}
	pct := float64(processed) / float64(*t.total) * 100
	return model.Round2(min(max(pct, 0), 100))
}

// estimate projects the completion time from the observed throughput; it must
// be called with mu held.
func (t *Tracker) estimate(now time.Time, processed int64, elapsed, pct float64) string {
	if t.status == model.JobStatusCompleted {
		return t.lastUpdate.Format(model.CompletionTimeLayout)
	}
	if t.total == nil || *t.total <= 0 || processed <= 0 || elapsed <= 0 || pct >= 100 {
		return model.UnknownCompletion
	}
	remaining := *t.total - processed
	if remaining <= 0 {
		return model.UnknownCompletion
	}
	rate := float64(processed) / elapsed
	eta := now.Add(time.Duration(float64(remaining) / rate * float64(time.Second)))
	return eta.Format(model.CompletionTimeLayout)
}

// Processed returns the number of acknowledged items so far.
func (t *Tracker) Processed() int64 {
	return t.processed.Load()
}

// Failed returns the number of failed items so far.
func (t *Tracker) Failed() int64 {
	return t.failed.Load()
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
