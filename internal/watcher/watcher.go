// Package watcher runs the batch lifecycle state machine: it polls the
// backend for batch status, folds responses into a single tagged phase,
// and raises each terminal notice exactly once.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/proptour/proptour-cli/internal/constants"
	"github.com/proptour/proptour-cli/internal/events"
	"github.com/proptour/proptour-cli/internal/logging"
	"github.com/proptour/proptour-cli/internal/models"
)

// Phase is the batch lifecycle position. Exactly one phase holds at any
// moment; transitions only happen through the watcher.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSubmitting
	PhasePolling
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSubmitting:
		return "submitting"
	case PhasePolling:
		return "polling"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureReason distinguishes why a batch landed in PhaseFailed.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonProcessingFailed
	ReasonPartiallyCompleted
	ReasonStatusCheckFailed
)

func (r FailureReason) String() string {
	switch r {
	case ReasonProcessingFailed:
		return "processing_failed"
	case ReasonPartiallyCompleted:
		return "partially_completed"
	case ReasonStatusCheckFailed:
		return "status_check_failed"
	default:
		return ""
	}
}

// StatusFetcher fetches one batch status snapshot.
type StatusFetcher interface {
	GetBatchStatus(ctx context.Context, batchID string) (*models.BatchStatus, error)
}

// Notifier receives the one-shot terminal notices. Each method is invoked
// at most once per batch lifecycle.
type Notifier interface {
	BatchCompleted(batchID string)
	ProcessingFailed(batchID, status string)
	PartiallyCompleted(batchID string)
	StatusCheckFailed(batchID string, err error)
}

// Snapshot is a consistent read of the watcher's state.
type Snapshot struct {
	Phase    Phase
	BatchID  string
	Progress int // -1 while no item detail has been seen
	Reason   FailureReason
}

// Watcher owns the polling loop. At most one fetch is ever outstanding: the
// loop is a single goroutine that fetches, folds the response, then sleeps
// the poll interval before the next fetch.
type Watcher struct {
	fetch    StatusFetcher
	notify   Notifier
	bus      *events.Bus
	logger   *logging.Logger
	interval time.Duration

	mu          sync.Mutex
	phase       Phase
	batchID     string
	progress    int
	reason      FailureReason
	noticeFired bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// New creates a watcher. A non-positive interval falls back to the default
// poll interval.
func New(fetch StatusFetcher, notify Notifier, bus *events.Bus, logger *logging.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = constants.PollInterval
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Watcher{
		fetch:    fetch,
		notify:   notify,
		bus:      bus,
		logger:   logger,
		interval: interval,
		phase:    PhaseIdle,
		progress: -1,
	}
}

// Snapshot returns the current state.
func (w *Watcher) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		Phase:    w.phase,
		BatchID:  w.batchID,
		Progress: w.progress,
		Reason:   w.reason,
	}
}

// BeginSubmit moves the machine into the submitting phase and resets the
// per-lifecycle state: progress unknown, no failure reason, notices armed.
func (w *Watcher) BeginSubmit() {
	w.Stop()

	w.mu.Lock()
	old := w.phase
	w.phase = PhaseSubmitting
	w.batchID = ""
	w.progress = -1
	w.reason = ReasonNone
	w.noticeFired = false
	w.mu.Unlock()

	w.publishPhase("", old, PhaseSubmitting, ReasonNone, -1)
}

// AbortSubmit returns to idle after a submission that never produced a
// batch id.
func (w *Watcher) AbortSubmit() {
	w.mu.Lock()
	old := w.phase
	w.phase = PhaseIdle
	w.mu.Unlock()

	w.publishPhase("", old, PhaseIdle, ReasonNone, -1)
}

// Watch starts polling the given batch. Any previous poll loop is stopped
// first. The first fetch happens immediately; each later fetch waits the
// poll interval after the previous one returned.
func (w *Watcher) Watch(ctx context.Context, batchID string) {
	w.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	w.mu.Lock()
	old := w.phase
	if batchID != w.batchID {
		// A different batch is a fresh lifecycle: progress unknown,
		// notices armed.
		w.progress = -1
		w.noticeFired = false
	}
	w.phase = PhasePolling
	w.batchID = batchID
	w.reason = ReasonNone
	w.cancel = cancel
	w.done = done
	progress := w.progress
	w.mu.Unlock()

	w.publishPhase(batchID, old, PhasePolling, ReasonNone, progress)
	go w.run(runCtx, batchID, done)
}

// Settle records a terminal status observed outside the poll loop, such as
// a cold-start resume finding the batch already finished. Fires the same
// one-shot notice the loop would have.
func (w *Watcher) Settle(batchID, status string, progress int) {
	w.Stop()

	w.mu.Lock()
	w.batchID = batchID
	if progress >= 0 {
		w.progress = progress
	}
	w.mu.Unlock()

	w.applyTerminal(batchID, status)
}

// Stop halts the poll loop and waits for it to exit. Safe to call from any
// state, including repeatedly.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (w *Watcher) run(ctx context.Context, batchID string, done chan struct{}) {
	defer close(done)

	for {
		status, err := w.fetch.GetBatchStatus(ctx, batchID)
		if ctx.Err() != nil {
			// Stopped while the fetch was in flight. The response, if any,
			// belongs to a lifecycle that no longer exists.
			return
		}
		if err != nil {
			w.logger.Error().Str("batch_id", batchID).Err(err).Msg("Status check failed")
			w.failWith(batchID, ReasonStatusCheckFailed, func(n Notifier) {
				n.StatusCheckFailed(batchID, err)
			})
			return
		}

		w.applyStatus(batchID, status)

		w.mu.Lock()
		terminal := w.phase != PhasePolling
		w.mu.Unlock()
		if terminal {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.interval):
		}
	}
}

// applyStatus folds one status response into the machine. An empty detail
// list keeps the previous progress value rather than resetting it.
func (w *Watcher) applyStatus(batchID string, status *models.BatchStatus) {
	if agg, ok := status.AggregateProgress(); ok {
		w.mu.Lock()
		w.progress = agg
		w.mu.Unlock()

		if w.bus != nil {
			items := make([]events.ItemProgress, 0, len(status.JobDetails))
			for _, d := range status.JobDetails {
				items = append(items, events.ItemProgress{
					Filename: d.Filename,
					Status:   d.Status,
					Progress: d.Progress,
				})
			}
			w.bus.PublishProgress(batchID, agg, items)
		}
	}

	if models.IsTerminalStatus(status.Status) {
		w.applyTerminal(batchID, status.Status)
	}
}

func (w *Watcher) applyTerminal(batchID, status string) {
	switch status {
	case constants.StatusCompleted:
		w.mu.Lock()
		old := w.phase
		w.phase = PhaseCompleted
		w.reason = ReasonNone
		fire := !w.noticeFired
		w.noticeFired = true
		progress := w.progress
		w.mu.Unlock()

		w.publishPhase(batchID, old, PhaseCompleted, ReasonNone, progress)
		if fire && w.notify != nil {
			w.notify.BatchCompleted(batchID)
		}

	case constants.StatusPartiallyCompleted:
		w.failWith(batchID, ReasonPartiallyCompleted, func(n Notifier) {
			n.PartiallyCompleted(batchID)
		})

	default:
		// failed, error, and anything Settle is told is terminal
		w.failWith(batchID, ReasonProcessingFailed, func(n Notifier) {
			n.ProcessingFailed(batchID, status)
		})
	}
}

func (w *Watcher) failWith(batchID string, reason FailureReason, notice func(Notifier)) {
	w.mu.Lock()
	old := w.phase
	w.phase = PhaseFailed
	w.reason = reason
	fire := !w.noticeFired
	w.noticeFired = true
	progress := w.progress
	w.mu.Unlock()

	w.publishPhase(batchID, old, PhaseFailed, reason, progress)
	if fire && w.notify != nil {
		notice(w.notify)
	}
}

func (w *Watcher) publishPhase(batchID string, old, next Phase, reason FailureReason, progress int) {
	if w.bus == nil || old == next {
		return
	}
	w.bus.PublishPhaseChange(batchID, old.String(), next.String(), reason.String(), progress)
}
