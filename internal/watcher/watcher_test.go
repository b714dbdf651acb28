package watcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/proptour/proptour-cli/internal/models"
)

// scriptedFetcher serves a fixed sequence of responses, holding the last
// one once the script runs out. It also tracks fetch concurrency.
type scriptedFetcher struct {
	mu        sync.Mutex
	script    []fetchStep
	calls     int
	inFlight  int32
	maxSeen   int32
	fetchTime time.Duration
}

type fetchStep struct {
	status *models.BatchStatus
	err    error
}

func (f *scriptedFetcher) GetBatchStatus(ctx context.Context, batchID string) (*models.BatchStatus, error) {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxSeen)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxSeen, max, cur) {
			break
		}
	}

	if f.fetchTime > 0 {
		select {
		case <-time.After(f.fetchTime):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.script) {
		idx = len(f.script) - 1
	}
	f.calls++
	step := f.script[idx]
	return step.status, step.err
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// countingNotifier tallies each notice type.
type countingNotifier struct {
	mu                sync.Mutex
	completed         int
	processingFailed  int
	partiallyComplete int
	statusCheckFailed int
}

func (n *countingNotifier) BatchCompleted(string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed++
}

func (n *countingNotifier) ProcessingFailed(string, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.processingFailed++
}

func (n *countingNotifier) PartiallyCompleted(string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.partiallyComplete++
}

func (n *countingNotifier) StatusCheckFailed(string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statusCheckFailed++
}

func processing(progresses ...int) *models.BatchStatus {
	s := &models.BatchStatus{Status: "processing"}
	for i, p := range progresses {
		s.JobDetails = append(s.JobDetails, models.JobDetail{
			Filename: "img" + string(rune('a'+i)) + ".jpg",
			Status:   "processing",
			Progress: p,
		})
	}
	return s
}

func waitForPhase(t *testing.T, w *Watcher, phase Phase) Snapshot {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		snap := w.Snapshot()
		if snap.Phase == phase {
			return snap
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("watcher never reached phase %s (now %s)", phase, w.Snapshot().Phase)
	return Snapshot{}
}

// TestWatchProgressesToCompletion drives a batch through two progress
// updates to completion and checks the aggregate, the terminal phase, and
// that the completion notice fired exactly once.
func TestWatchProgressesToCompletion(t *testing.T) {
	fetch := &scriptedFetcher{script: []fetchStep{
		{status: processing(10, 10)},
		{status: processing(50, 60)},
		{status: &models.BatchStatus{Status: "completed"}},
	}}
	notify := &countingNotifier{}
	w := New(fetch, notify, nil, nil, time.Millisecond)

	w.BeginSubmit()
	w.Watch(context.Background(), "batch-1")

	snap := waitForPhase(t, w, PhaseCompleted)
	// The completed response carried no details; the aggregate keeps the
	// last computed value.
	if snap.Progress != 55 {
		t.Errorf("Progress = %d, want 55", snap.Progress)
	}
	if snap.BatchID != "batch-1" {
		t.Errorf("BatchID = %s, want batch-1", snap.BatchID)
	}

	w.Stop()
	if notify.completed != 1 {
		t.Errorf("completion notice fired %d times, want 1", notify.completed)
	}
	if notify.processingFailed != 0 || notify.statusCheckFailed != 0 {
		t.Errorf("unexpected failure notices: %+v", notify)
	}
}

// TestWatchEmptyDetailsKeepsProgress verifies a response with no item
// details never resets the aggregate.
func TestWatchEmptyDetailsKeepsProgress(t *testing.T) {
	fetch := &scriptedFetcher{script: []fetchStep{
		{status: processing(40, 60)},
		{status: &models.BatchStatus{Status: "processing"}}, // no details
		{status: &models.BatchStatus{Status: "completed"}},
	}}
	w := New(fetch, &countingNotifier{}, nil, nil, time.Millisecond)

	w.Watch(context.Background(), "batch-1")
	snap := waitForPhase(t, w, PhaseCompleted)
	w.Stop()

	if snap.Progress != 50 {
		t.Errorf("Progress = %d, want 50 preserved across empty details", snap.Progress)
	}
}

// TestWatchProcessingFailure verifies a failed status lands in the failed
// phase with the processing reason and a single notice.
func TestWatchProcessingFailure(t *testing.T) {
	fetch := &scriptedFetcher{script: []fetchStep{
		{status: &models.BatchStatus{Status: "failed"}},
	}}
	notify := &countingNotifier{}
	w := New(fetch, notify, nil, nil, time.Millisecond)

	w.Watch(context.Background(), "batch-1")
	snap := waitForPhase(t, w, PhaseFailed)
	w.Stop()

	if snap.Reason != ReasonProcessingFailed {
		t.Errorf("Reason = %s, want processing_failed", snap.Reason)
	}
	if notify.processingFailed != 1 {
		t.Errorf("failure notice fired %d times, want 1", notify.processingFailed)
	}
	if notify.completed != 0 {
		t.Error("completion notice fired on failure")
	}
}

// TestWatchPartialCompletion verifies the partial outcome is failure with
// its own reason and notice.
func TestWatchPartialCompletion(t *testing.T) {
	fetch := &scriptedFetcher{script: []fetchStep{
		{status: &models.BatchStatus{Status: "partially_completed"}},
	}}
	notify := &countingNotifier{}
	w := New(fetch, notify, nil, nil, time.Millisecond)

	w.Watch(context.Background(), "batch-1")
	snap := waitForPhase(t, w, PhaseFailed)
	w.Stop()

	if snap.Reason != ReasonPartiallyCompleted {
		t.Errorf("Reason = %s, want partially_completed", snap.Reason)
	}
	if notify.partiallyComplete != 1 {
		t.Errorf("partial notice fired %d times, want 1", notify.partiallyComplete)
	}
}

// TestWatchStatusCheckFailure verifies a fetch error stops polling, lands
// in failed with the transport reason, and notifies once.
func TestWatchStatusCheckFailure(t *testing.T) {
	fetch := &scriptedFetcher{script: []fetchStep{
		{err: errors.New("connection refused")},
	}}
	notify := &countingNotifier{}
	w := New(fetch, notify, nil, nil, time.Millisecond)

	w.Watch(context.Background(), "batch-1")
	snap := waitForPhase(t, w, PhaseFailed)
	w.Stop()

	if snap.Reason != ReasonStatusCheckFailed {
		t.Errorf("Reason = %s, want status_check_failed", snap.Reason)
	}
	if notify.statusCheckFailed != 1 {
		t.Errorf("status check notice fired %d times, want 1", notify.statusCheckFailed)
	}

	// The loop must have stopped after the failure.
	calls := fetch.callCount()
	time.Sleep(20 * time.Millisecond)
	if fetch.callCount() != calls {
		t.Error("poll loop kept fetching after a status check failure")
	}
}

// TestWatchSingleOutstandingFetch verifies at most one fetch is ever in
// flight even when responses are slower than the interval.
func TestWatchSingleOutstandingFetch(t *testing.T) {
	fetch := &scriptedFetcher{
		script: []fetchStep{
			{status: processing(10)},
			{status: processing(20)},
			{status: processing(30)},
			{status: &models.BatchStatus{Status: "completed"}},
		},
		fetchTime: 10 * time.Millisecond,
	}
	w := New(fetch, &countingNotifier{}, nil, nil, time.Millisecond)

	w.Watch(context.Background(), "batch-1")
	waitForPhase(t, w, PhaseCompleted)
	w.Stop()

	if max := atomic.LoadInt32(&fetch.maxSeen); max != 1 {
		t.Errorf("max concurrent fetches = %d, want 1", max)
	}
}

// TestSettleTerminalStatus verifies resume-settle fires the appropriate
// notice without polling.
func TestSettleTerminalStatus(t *testing.T) {
	notify := &countingNotifier{}
	w := New(&scriptedFetcher{script: []fetchStep{{status: processing(0)}}}, notify, nil, nil, time.Millisecond)

	w.Settle("batch-1", "completed", 100)

	snap := w.Snapshot()
	if snap.Phase != PhaseCompleted {
		t.Errorf("Phase = %s, want completed", snap.Phase)
	}
	if snap.Progress != 100 {
		t.Errorf("Progress = %d, want 100", snap.Progress)
	}
	if notify.completed != 1 {
		t.Errorf("completion notice fired %d times, want 1", notify.completed)
	}
}

// TestBeginSubmitResetsLifecycle verifies a new submission rearms the
// one-shot notices and clears the previous batch's state.
func TestBeginSubmitResetsLifecycle(t *testing.T) {
	fetch := &scriptedFetcher{script: []fetchStep{
		{status: &models.BatchStatus{Status: "completed"}},
	}}
	notify := &countingNotifier{}
	w := New(fetch, notify, nil, nil, time.Millisecond)

	w.Watch(context.Background(), "batch-1")
	waitForPhase(t, w, PhaseCompleted)
	w.Stop()

	w.BeginSubmit()
	snap := w.Snapshot()
	if snap.Phase != PhaseSubmitting {
		t.Errorf("Phase = %s after BeginSubmit, want submitting", snap.Phase)
	}
	if snap.Progress != -1 {
		t.Errorf("Progress = %d after BeginSubmit, want -1", snap.Progress)
	}

	w.Watch(context.Background(), "batch-2")
	waitForPhase(t, w, PhaseCompleted)
	w.Stop()

	if notify.completed != 2 {
		t.Errorf("completion notices = %d across two lifecycles, want 2", notify.completed)
	}
}

// TestWatchNewBatchRearmsNotices verifies watching a different batch id
// resets the per-lifecycle state even without an intervening submission.
func TestWatchNewBatchRearmsNotices(t *testing.T) {
	fetch := &scriptedFetcher{script: []fetchStep{
		{status: processing(60, 80)},
		{status: &models.BatchStatus{Status: "completed"}},
	}}
	notify := &countingNotifier{}
	w := New(fetch, notify, nil, nil, time.Millisecond)

	w.Watch(context.Background(), "batch-1")
	waitForPhase(t, w, PhaseCompleted)
	w.Stop()

	second := &scriptedFetcher{script: []fetchStep{
		{status: &models.BatchStatus{Status: "completed"}},
	}}
	w.fetch = second

	w.Watch(context.Background(), "batch-2")
	snap := waitForPhase(t, w, PhaseCompleted)
	w.Stop()

	// The first batch's aggregate (70) must not leak into the second
	// lifecycle; its first response carried no details.
	if snap.Progress != -1 {
		t.Errorf("Progress = %d for the new batch, want -1", snap.Progress)
	}
	if notify.completed != 2 {
		t.Errorf("completion notices = %d across two batches, want 2", notify.completed)
	}
}

// TestStopIdempotent verifies Stop is safe to call repeatedly and from the
// idle state.
func TestStopIdempotent(t *testing.T) {
	w := New(&scriptedFetcher{script: []fetchStep{{status: processing(10)}}}, &countingNotifier{}, nil, nil, time.Millisecond)

	w.Stop()
	w.Watch(context.Background(), "batch-1")
	w.Stop()
	w.Stop()
}

// TestAbortSubmitReturnsToIdle verifies the failed-submission path.
func TestAbortSubmitReturnsToIdle(t *testing.T) {
	w := New(&scriptedFetcher{script: []fetchStep{{status: processing(0)}}}, &countingNotifier{}, nil, nil, time.Millisecond)

	w.BeginSubmit()
	w.AbortSubmit()

	if phase := w.Snapshot().Phase; phase != PhaseIdle {
		t.Errorf("Phase = %s after AbortSubmit, want idle", phase)
	}
}
