package session

import (
	"context"

	"github.com/proptour/proptour-cli/internal/events"
	"github.com/proptour/proptour-cli/internal/logging"
	"github.com/proptour/proptour-cli/internal/models"
	"github.com/proptour/proptour-cli/internal/watcher"
)

// ResumeAction is the cold-start outcome for a loaded session record.
type ResumeAction int

const (
	// ActionIdle - no tracked batch, or the record could not be verified.
	ActionIdle ResumeAction = iota

	// ActionSettle - the batch finished while the process was away; apply
	// its terminal status without polling.
	ActionSettle

	// ActionPoll - the batch is still processing; resume polling.
	ActionPoll
)

// ResumeDecision is what the verify-once pass concluded.
type ResumeDecision struct {
	Action   ResumeAction
	BatchID  string
	Status   string
	Progress int
}

// Bridge mirrors the watcher's lifecycle into the durable store by
// consuming bus events. Storage failures degrade the durability guarantee
// only: they are logged and never interrupt tracking.
type Bridge struct {
	store         *Store
	bus           *events.Bus
	ch            <-chan events.Event
	logger        *logging.Logger
	authenticated func() bool
}

// NewBridge wires a bridge over the store and bus. The subscription is
// taken here, not in Run, so events published before the Run goroutine is
// scheduled are buffered rather than lost. The authenticated callback gates
// every write: an unauthenticated process never touches the durable record.
func NewBridge(st *Store, bus *events.Bus, authenticated func() bool, logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	if authenticated == nil {
		authenticated = func() bool { return true }
	}
	return &Bridge{
		store:         st,
		bus:           bus,
		ch:            bus.SubscribeAll(),
		logger:        logger,
		authenticated: authenticated,
	}
}

// Run consumes bus events until the context ends, keeping the record in
// step with the watcher. Call in its own goroutine.
func (b *Bridge) Run(ctx context.Context) {
	defer b.bus.UnsubscribeAll(b.ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.ch:
			if !ok {
				return
			}
			b.handle(ev)
		}
	}
}

func (b *Bridge) handle(ev events.Event) {
	if !b.authenticated() {
		return
	}

	switch e := ev.(type) {
	case *events.PhaseChangeEvent:
		b.handlePhase(e)
	case *events.ProgressEvent:
		if e.BatchID == "" {
			return
		}
		b.save(&Record{
			BatchID:            e.BatchID,
			ProcessingComplete: false,
			AggregateProgress:  e.Aggregate,
		})
	}
}

func (b *Bridge) handlePhase(e *events.PhaseChangeEvent) {
	switch e.NewPhase {
	case watcher.PhaseIdle.String():
		if err := b.store.Purge(); err != nil {
			b.logger.Warn().Err(err).Msg("Failed to purge session")
		}
	case watcher.PhasePolling.String():
		progress := e.Progress
		if progress < 0 {
			progress = 0
		}
		b.save(&Record{
			BatchID:            e.BatchID,
			ProcessingComplete: false,
			AggregateProgress:  progress,
		})
	case watcher.PhaseCompleted.String(), watcher.PhaseFailed.String():
		progress := e.Progress
		if progress < 0 {
			progress = 0
		}
		b.save(&Record{
			BatchID:            e.BatchID,
			ProcessingComplete: true,
			AggregateProgress:  progress,
		})
	}
}

func (b *Bridge) save(rec *Record) {
	if err := b.store.Save(rec); err != nil {
		b.logger.Warn().Str("batch_id", rec.BatchID).Err(err).Msg("Failed to persist session")
	}
}

// PurgeOnAuthLoss removes the durable record when the process holds no
// provider credentials. A batch tracked under one identity must never be
// adopted by a later session under another, so losing authentication
// forgets the batch.
func PurgeOnAuthLoss(st *Store, authenticated func() bool, logger *logging.Logger) {
	if authenticated != nil && authenticated() {
		return
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	rec, err := st.Load()
	if err == nil && rec == nil {
		return
	}
	if err := st.Purge(); err != nil {
		logger.Warn().Err(err).Msg("Failed to purge session after authentication loss")
		return
	}
	if rec != nil {
		logger.Info().Str("batch_id", rec.BatchID).Msg("No credentials configured, tracked batch forgotten")
	}
}

// Resume performs the cold-start verify-once pass: load the record, fetch
// the batch's live status exactly once, and decide whether to settle,
// resume polling, or purge. Any fetch failure purges: a record that cannot
// be verified is treated as stale rather than retried.
func Resume(ctx context.Context, st *Store, fetch watcher.StatusFetcher, logger *logging.Logger) (ResumeDecision, error) {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	rec, err := st.Load()
	if err != nil {
		logger.Warn().Err(err).Msg("Discarding unreadable session")
		_ = st.Purge()
		return ResumeDecision{Action: ActionIdle}, nil
	}
	if rec == nil {
		return ResumeDecision{Action: ActionIdle}, nil
	}

	status, err := fetch.GetBatchStatus(ctx, rec.BatchID)
	if err != nil {
		if ctx.Err() != nil {
			return ResumeDecision{Action: ActionIdle}, ctx.Err()
		}
		logger.Info().Str("batch_id", rec.BatchID).Err(err).Msg("Tracked batch could not be verified, clearing session")
		_ = st.Purge()
		return ResumeDecision{Action: ActionIdle}, nil
	}

	progress := rec.AggregateProgress
	if agg, ok := status.AggregateProgress(); ok {
		progress = agg
	}

	if models.IsTerminalStatus(status.Status) {
		return ResumeDecision{
			Action:   ActionSettle,
			BatchID:  rec.BatchID,
			Status:   status.Status,
			Progress: progress,
		}, nil
	}

	return ResumeDecision{
		Action:   ActionPoll,
		BatchID:  rec.BatchID,
		Status:   status.Status,
		Progress: progress,
	}, nil
}
