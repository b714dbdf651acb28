package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/proptour/proptour-cli/internal/events"
)

func waitForRecord(t *testing.T, st *Store, want func(*Record) bool) *Record {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := st.Load()
		if err == nil && want(rec) {
			return rec
		}
		time.Sleep(2 * time.Millisecond)
	}
	rec, _ := st.Load()
	t.Fatalf("store never reached expected state, last record: %+v", rec)
	return nil
}

// TestBridgeMirrorsLifecycle verifies the bridge keeps the durable record
// in step with phase and progress events.
func TestBridgeMirrorsLifecycle(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "session.json"))
	bus := events.NewBus(0)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewBridge(st, bus, nil, nil)
	go bridge.Run(ctx)

	bus.PublishPhaseChange("batch-1", "submitting", "polling", "", -1)
	waitForRecord(t, st, func(r *Record) bool {
		return r != nil && r.BatchID == "batch-1" && !r.ProcessingComplete
	})

	bus.PublishProgress("batch-1", 60, nil)
	waitForRecord(t, st, func(r *Record) bool {
		return r != nil && r.AggregateProgress == 60
	})

	bus.PublishPhaseChange("batch-1", "polling", "completed", "", 100)
	waitForRecord(t, st, func(r *Record) bool {
		return r != nil && r.ProcessingComplete && r.AggregateProgress == 100
	})

	bus.PublishPhaseChange("", "completed", "idle", "", -1)
	waitForRecord(t, st, func(r *Record) bool {
		return r == nil
	})
}

// TestBridgeCatchesEventsBeforeRun verifies the subscription is live from
// construction, so an event published before the consumer goroutine is
// scheduled is buffered rather than lost.
func TestBridgeCatchesEventsBeforeRun(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "session.json"))
	bus := events.NewBus(8)
	defer bus.Close()

	bridge := NewBridge(st, bus, nil, nil)
	bus.PublishPhaseChange("batch-1", "submitting", "polling", "", -1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bridge.Run(ctx)

	waitForRecord(t, st, func(r *Record) bool {
		return r != nil && r.BatchID == "batch-1"
	})
}

// TestPurgeOnAuthLoss verifies a record never outlives the credentials it
// was written under.
func TestPurgeOnAuthLoss(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "session.json"))
	if err := st.Save(&Record{BatchID: "batch-1", AggregateProgress: 30}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	PurgeOnAuthLoss(st, func() bool { return true }, nil)
	if rec, _ := st.Load(); rec == nil {
		t.Fatal("authenticated purge removed a live record")
	}

	PurgeOnAuthLoss(st, func() bool { return false }, nil)
	if rec, _ := st.Load(); rec != nil {
		t.Errorf("record survived authentication loss: %+v", rec)
	}
}

// TestBridgeGatedByAuthentication verifies an unauthenticated process
// never writes the durable record.
func TestBridgeGatedByAuthentication(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "session.json"))
	bus := events.NewBus(0)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewBridge(st, bus, func() bool { return false }, nil)
	go bridge.Run(ctx)

	bus.PublishPhaseChange("batch-1", "submitting", "polling", "", -1)
	time.Sleep(20 * time.Millisecond)

	rec, err := st.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec != nil {
		t.Errorf("unauthenticated bridge wrote a record: %+v", rec)
	}
}
