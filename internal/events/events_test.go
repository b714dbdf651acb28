package events

import (
	"testing"
	"time"
)

// TestSubscribeReceivesMatchingType verifies typed subscriptions only see
// their own events.
func TestSubscribeReceivesMatchingType(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	phases := bus.Subscribe(EventPhaseChange)

	bus.PublishProgress("batch-1", 50, nil)
	bus.PublishPhaseChange("batch-1", "polling", "completed", "", 100)

	select {
	case ev := <-phases:
		pc, ok := ev.(*PhaseChangeEvent)
		if !ok {
			t.Fatalf("received %T, want *PhaseChangeEvent", ev)
		}
		if pc.NewPhase != "completed" || pc.BatchID != "batch-1" {
			t.Errorf("event = %+v", pc)
		}
	case <-time.After(time.Second):
		t.Fatal("phase subscriber received nothing")
	}

	select {
	case ev := <-phases:
		t.Fatalf("phase subscriber received extra event %T", ev)
	default:
	}
}

// TestSubscribeAllSeesEverything verifies the firehose subscription.
func TestSubscribeAllSeesEverything(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	all := bus.SubscribeAll()

	bus.PublishProgress("batch-1", 10, []ItemProgress{{Filename: "a.jpg", Progress: 10}})
	bus.PublishPhaseChange("batch-1", "polling", "failed", "processing_failed", 10)

	for i, want := range []EventType{EventProgress, EventPhaseChange} {
		select {
		case ev := <-all:
			if ev.Type() != want {
				t.Errorf("event %d type = %s, want %s", i, ev.Type(), want)
			}
		case <-time.After(time.Second):
			t.Fatalf("firehose subscriber missed event %d", i)
		}
	}
}

// TestPublishNeverBlocks verifies a full subscriber buffer drops events
// instead of stalling the publisher.
func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	_ = bus.SubscribeAll()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5; i++ {
			bus.PublishProgress("batch-1", i, nil)
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}

	if dropped := bus.DroppedEventCount(); dropped != 4 {
		t.Errorf("DroppedEventCount() = %d, want 4", dropped)
	}
}

// TestUnsubscribeAllStopsDelivery verifies a removed channel gets nothing
// further.
func TestUnsubscribeAllStopsDelivery(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	ch := bus.SubscribeAll()
	bus.UnsubscribeAll(ch)

	bus.PublishProgress("batch-1", 10, nil)

	select {
	case ev := <-ch:
		t.Errorf("unsubscribed channel received %T", ev)
	default:
	}
}

// TestPublishAfterCloseIsSafe verifies closing the bus ends delivery
// without panics.
func TestPublishAfterCloseIsSafe(t *testing.T) {
	bus := NewBus(8)
	ch := bus.SubscribeAll()

	bus.Close()
	bus.PublishProgress("batch-1", 10, nil)

	if _, ok := <-ch; ok {
		t.Error("subscriber channel not closed with the bus")
	}
}
