// Package events provides the in-process bus connecting the batch watcher
// to the terminal UI and the session mirror. Publishing never blocks: a
// subscriber that stops draining loses events rather than stalling the
// poll loop.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/proptour/proptour-cli/internal/constants"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventPhaseChange EventType = "phase_change" // batch lifecycle transition
	EventProgress    EventType = "progress"     // per-item and aggregate progress update
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

// PhaseChangeEvent represents a batch lifecycle transition
type PhaseChangeEvent struct {
	BaseEvent
	BatchID  string
	OldPhase string
	NewPhase string
	Reason   string // populated on failure transitions
	Progress int    // aggregate progress at transition time, -1 when unknown
}

// ItemProgress carries one item's slice of a progress update
type ItemProgress struct {
	Filename string
	Status   string
	Progress int
}

// ProgressEvent represents an aggregate plus per-item progress update
type ProgressEvent struct {
	BaseEvent
	BatchID   string
	Aggregate int
	Items     []ItemProgress
}

// Bus manages event subscriptions and publishing
type Bus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64
}

// NewBus creates a new event bus with the specified per-subscriber buffer
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		all:         make([]chan Event, 0),
		bufferSize:  bufferSize,
	}
}

// Subscribe creates a subscription to a specific event type
func (b *Bus) Subscribe(eventType EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// SubscribeAll creates a subscription to all events
func (b *Bus) SubscribeAll() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, b.bufferSize)
	b.all = append(b.all, ch)
	return ch
}

// Publish sends an event to all subscribers without blocking. Events to a
// full subscriber buffer are dropped and counted.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Type()] {
		select {
		case ch <- event:
		default:
			b.droppedEvents.Add(1)
		}
	}

	for _, ch := range b.all {
		select {
		case ch <- event:
		default:
			b.droppedEvents.Add(1)
		}
	}
}

// Unsubscribe removes a subscription channel from a specific event type
func (b *Bus) Unsubscribe(eventType EventType, ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	subscribers := b.subscribers[eventType]
	for i, subCh := range subscribers {
		if subCh == ch {
			subscribers[i] = subscribers[len(subscribers)-1]
			b.subscribers[eventType] = subscribers[:len(subscribers)-1]
			break
		}
	}
}

// UnsubscribeAll removes a subscription channel from every event type and
// from the all-events list
func (b *Bus) UnsubscribeAll(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	for eventType, subscribers := range b.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				subscribers[i] = subscribers[len(subscribers)-1]
				b.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}

	for i, subCh := range b.all {
		if subCh == ch {
			b.all[i] = b.all[len(b.all)-1]
			b.all = b.all[:len(b.all)-1]
			break
		}
	}
}

// Close shuts down the bus and closes all subscriber channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, channels := range b.subscribers {
		for _, ch := range channels {
			close(ch)
		}
	}
	for _, ch := range b.all {
		close(ch)
	}
}

// PublishPhaseChange is a convenience method for publishing lifecycle
// transitions
func (b *Bus) PublishPhaseChange(batchID, oldPhase, newPhase, reason string, progress int) {
	b.Publish(&PhaseChangeEvent{
		BaseEvent: BaseEvent{
			EventType: EventPhaseChange,
			Time:      time.Now(),
		},
		BatchID:  batchID,
		OldPhase: oldPhase,
		NewPhase: newPhase,
		Reason:   reason,
		Progress: progress,
	})
}

// PublishProgress is a convenience method for publishing progress updates
func (b *Bus) PublishProgress(batchID string, aggregate int, items []ItemProgress) {
	b.Publish(&ProgressEvent{
		BaseEvent: BaseEvent{
			EventType: EventProgress,
			Time:      time.Now(),
		},
		BatchID:   batchID,
		Aggregate: aggregate,
		Items:     items,
	})
}

// DroppedEventCount returns the number of events dropped on full buffers
func (b *Bus) DroppedEventCount() int64 {
	return b.droppedEvents.Load()
}
