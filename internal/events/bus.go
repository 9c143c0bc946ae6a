package events

import (
	"sync"
	"time"
)

// EventType classifies audit events emitted by the analysis pipeline.
type EventType string

const (
	EventPipelineCompleted EventType = "PIPELINE_COMPLETED"
	EventPipelineFailed    EventType = "PIPELINE_FAILED"
	EventSignalValidated   EventType = "SIGNAL_VALIDATED"
	EventSignalRejected    EventType = "SIGNAL_REJECTED"
	EventSignalQueued      EventType = "SIGNAL_QUEUED"
	EventBreakerOpen       EventType = "BREAKER_OPEN"
	EventScanCompleted     EventType = "SCAN_COMPLETED"
)

// Event is one audit record.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Subscriber handles published events.
type Subscriber func(Event)

// Bus is an in-process publish/subscribe hub for audit events.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for one event type.
func (b *Bus) Subscribe(t EventType, s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[t] = append(b.subscribers[t], s)
}

// SubscribeAll registers a subscriber for every event.
func (b *Bus) SubscribeAll(s Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, s)
}

// Publish delivers an event to its subscribers. Delivery is
// asynchronous so a slow subscriber cannot stall a pipeline worker.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subscribers[event.Type] {
		go s(event)
	}
	for _, s := range b.allSubs {
		go s(event)
	}
}

// PublishSignalValidated records a candidate that passed the chain.
func (b *Bus) PublishSignalValidated(signalID, symbol, patternType string, priorityScore float64) {
	b.Publish(Event{
		Type: EventSignalValidated,
		Data: map[string]any{
			"signal_id":      signalID,
			"symbol":         symbol,
			"pattern_type":   patternType,
			"priority_score": priorityScore,
		},
	})
}

// PublishSignalRejected records a structured rejection. Rejections are
// expected output, not errors.
func (b *Bus) PublishSignalRejected(patternID, symbol, patternType, stage, reason string) {
	b.Publish(Event{
		Type: EventSignalRejected,
		Data: map[string]any{
			"pattern_id":      patternID,
			"symbol":          symbol,
			"pattern_type":    patternType,
			"rejection_stage": stage,
			"reason":          reason,
		},
	})
}

// PublishBreakerOpen records a symbol whose breaker tripped.
func (b *Bus) PublishBreakerOpen(symbol string) {
	b.Publish(Event{
		Type: EventBreakerOpen,
		Data: map[string]any{"symbol": symbol},
	})
}
