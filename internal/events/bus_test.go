package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBusDeliversToTypeSubscribers(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventSignalValidated, func(e Event) { got <- e })

	bus.PublishSignalValidated("sig-1", "AAPL", "SPRING", 61.5)

	e := waitFor(t, got)
	assert.Equal(t, EventSignalValidated, e.Type)
	assert.Equal(t, "sig-1", e.Data["signal_id"])
	assert.Equal(t, 61.5, e.Data["priority_score"])
	assert.False(t, e.Timestamp.IsZero())
}

func TestBusDoesNotDeliverOtherTypes(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventBreakerOpen, func(e Event) { got <- e })

	bus.Publish(Event{Type: EventScanCompleted})

	select {
	case <-got:
		t.Fatal("subscriber received an event of the wrong type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusSubscribeAllSeesEverything(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 2)
	bus.SubscribeAll(func(e Event) { got <- e })

	bus.PublishSignalRejected("cand-1", "AAPL", "SOS", "Volume", "ratio 1.200 <= min 1.500")
	bus.Publish(Event{Type: EventScanCompleted})

	types := map[EventType]bool{}
	for i := 0; i < 2; i++ {
		types[waitFor(t, got).Type] = true
	}
	assert.True(t, types[EventSignalRejected])
	assert.True(t, types[EventScanCompleted])
}

func TestBusRejectionEventCarriesAudit(t *testing.T) {
	bus := NewBus()
	got := make(chan Event, 1)
	bus.Subscribe(EventSignalRejected, func(e Event) { got <- e })

	bus.PublishSignalRejected("cand-1", "EURUSD", "SOS", "Volume", "ratio 1.200 <= min 1.500")

	e := waitFor(t, got)
	require.Equal(t, "Volume", e.Data["rejection_stage"])
	assert.Contains(t, e.Data["reason"], "1.200")
}
