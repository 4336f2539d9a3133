package trainer

import (
	"sync"
	"time"
)

// JobEvent captures one observed job state change, carrying the new snapshot.
type JobEvent struct {
	Seq       int64       `json:"seq"`
	JobID     string      `json:"job_id"`
	Status    JobStatus   `json:"status"`
	Progress  int         `json:"progress"`
	Message   string      `json:"message,omitempty"`
	Job       TrainingJob `json:"job"`
	CreatedAt time.Time   `json:"created_at"`
}

type subscriber chan JobEvent

// EventBus keeps a bounded buffer of recent events and fans them out to
// subscribers. Slow subscribers drop events rather than block publishers.
type EventBus struct {
	mu          sync.RWMutex
	nextSeq     int64
	maxEvents   int
	events      []JobEvent
	subscribers []subscriber
}

// NewEventBus creates a bus retaining at most maxEvents entries.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}
	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]JobEvent, 0, maxEvents),
	}
}

// Publish assigns a sequence number and timestamp, stores the event, and
// notifies subscribers.
func (b *EventBus) Publish(event JobEvent) JobEvent {
	b.mu.Lock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]JobEvent(nil), b.events[trim:]...)
	}
	subs := append([]subscriber(nil), b.subscribers...)
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- event:
		default:
		}
	}
	return event
}

// Since returns buffered events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []JobEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}
	out := make([]JobEvent, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe registers a channel receiving every future event. The returned
// cancel func removes the subscription and closes the channel.
func (b *EventBus) Subscribe() (<-chan JobEvent, func()) {
	ch := make(subscriber, 32)

	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for idx, sub := range b.subscribers {
			if sub == ch {
				b.subscribers = append(b.subscribers[:idx], b.subscribers[idx+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}
