package services

import (
	"log"
	"sync"
	"time"

	"match-wager-system/models"
)

// TransitionEvent is published once per state transition for downstream
// delivery (notifications, websockets). Delivery is fire-and-forget from the
// core's perspective.
type TransitionEvent struct {
	MatchID   string            `json:"match_id"`
	FromState models.MatchState `json:"from_state"`
	ToState   models.MatchState `json:"to_state"`
	Reason    string            `json:"reason,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// EventBus fans transition events out to in-process subscribers over
// buffered channels. Publish never blocks; a subscriber that falls behind
// loses events rather than stalling a state transition.
type EventBus struct {
	mu   sync.RWMutex
	subs []chan TransitionEvent
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe returns a channel receiving future transition events.
func (b *EventBus) Subscribe(buffer int) <-chan TransitionEvent {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan TransitionEvent, buffer)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers ev to every subscriber, dropping on full buffers.
func (b *EventBus) Publish(ev TransitionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("[EVENTS] Subscriber buffer full, dropping %s %s->%s", ev.MatchID, ev.FromState, ev.ToState)
		}
	}
}
