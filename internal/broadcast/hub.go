// Package broadcast fans job lifecycle events out to live subscribers.
package broadcast

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bytedance/sonic"
)

// Event types published on the hub.
const (
	EventSyncStatus   = "sync_status"
	EventSyncProgress = "sync_progress"
	EventReadmeStatus = "readme_status"
	EventHeartbeat    = "heartbeat"
)

// Event is one hub message. Data carries the type-specific payload.
type Event struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriberBuffer bounds how far a subscriber may fall behind before it is
// dropped.
const subscriberBuffer = 16

// Hub fans serialized events out to subscribers. Publish never blocks: a
// subscriber whose buffer is full is pruned rather than stalling the
// publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[chan []byte]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan []byte]struct{})}
}

// Subscribe registers a new subscriber and returns its event channel plus an
// unsubscribe function. The channel is closed on unsubscribe or pruning.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, subscriberBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// Publish serializes the event once and delivers it to every subscriber.
// The event timestamp is stamped here when unset.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	payload, err := sonic.Marshal(event)
	if err != nil {
		slog.Error("marshal broadcast event", "type", event.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		select {
		case ch <- payload:
		default:
			// Subscriber is not draining; drop it instead of blocking.
			delete(h.subs, ch)
			close(ch)
			slog.Warn("dropped slow broadcast subscriber", "type", event.Type)
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
