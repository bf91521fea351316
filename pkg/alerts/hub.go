// Package alerts fans donation alert events out to connected overlay clients.
package alerts

import (
	"sync"

	"go.uber.org/zap"

	"github.com/arcstream/cctp-middleware/internal/metrics"
	"github.com/arcstream/cctp-middleware/pkg/donation"
)

const defaultSubscriberBuffer = 16

// Hub is an in-process pub/sub broker keyed by streamer ID. Delivery is
// best-effort: a subscriber whose buffer is full misses events rather than
// blocking the publisher, and a missed alert is recoverable through the
// latest-donation endpoint.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan donation.AlertEvent]struct{}
	bufferSize  int
	logger      *zap.Logger
}

// NewHub creates a hub. bufferSize is the per-subscriber channel capacity;
// values below one fall back to the default.
func NewHub(bufferSize int, logger *zap.Logger) *Hub {
	if bufferSize < 1 {
		bufferSize = defaultSubscriberBuffer
	}
	return &Hub{
		subscribers: make(map[string]map[chan donation.AlertEvent]struct{}),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe registers a listener for one streamer's alerts. The returned
// cancel func must be called exactly once; after it returns the channel is
// closed and receives nothing further.
func (h *Hub) Subscribe(streamerID string) (<-chan donation.AlertEvent, func()) {
	ch := make(chan donation.AlertEvent, h.bufferSize)

	h.mu.Lock()
	subs, ok := h.subscribers[streamerID]
	if !ok {
		subs = make(map[chan donation.AlertEvent]struct{})
		h.subscribers[streamerID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	metrics.AlertSubscribers.Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if subs, ok := h.subscribers[streamerID]; ok {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(h.subscribers, streamerID)
				}
			}
			h.mu.Unlock()
			close(ch)
			metrics.AlertSubscribers.Dec()
		})
	}
	return ch, cancel
}

// Publish delivers an event to every current subscriber of the streamer.
// It never blocks.
func (h *Hub) Publish(streamerID string, event donation.AlertEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[streamerID] {
		select {
		case ch <- event:
		default:
			metrics.AlertsDropped.Inc()
			h.logger.Warn("Dropping alert for slow subscriber",
				zap.String("streamer_id", streamerID),
				zap.String("donation_id", event.ID))
		}
	}
}

// SubscriberCount reports how many listeners a streamer currently has.
func (h *Hub) SubscriberCount(streamerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[streamerID])
}
