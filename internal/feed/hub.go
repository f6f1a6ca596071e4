// Package feed pushes newly stored messages to live conversation viewers.
// Events originate from a Postgres NOTIFY trigger on the messages table.
package feed

import (
	"log/slog"
	"sort"
	"sync"

	"telemed-admin/internal/metrics"
	"telemed-admin/internal/repo"
)

const subscriberBuffer = 16

// Subscriber receives live messages for one session.
type Subscriber struct {
	SessionID string
	C         <-chan repo.Message
	ch        chan repo.Message
}

// Hub fans message events out to per-session subscribers.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	subs map[string]map[*Subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger, metricRegistry *metrics.Metrics) *Hub {
	return &Hub{
		logger:  logger.With("component", "feed_hub"),
		metrics: metricRegistry,
		subs:    map[string]map[*Subscriber]struct{}{},
	}
}

// Subscribe registers a viewer for a session's messages.
func (h *Hub) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{SessionID: sessionID, ch: make(chan repo.Message, subscriberBuffer)}
	sub.C = sub.ch

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = map[*Subscriber]struct{}{}
	}
	h.subs[sessionID][sub] = struct{}{}
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.FeedSubscribers.Inc()
	}
	return sub
}

// Unsubscribe removes a viewer and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.mu.Lock()
	if set, ok := h.subs[sub.SessionID]; ok {
		if _, ok := set[sub]; ok {
			delete(set, sub)
			close(sub.ch)
			if len(set) == 0 {
				delete(h.subs, sub.SessionID)
			}
			if h.metrics != nil {
				h.metrics.FeedSubscribers.Dec()
			}
		}
	}
	h.mu.Unlock()
}

// Publish delivers a message to the session's subscribers. Subscribers whose
// buffers are full miss the event; they recover on the next transcript fetch.
func (h *Hub) Publish(msg repo.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[msg.SessionID] {
		select {
		case sub.ch <- msg:
			if h.metrics != nil {
				h.metrics.FeedEvents.WithLabelValues("delivered").Inc()
			}
		default:
			if h.metrics != nil {
				h.metrics.FeedEvents.WithLabelValues("dropped").Inc()
			}
		}
	}
}

// InsertOrdered places a message into a transcript slice by created_at. The
// change feed does not guarantee storage order, so viewers re-sort instead
// of blindly appending.
func InsertOrdered(transcript []repo.Message, msg repo.Message) []repo.Message {
	idx := sort.Search(len(transcript), func(i int) bool {
		return transcript[i].CreatedAt.After(msg.CreatedAt)
	})
	transcript = append(transcript, repo.Message{})
	copy(transcript[idx+1:], transcript[idx:])
	transcript[idx] = msg
	return transcript
}

// DrainOrdered collects first plus everything already queued on a subscriber
// channel and returns the batch sorted by created_at. Notifications for
// near-simultaneous inserts can arrive out of storage order; delivering in
// drained batches lets viewers write them in timestamp order.
func DrainOrdered(first repo.Message, ch <-chan repo.Message) []repo.Message {
	batch := InsertOrdered(nil, first)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return batch
			}
			batch = InsertOrdered(batch, msg)
		default:
			return batch
		}
	}
}
