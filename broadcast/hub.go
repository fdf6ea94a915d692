// Package broadcast implements a best-effort notification hub used to push
// read-only status updates to observers. Publishing never blocks and never
// fails the operation being reported on: a subscriber that cannot keep up
// simply misses notifications.
package broadcast

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind classifies a notification.
type Kind string

const (
	// KindBridgeStatus is a periodic connectivity snapshot.
	KindBridgeStatus Kind = "bridge_status"
	// KindCampaignProgress reports campaign progress after each message.
	KindCampaignProgress Kind = "campaign_progress"
	// KindMessageDelivered reports a message reaching delivered state.
	KindMessageDelivered Kind = "message_delivered"
)

// Notification is one status update pushed to observers.
type Notification struct {
	Kind      Kind
	Timestamp time.Time
	Data      any
}

// Hub fans notifications out to subscriber channels.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan Notification
	nextID int
	buffer int
	closed bool
}

// NewHub creates a Hub whose subscriber channels hold up to buffer
// notifications each.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[int]chan Notification),
		buffer: buffer,
	}
}

// Subscribe registers an observer. The returned cancel func removes the
// subscription and closes its channel.
func (h *Hub) Subscribe() (<-chan Notification, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan Notification, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[id] = ch

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers a notification to every subscriber that has buffer space.
// Full subscribers are skipped.
func (h *Hub) Publish(kind Kind, data any) {
	n := Notification{Kind: kind, Timestamp: time.Now(), Data: data}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	for id, ch := range h.subs {
		select {
		case ch <- n:
		default:
			logrus.WithFields(logrus.Fields{
				"function":   "Publish",
				"subscriber": id,
				"kind":       string(kind),
			}).Debug("Subscriber buffer full, notification dropped")
		}
	}
}

// Close shuts the hub down and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
