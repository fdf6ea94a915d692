package bridge

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatprobe/delivery"
	"github.com/opd-ai/chatprobe/protocol"
	"github.com/opd-ai/chatprobe/transport"
)

// listener keeps one long-lived channel to one endpoint open, routing its
// events to the tracker. Lifecycle: absent -> listening -> (reconnecting)*
// -> listening -> absent.
type listener struct {
	endpointID string
	address    string
	tracker    *delivery.Tracker
	floor      time.Duration
	ceiling    time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	connected atomic.Bool
	stopped   chan struct{}
}

func newListener(parent context.Context, endpointID, address string, tracker *delivery.Tracker, floor, ceiling time.Duration) *listener {
	ctx, cancel := context.WithCancel(parent)
	return &listener{
		endpointID: endpointID,
		address:    address,
		tracker:    tracker,
		floor:      floor,
		ceiling:    ceiling,
		ctx:        ctx,
		cancel:     cancel,
		stopped:    make(chan struct{}),
	}
}

// stop cancels the listener; no further reconnect attempts happen.
func (l *listener) stop() {
	l.cancel()
}

// run dials, reads until the channel drops, then sleeps the current backoff
// delay and retries, doubling up to the ceiling. One successful connect
// resets the delay to the floor. A panic anywhere in the loop is recovered:
// one listener must never take down the supervisor.
func (l *listener) run() {
	defer close(l.stopped)
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"function": "run",
				"endpoint": l.endpointID,
				"panic":    r,
			}).Error("Listener panicked, endpoint no longer observed")
		}
	}()

	conn := transport.NewConnection(l.endpointID, l.address)
	conn.OnEvent(l.handleEvent)

	for {
		if l.ctx.Err() != nil {
			return
		}

		if err := conn.Connect(l.ctx); err == nil {
			l.connected.Store(true)
			select {
			case <-l.ctx.Done():
				l.connected.Store(false)
				conn.Close()
				return
			case <-conn.Done():
				l.connected.Store(false)
			}
		}

		delay := Backoff(conn.Failures(), l.floor, l.ceiling)
		logrus.WithFields(logrus.Fields{
			"function": "run",
			"endpoint": l.endpointID,
			"failures": conn.Failures(),
			"delay":    delay.String(),
		}).Debug("Listener waiting before reconnect")

		select {
		case <-l.ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// handleEvent classifies an inbound event by type tag and routes it to the
// tracker. This listener's endpoint is the recipient for incoming messages
// and the sender for status updates.
func (l *listener) handleEvent(endpointID string, ev *protocol.Event) {
	switch ev.Type {
	case protocol.EventNewChatItems:
		for _, item := range ev.Items {
			if err := l.tracker.HandleReceived(l.ctx, l.endpointID, item.Contact, item.Text); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "handleEvent",
					"endpoint": l.endpointID,
					"contact":  item.Contact,
					"error":    err.Error(),
				}).Warn("Failed to process incoming message event")
			}
		}
	case protocol.EventStatusesUpdated:
		for _, upd := range ev.Statuses {
			if err := l.tracker.HandleStatus(l.ctx, l.endpointID, upd); err != nil {
				logrus.WithFields(logrus.Fields{
					"function": "handleEvent",
					"endpoint": l.endpointID,
					"status":   string(upd.Status),
					"error":    err.Error(),
				}).Warn("Failed to process status event")
			}
		}
	default:
		logrus.WithFields(logrus.Fields{
			"function": "handleEvent",
			"endpoint": l.endpointID,
			"type_tag": ev.TypeTag,
		}).Debug("Ignoring event type")
	}
}
