package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatprobe/broadcast"
	"github.com/opd-ai/chatprobe/protocol"
	"github.com/opd-ai/chatprobe/store"
)

// TimeProvider abstracts time for latency computation in tests.
type TimeProvider interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// DeliveredNotification is published on the hub when a message reaches
// delivered state.
type DeliveredNotification struct {
	MessageID      string `json:"message_id"`
	CampaignID     string `json:"campaign_id,omitempty"`
	Sender         string `json:"sender"`
	Recipient      string `json:"recipient"`
	TotalLatencyMs int64  `json:"total_latency_ms"`
}

// Tracker reconciles asynchronous delivery events against in-flight test
// messages. It is shared by the event bridge supervisor (live events) and
// the campaign runner (delivery waits read its store updates).
type Tracker struct {
	store store.Store
	hub   *broadcast.Hub
	clock TimeProvider
}

// NewTracker creates a Tracker. The hub may be nil when no observers exist.
func NewTracker(st store.Store, hub *broadcast.Hub) *Tracker {
	return &Tracker{
		store: st,
		hub:   hub,
		clock: realClock{},
	}
}

// SetTimeProvider replaces the clock. Tests use this to produce exact
// latency values.
func (t *Tracker) SetTimeProvider(tp TimeProvider) {
	if tp != nil {
		t.clock = tp
	}
}

// HandleReceived processes a "new incoming message" event observed on the
// recipient's listener. It increments the recipient's received counter,
// attempts to match the text to an in-flight message and marks it delivered
// on success. A failed match is not an error: unsolicited chat traffic flows
// through the same endpoints.
func (t *Tracker) HandleReceived(ctx context.Context, recipient, contact, text string) error {
	if err := t.store.IncrementReceived(ctx, recipient); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}

	msg, err := t.matchReceived(ctx, recipient, contact, text)
	if err != nil {
		return err
	}
	if msg == nil {
		logrus.WithFields(logrus.Fields{
			"function":  "HandleReceived",
			"recipient": recipient,
			"contact":   contact,
		}).Debug("Incoming message matched no tracked message")
		return nil
	}

	return t.markDelivered(ctx, msg)
}

// HandleStatus processes a "status updated" event observed on the sender's
// listener. A server acknowledgement stamps the server-received time without
// ever advancing or regressing delivery status; a recipient acknowledgement
// completes delivery.
func (t *Tracker) HandleStatus(ctx context.Context, sender string, upd protocol.StatusUpdate) error {
	switch upd.Status {
	case protocol.StatusServerAck:
		return t.handleServerAck(ctx, sender, upd)
	case protocol.StatusClientAck:
		return t.handleClientAck(ctx, sender, upd)
	default:
		// Decoding already filters to the two meaningful statuses.
		return nil
	}
}

func (t *Tracker) handleServerAck(ctx context.Context, sender string, upd protocol.StatusUpdate) error {
	var msg *store.TestMessage
	var err error

	if tid, ok := Extract(upd.Text); ok {
		// A late server ack may arrive after the recipient ack, so the
		// lookup spans all statuses. It must not regress a delivered
		// message, only backfill the timestamp.
		msg, err = t.store.FindByTrackingID(ctx, tid)
		if err != nil {
			return t.noMatch("handleServerAck", sender, tid, err)
		}
	} else {
		msg, err = t.matchByContent(ctx, sender, upd.Contact, upd.Text)
		if err != nil || msg == nil {
			return err
		}
	}

	if !msg.ServerReceivedAt.IsZero() {
		return nil
	}
	now := t.clock.Now()
	msg.ServerReceivedAt = now
	if !msg.SentAt.IsZero() {
		msg.LatencyToServerMs = now.Sub(msg.SentAt).Milliseconds()
	}
	return t.store.UpdateMessage(ctx, msg)
}

func (t *Tracker) handleClientAck(ctx context.Context, sender string, upd protocol.StatusUpdate) error {
	var msg *store.TestMessage
	var err error

	if tid, ok := Extract(upd.Text); ok {
		msg, err = t.store.FindUndeliveredByTrackingID(ctx, tid)
		if err != nil {
			return t.noMatch("handleClientAck", sender, tid, err)
		}
	} else {
		msg, err = t.matchByContent(ctx, sender, upd.Contact, upd.Text)
		if err != nil || msg == nil {
			return err
		}
	}

	return t.markDelivered(ctx, msg)
}

// matchReceived resolves an incoming message on the recipient side: tracking
// id first, then content correlation via the pairing the contact name maps
// to.
func (t *Tracker) matchReceived(ctx context.Context, recipient, contact, text string) (*store.TestMessage, error) {
	if tid, ok := Extract(text); ok {
		msg, err := t.store.FindUndeliveredByTrackingID(ctx, tid)
		if err != nil {
			return nil, t.noMatch("matchReceived", recipient, tid, err)
		}
		return msg, nil
	}

	pairing, err := t.store.ActivePairingByContact(ctx, recipient, contact)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	msg, err := t.store.FindLatestUndeliveredByContent(ctx, pairing.RemoteEndpoint, recipient, Strip(text))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// matchByContent resolves a status update on the sender side without a
// tracking id.
func (t *Tracker) matchByContent(ctx context.Context, sender, contact, text string) (*store.TestMessage, error) {
	pairing, err := t.store.ActivePairingByContact(ctx, sender, contact)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	msg, err := t.store.FindLatestUndeliveredByContent(ctx, sender, pairing.RemoteEndpoint, Strip(text))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// noMatch downgrades lookup misses and ambiguities to a logged no-op.
// Ambiguous tracking ids are never guessed at.
func (t *Tracker) noMatch(function, endpoint, trackingID string, err error) error {
	if errors.Is(err, store.ErrAmbiguousMatch) {
		logrus.WithFields(logrus.Fields{
			"function":    function,
			"endpoint":    endpoint,
			"tracking_id": trackingID,
		}).Warn("Tracking id matched multiple messages, refusing to guess")
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

// markDelivered transitions a message to delivered, computes latencies and
// fires side effects. Only sending and sent messages transition; anything
// else is a late duplicate and is dropped.
func (t *Tracker) markDelivered(ctx context.Context, msg *store.TestMessage) error {
	if msg.Status != store.StatusSending && msg.Status != store.StatusSent {
		return nil
	}

	now := t.clock.Now()
	msg.Status = store.StatusDelivered
	msg.ClientReceivedAt = now
	if !msg.ServerReceivedAt.IsZero() {
		msg.LatencyToClientMs = now.Sub(msg.ServerReceivedAt).Milliseconds()
	}
	if !msg.SentAt.IsZero() {
		msg.TotalLatencyMs = now.Sub(msg.SentAt).Milliseconds()
	}
	if err := t.store.UpdateMessage(ctx, msg); err != nil {
		return err
	}

	if err := t.store.IncrementReceived(ctx, msg.Recipient); err != nil && !errors.Is(err, store.ErrNotFound) {
		logrus.WithFields(logrus.Fields{
			"function": "markDelivered",
			"endpoint": msg.Recipient,
			"error":    err.Error(),
		}).Warn("Failed to increment received counter")
	}
	t.touch(ctx, msg.Sender)
	t.touch(ctx, msg.Recipient)

	logrus.WithFields(logrus.Fields{
		"function":         "markDelivered",
		"message_id":       msg.ID,
		"sender":           msg.Sender,
		"recipient":        msg.Recipient,
		"total_latency_ms": msg.TotalLatencyMs,
	}).Info("Message delivered")

	if t.hub != nil {
		t.hub.Publish(broadcast.KindMessageDelivered, DeliveredNotification{
			MessageID:      msg.ID,
			CampaignID:     msg.CampaignID,
			Sender:         msg.Sender,
			Recipient:      msg.Recipient,
			TotalLatencyMs: msg.TotalLatencyMs,
		})
	}
	return nil
}

func (t *Tracker) touch(ctx context.Context, endpoint string) {
	if err := t.store.TouchEndpoint(ctx, endpoint); err != nil && !errors.Is(err, store.ErrNotFound) {
		logrus.WithFields(logrus.Fields{
			"function": "touch",
			"endpoint": endpoint,
			"error":    err.Error(),
		}).Warn("Failed to touch endpoint last-active timestamp")
	}
}
