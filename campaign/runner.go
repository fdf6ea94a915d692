package campaign

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatprobe/broadcast"
	"github.com/opd-ai/chatprobe/commands"
	"github.com/opd-ai/chatprobe/delivery"
	"github.com/opd-ai/chatprobe/store"
)

const (
	// DefaultDeliveryWait bounds the post-loop wait for outstanding
	// deliveries.
	DefaultDeliveryWait = 30 * time.Second
	// deliveryPollInterval is how often the wait re-checks the store.
	deliveryPollInterval = 500 * time.Millisecond
)

// Progress is published on the hub after every message and once more when
// the campaign finishes.
type Progress struct {
	CampaignID string  `json:"campaign_id"`
	Sent       int     `json:"sent"`
	Delivered  int     `json:"delivered"`
	Failed     int     `json:"failed"`
	Total      int     `json:"total"`
	Done       bool    `json:"done"`
	Status     string  `json:"status,omitempty"`
	SuccessPct float64 `json:"success_pct,omitempty"`
}

// Runner executes campaigns. A campaign runs as its own task so launching
// one never blocks event processing.
type Runner struct {
	store        store.Store
	facade       *commands.Facade
	hub          *broadcast.Hub
	deliveryWait time.Duration

	mu      sync.Mutex
	cancels map[string]*atomic.Bool
}

// NewRunner creates a Runner.
func NewRunner(st store.Store, facade *commands.Facade, hub *broadcast.Hub) *Runner {
	return &Runner{
		store:        st,
		facade:       facade,
		hub:          hub,
		deliveryWait: DefaultDeliveryWait,
		cancels:      make(map[string]*atomic.Bool),
	}
}

// SetDeliveryWait overrides the post-loop delivery wait ceiling.
func (r *Runner) SetDeliveryWait(d time.Duration) {
	if d > 0 {
		r.deliveryWait = d
	}
}

// Cancel flags a running campaign for cancellation. The flag is polled
// between messages; the in-flight send runs to completion.
func (r *Runner) Cancel(campaignID string) {
	r.mu.Lock()
	flag, ok := r.cancels[campaignID]
	r.mu.Unlock()
	if ok {
		flag.Store(true)
		logrus.WithFields(logrus.Fields{
			"function": "Cancel",
			"campaign": campaignID,
		}).Info("Campaign cancellation requested")
	}
}

// Run executes a campaign to completion and returns the finished record.
// The campaign is persisted in running state before the first send; its
// terminal status is completed, cancelled, or failed when no recipients
// were ever available.
func (r *Runner) Run(ctx context.Context, c *store.Campaign) (*store.Campaign, error) {
	if c.ID == "" {
		c.ID = delivery.NewCampaignID()
	}
	c.Status = store.CampaignRunning
	c.CreatedAt = time.Now()
	if err := r.store.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}

	flag := &atomic.Bool{}
	r.mu.Lock()
	r.cancels[c.ID] = flag
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.cancels, c.ID)
		r.mu.Unlock()
	}()

	recipients, err := r.resolveRecipients(ctx, c)
	if err != nil {
		// The record was already persisted running; it must not stay
		// there when resolution fails before the first send.
		if _, ferr := r.finish(ctx, c, store.CampaignFailed); ferr != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Run",
				"campaign": c.ID,
				"error":    ferr.Error(),
			}).Error("Failed to mark campaign failed")
		}
		return nil, err
	}
	if len(recipients) == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Run",
			"campaign": c.ID,
			"sender":   c.Sender,
		}).Error("Campaign has no eligible recipients")
		return r.finish(ctx, c, store.CampaignFailed)
	}

	logrus.WithFields(logrus.Fields{
		"function":   "Run",
		"campaign":   c.ID,
		"sender":     c.Sender,
		"recipients": recipients,
		"mode":       string(c.RecipientMode),
		"count":      c.MessageCount,
	}).Info("Campaign started")

	next := newRecipientIterator(c.RecipientMode, recipients)
	cancelled := false

	for i := 0; i < c.MessageCount; i++ {
		if flag.Load() || ctx.Err() != nil {
			cancelled = true
			break
		}

		r.sendOne(ctx, c, next(), i+1)
		r.publishProgress(c, false)

		if i < c.MessageCount-1 && c.Interval > 0 {
			select {
			case <-ctx.Done():
				cancelled = true
			case <-time.After(c.Interval):
			}
			if cancelled {
				break
			}
		}
	}

	r.awaitDeliveries(ctx, c.ID)

	status := store.CampaignCompleted
	if cancelled {
		status = store.CampaignCancelled
	}
	return r.finish(ctx, c, status)
}

// sendOne creates and sends the seq-th tracked message of the campaign.
func (r *Runner) sendOne(ctx context.Context, c *store.Campaign, recipient string, seq int) {
	pairing, err := r.store.ActivePairing(ctx, c.Sender, recipient)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "sendOne",
			"campaign":  c.ID,
			"recipient": recipient,
			"error":     err.Error(),
		}).Warn("No active pairing to recipient, skipping message")
		return
	}

	now := time.Now()
	msg := &store.TestMessage{
		ID:         uuid.NewString(),
		CampaignID: c.ID,
		Sender:     c.Sender,
		Recipient:  recipient,
		PairingID:  pairing.ID,
		Content:    generateContent(c.MessageSize, now),
		TrackingID: delivery.CampaignTrackingID(c.ID, seq),
		Status:     store.StatusSending,
		CreatedAt:  now,
	}
	if err := r.store.CreateMessage(ctx, msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendOne",
			"campaign": c.ID,
			"error":    err.Error(),
		}).Error("Failed to record test message")
		return
	}

	res, err := r.facade.SendMessage(ctx, c.Sender, pairing.ContactName, msg.Content, msg.TrackingID)
	switch {
	case err != nil:
		msg.Status = store.StatusFailed
		c.FailedCount++
		logrus.WithFields(logrus.Fields{
			"function":  "sendOne",
			"campaign":  c.ID,
			"recipient": recipient,
			"error":     err.Error(),
		}).Warn("Message send failed")
	case !res.OK:
		msg.Status = store.StatusFailed
		c.FailedCount++
		logrus.WithFields(logrus.Fields{
			"function":  "sendOne",
			"campaign":  c.ID,
			"recipient": recipient,
			"error":     res.Error,
		}).Warn("Endpoint rejected message send")
	default:
		msg.Status = store.StatusSent
		msg.SentAt = time.Now()
		c.SentCount++
	}

	if err := r.store.UpdateMessage(ctx, msg); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendOne",
			"campaign": c.ID,
			"error":    err.Error(),
		}).Error("Failed to update test message")
	}
	if err := r.store.UpdateCampaign(ctx, c); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendOne",
			"campaign": c.ID,
			"error":    err.Error(),
		}).Error("Failed to update campaign counters")
	}
}

// awaitDeliveries polls until no campaign messages remain in sending or
// sent, bounded by the delivery wait ceiling. Messages still outstanding
// when it gives up keep their state; the aggregates simply never count them
// as delivered.
func (r *Runner) awaitDeliveries(ctx context.Context, campaignID string) {
	deadline := time.Now().Add(r.deliveryWait)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		inflight, err := r.store.CountInFlight(ctx, campaignID)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "awaitDeliveries",
				"campaign": campaignID,
				"error":    err.Error(),
			}).Warn("Failed to count in-flight messages")
			return
		}
		if inflight == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(deliveryPollInterval):
		}
	}
	logrus.WithFields(logrus.Fields{
		"function": "awaitDeliveries",
		"campaign": campaignID,
		"ceiling":  r.deliveryWait.String(),
	}).Warn("Delivery wait ceiling reached with messages outstanding")
}

// finish computes final aggregates and marks the campaign terminal.
func (r *Runner) finish(ctx context.Context, c *store.Campaign, status store.CampaignStatus) (*store.Campaign, error) {
	messages, err := r.store.ListMessagesByCampaign(ctx, c.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	var delivered int
	var sum, count int64
	var min, max int64
	for _, m := range messages {
		if m.Status != store.StatusDelivered {
			continue
		}
		delivered++
		if m.SentAt.IsZero() || m.ClientReceivedAt.IsZero() {
			continue
		}
		lat := m.TotalLatencyMs
		sum += lat
		count++
		if count == 1 || lat < min {
			min = lat
		}
		if lat > max {
			max = lat
		}
	}

	c.DeliveredCount = delivered
	if count > 0 {
		c.AvgLatencyMs = sum / count
		c.MinLatencyMs = min
		c.MaxLatencyMs = max
	}
	if c.SentCount > 0 {
		c.SuccessRate = float64(c.DeliveredCount) / float64(c.SentCount) * 100
	}
	c.Status = status
	c.FinishedAt = time.Now()

	if err := r.store.UpdateCampaign(ctx, c); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":     "finish",
		"campaign":     c.ID,
		"status":       string(status),
		"sent":         c.SentCount,
		"delivered":    c.DeliveredCount,
		"failed":       c.FailedCount,
		"success_rate": c.SuccessRate,
		"avg_ms":       c.AvgLatencyMs,
	}).Info("Campaign finished")

	r.publishProgress(c, true)
	return c, nil
}

func (r *Runner) publishProgress(c *store.Campaign, done bool) {
	if r.hub == nil {
		return
	}
	p := Progress{
		CampaignID: c.ID,
		Sent:       c.SentCount,
		Delivered:  c.DeliveredCount,
		Failed:     c.FailedCount,
		Total:      c.MessageCount,
		Done:       done,
	}
	if done {
		p.Status = string(c.Status)
		p.SuccessPct = c.SuccessRate
	}
	r.hub.Publish(broadcast.KindCampaignProgress, p)
}
