package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpoints(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	t.Run("get missing", func(t *testing.T) {
		_, err := s.GetEndpoint(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save and get returns a copy", func(t *testing.T) {
		require.NoError(t, s.SaveEndpoint(ctx, &Endpoint{ID: "a", Address: "127.0.0.1:5225", Active: true}))

		got, err := s.GetEndpoint(ctx, "a")
		require.NoError(t, err)
		got.Address = "mutated"

		again, err := s.GetEndpoint(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:5225", again.Address)
	})

	t.Run("list active filters inactive", func(t *testing.T) {
		require.NoError(t, s.SaveEndpoint(ctx, &Endpoint{ID: "b", Active: false}))

		eps, err := s.ListActiveEndpoints(ctx)
		require.NoError(t, err)
		require.Len(t, eps, 1)
		assert.Equal(t, "a", eps[0].ID)
	})

	t.Run("touch and increment", func(t *testing.T) {
		require.NoError(t, s.TouchEndpoint(ctx, "a"))
		require.NoError(t, s.IncrementReceived(ctx, "a"))
		require.NoError(t, s.IncrementReceived(ctx, "a"))

		ep, err := s.GetEndpoint(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 2, ep.ReceivedCount)
		assert.False(t, ep.LastActiveAt.IsZero())

		assert.ErrorIs(t, s.TouchEndpoint(ctx, "nope"), ErrNotFound)
		assert.ErrorIs(t, s.IncrementReceived(ctx, "nope"), ErrNotFound)
	})
}

func TestPairings(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.SavePairing(ctx, &Pairing{
		ID: "p1", LocalEndpoint: "a", RemoteEndpoint: "b", ContactName: "bob", Active: true,
	}))
	require.NoError(t, s.SavePairing(ctx, &Pairing{
		ID: "p2", LocalEndpoint: "a", RemoteEndpoint: "c", ContactName: "carol", Active: false,
	}))

	t.Run("active pairing by endpoints", func(t *testing.T) {
		p, err := s.ActivePairing(ctx, "a", "b")
		require.NoError(t, err)
		assert.Equal(t, "p1", p.ID)

		_, err = s.ActivePairing(ctx, "a", "c")
		assert.ErrorIs(t, err, ErrNotFound, "inactive pairings are invisible")
	})

	t.Run("active pairing by contact name", func(t *testing.T) {
		p, err := s.ActivePairingByContact(ctx, "a", "bob")
		require.NoError(t, err)
		assert.Equal(t, "b", p.RemoteEndpoint)

		_, err = s.ActivePairingByContact(ctx, "b", "bob")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("list pairings", func(t *testing.T) {
		ps, err := s.ListPairings(ctx, "a")
		require.NoError(t, err)
		require.Len(t, ps, 1)
		assert.Equal(t, "p1", ps[0].ID)
	})
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	msg := &TestMessage{
		ID: "m1", Sender: "a", Recipient: "b",
		Content: "hello", TrackingID: "deadbeef_0001", Status: StatusSent,
	}
	require.NoError(t, s.CreateMessage(ctx, msg))

	t.Run("duplicate id rejected", func(t *testing.T) {
		err := s.CreateMessage(ctx, &TestMessage{ID: "m1"})
		assert.ErrorIs(t, err, ErrDuplicateID)
	})

	t.Run("update missing", func(t *testing.T) {
		err := s.UpdateMessage(ctx, &TestMessage{ID: "nope"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("find undelivered by tracking id", func(t *testing.T) {
		got, err := s.FindUndeliveredByTrackingID(ctx, "deadbeef_0001")
		require.NoError(t, err)
		assert.Equal(t, "m1", got.ID)

		_, err = s.FindUndeliveredByTrackingID(ctx, "absent")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("duplicate tracking id is ambiguous", func(t *testing.T) {
		require.NoError(t, s.CreateMessage(ctx, &TestMessage{
			ID: "m2", TrackingID: "deadbeef_0001", Status: StatusSent,
		}))
		defer func() {
			m2, _ := s.GetMessage(ctx, "m2")
			m2.TrackingID = "other"
			require.NoError(t, s.UpdateMessage(ctx, m2))
		}()

		_, err := s.FindUndeliveredByTrackingID(ctx, "deadbeef_0001")
		assert.ErrorIs(t, err, ErrAmbiguousMatch)

		_, err = s.FindByTrackingID(ctx, "deadbeef_0001")
		assert.ErrorIs(t, err, ErrAmbiguousMatch)
	})

	t.Run("delivered messages drop out of undelivered lookup", func(t *testing.T) {
		got, err := s.GetMessage(ctx, "m1")
		require.NoError(t, err)
		got.Status = StatusDelivered
		require.NoError(t, s.UpdateMessage(ctx, got))

		_, err = s.FindUndeliveredByTrackingID(ctx, "deadbeef_0001")
		assert.ErrorIs(t, err, ErrNotFound)

		// But the all-statuses lookup still sees it.
		found, err := s.FindByTrackingID(ctx, "deadbeef_0001")
		require.NoError(t, err)
		assert.Equal(t, "m1", found.ID)
	})
}

func TestFindLatestUndeliveredByContent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Now()

	require.NoError(t, s.CreateMessage(ctx, &TestMessage{
		ID: "old", Sender: "a", Recipient: "b", Content: "same",
		Status: StatusSent, CreatedAt: now.Add(-time.Hour),
	}))
	require.NoError(t, s.CreateMessage(ctx, &TestMessage{
		ID: "new", Sender: "a", Recipient: "b", Content: "same",
		Status: StatusSent, CreatedAt: now,
	}))
	require.NoError(t, s.CreateMessage(ctx, &TestMessage{
		ID: "wrong-recipient", Sender: "a", Recipient: "c", Content: "same",
		Status: StatusSent, CreatedAt: now.Add(time.Hour),
	}))

	got, err := s.FindLatestUndeliveredByContent(ctx, "a", "b", "same")
	require.NoError(t, err)
	assert.Equal(t, "new", got.ID)

	_, err = s.FindLatestUndeliveredByContent(ctx, "a", "b", "different")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCampaigns(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	c := &Campaign{ID: "c1", Sender: "a", Recipients: []string{"b"}, Status: CampaignRunning}
	require.NoError(t, s.CreateCampaign(ctx, c))
	assert.ErrorIs(t, s.CreateCampaign(ctx, &Campaign{ID: "c1"}), ErrDuplicateID)

	t.Run("recipients slice is copied", func(t *testing.T) {
		got, err := s.GetCampaign(ctx, "c1")
		require.NoError(t, err)
		got.Recipients[0] = "mutated"

		again, err := s.GetCampaign(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "b", again.Recipients[0])
	})

	t.Run("in-flight count", func(t *testing.T) {
		for _, m := range []*TestMessage{
			{ID: "m1", CampaignID: "c1", Status: StatusSending},
			{ID: "m2", CampaignID: "c1", Status: StatusSent},
			{ID: "m3", CampaignID: "c1", Status: StatusDelivered},
			{ID: "m4", CampaignID: "c1", Status: StatusFailed},
			{ID: "m5", CampaignID: "other", Status: StatusSent},
		} {
			require.NoError(t, s.CreateMessage(ctx, m))
		}

		n, err := s.CountInFlight(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		msgs, err := s.ListMessagesByCampaign(ctx, "c1")
		require.NoError(t, err)
		assert.Len(t, msgs, 4)
	})

	t.Run("update", func(t *testing.T) {
		c.Status = CampaignCompleted
		require.NoError(t, s.UpdateCampaign(ctx, c))

		got, err := s.GetCampaign(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, CampaignCompleted, got.Status)

		assert.ErrorIs(t, s.UpdateCampaign(ctx, &Campaign{ID: "nope"}), ErrNotFound)
	})
}
