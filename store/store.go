package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrAmbiguousMatch is returned when a lookup that must resolve to at most
// one record finds several. Callers treat it as "no match", never a guess.
var ErrAmbiguousMatch = errors.New("multiple records matched")

// ErrDuplicateID is returned when creating a record whose id already exists.
var ErrDuplicateID = errors.New("duplicate record id")

// Store is the persistence interface the bridge requires. Implementations
// must be safe for concurrent use.
type Store interface {
	// Endpoints.
	GetEndpoint(ctx context.Context, id string) (*Endpoint, error)
	ListActiveEndpoints(ctx context.Context) ([]*Endpoint, error)
	SaveEndpoint(ctx context.Context, ep *Endpoint) error
	TouchEndpoint(ctx context.Context, id string) error
	IncrementReceived(ctx context.Context, id string) error

	// Pairings.
	SavePairing(ctx context.Context, p *Pairing) error
	ActivePairing(ctx context.Context, local, remote string) (*Pairing, error)
	ActivePairingByContact(ctx context.Context, local, contactName string) (*Pairing, error)
	ListPairings(ctx context.Context, local string) ([]*Pairing, error)

	// Messages.
	CreateMessage(ctx context.Context, m *TestMessage) error
	UpdateMessage(ctx context.Context, m *TestMessage) error
	GetMessage(ctx context.Context, id string) (*TestMessage, error)
	// FindUndeliveredByTrackingID returns the single not-yet-delivered
	// message carrying the tracking id, ErrNotFound when there is none and
	// ErrAmbiguousMatch when there is more than one.
	FindUndeliveredByTrackingID(ctx context.Context, trackingID string) (*TestMessage, error)
	// FindByTrackingID is the same lookup across all statuses. Late
	// server acknowledgements may refer to already-delivered messages.
	FindByTrackingID(ctx context.Context, trackingID string) (*TestMessage, error)
	// FindLatestUndeliveredByContent returns the most recently created
	// not-yet-delivered message with the exact sender, recipient and
	// content.
	FindLatestUndeliveredByContent(ctx context.Context, sender, recipient, content string) (*TestMessage, error)
	CountInFlight(ctx context.Context, campaignID string) (int, error)
	ListMessagesByCampaign(ctx context.Context, campaignID string) ([]*TestMessage, error)

	// Campaigns.
	CreateCampaign(ctx context.Context, c *Campaign) error
	UpdateCampaign(ctx context.Context, c *Campaign) error
	GetCampaign(ctx context.Context, id string) (*Campaign, error)
}
