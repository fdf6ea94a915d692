package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. All records live behind a single
// RWMutex; reads hand out copies so callers never share mutable state with
// the store.
type MemoryStore struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	pairings  map[string]*Pairing
	messages  map[string]*TestMessage
	campaigns map[string]*Campaign
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		endpoints: make(map[string]*Endpoint),
		pairings:  make(map[string]*Pairing),
		messages:  make(map[string]*TestMessage),
		campaigns: make(map[string]*Campaign),
	}
}

func copyEndpoint(ep *Endpoint) *Endpoint {
	c := *ep
	return &c
}

func copyPairing(p *Pairing) *Pairing {
	c := *p
	return &c
}

func copyMessage(m *TestMessage) *TestMessage {
	c := *m
	return &c
}

func copyCampaign(c *Campaign) *Campaign {
	cp := *c
	cp.Recipients = append([]string(nil), c.Recipients...)
	return &cp
}

// GetEndpoint returns the endpoint with the given id.
func (s *MemoryStore) GetEndpoint(ctx context.Context, id string) (*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ep, ok := s.endpoints[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEndpoint(ep), nil
}

// ListActiveEndpoints returns every endpoint marked active.
func (s *MemoryStore) ListActiveEndpoints(ctx context.Context) ([]*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Endpoint
	for _, ep := range s.endpoints {
		if ep.Active {
			out = append(out, copyEndpoint(ep))
		}
	}
	return out, nil
}

// SaveEndpoint inserts or replaces an endpoint.
func (s *MemoryStore) SaveEndpoint(ctx context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *ep
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.endpoints[c.ID] = &c
	return nil
}

// TouchEndpoint updates the endpoint's last-active timestamp.
func (s *MemoryStore) TouchEndpoint(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[id]
	if !ok {
		return ErrNotFound
	}
	ep.LastActiveAt = time.Now()
	return nil
}

// IncrementReceived bumps the endpoint's received-message counter.
func (s *MemoryStore) IncrementReceived(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ep, ok := s.endpoints[id]
	if !ok {
		return ErrNotFound
	}
	ep.ReceivedCount++
	return nil
}

// SavePairing inserts or replaces a pairing.
func (s *MemoryStore) SavePairing(ctx context.Context, p *Pairing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *p
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.pairings[c.ID] = &c
	return nil
}

// ActivePairing returns the active pairing between two endpoints.
func (s *MemoryStore) ActivePairing(ctx context.Context, local, remote string) (*Pairing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pairings {
		if p.Active && p.LocalEndpoint == local && p.RemoteEndpoint == remote {
			return copyPairing(p), nil
		}
	}
	return nil, ErrNotFound
}

// ActivePairingByContact resolves a pairing from the local endpoint and the
// contact name the remote side appears under.
func (s *MemoryStore) ActivePairingByContact(ctx context.Context, local, contactName string) (*Pairing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.pairings {
		if p.Active && p.LocalEndpoint == local && p.ContactName == contactName {
			return copyPairing(p), nil
		}
	}
	return nil, ErrNotFound
}

// ListPairings returns every active pairing originating at local.
func (s *MemoryStore) ListPairings(ctx context.Context, local string) ([]*Pairing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Pairing
	for _, p := range s.pairings {
		if p.Active && p.LocalEndpoint == local {
			out = append(out, copyPairing(p))
		}
	}
	return out, nil
}

// CreateMessage inserts a new test message.
func (s *MemoryStore) CreateMessage(ctx context.Context, m *TestMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.messages[m.ID]; exists {
		return ErrDuplicateID
	}
	c := *m
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.messages[c.ID] = &c
	return nil
}

// UpdateMessage replaces an existing test message.
func (s *MemoryStore) UpdateMessage(ctx context.Context, m *TestMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[m.ID]; !ok {
		return ErrNotFound
	}
	c := *m
	s.messages[c.ID] = &c
	return nil
}

// GetMessage returns the message with the given id.
func (s *MemoryStore) GetMessage(ctx context.Context, id string) (*TestMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMessage(m), nil
}

// FindUndeliveredByTrackingID returns the single undelivered message with
// the tracking id, or ErrAmbiguousMatch when the id is not unique.
func (s *MemoryStore) FindUndeliveredByTrackingID(ctx context.Context, trackingID string) (*TestMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *TestMessage
	for _, m := range s.messages {
		if m.TrackingID != trackingID || m.Status == StatusDelivered {
			continue
		}
		if found != nil {
			return nil, ErrAmbiguousMatch
		}
		found = m
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return copyMessage(found), nil
}

// FindByTrackingID returns the single message with the tracking id across
// all statuses, or ErrAmbiguousMatch when the id is not unique.
func (s *MemoryStore) FindByTrackingID(ctx context.Context, trackingID string) (*TestMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *TestMessage
	for _, m := range s.messages {
		if m.TrackingID != trackingID {
			continue
		}
		if found != nil {
			return nil, ErrAmbiguousMatch
		}
		found = m
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return copyMessage(found), nil
}

// FindLatestUndeliveredByContent returns the most recently created
// undelivered message matching sender, recipient and exact content.
func (s *MemoryStore) FindLatestUndeliveredByContent(ctx context.Context, sender, recipient, content string) (*TestMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *TestMessage
	for _, m := range s.messages {
		if m.Status == StatusDelivered || m.Sender != sender || m.Recipient != recipient || m.Content != content {
			continue
		}
		if latest == nil || m.CreatedAt.After(latest.CreatedAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return copyMessage(latest), nil
}

// CountInFlight counts campaign messages still in sending or sent.
func (s *MemoryStore) CountInFlight(ctx context.Context, campaignID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, m := range s.messages {
		if m.CampaignID == campaignID && !m.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

// ListMessagesByCampaign returns every message belonging to a campaign.
func (s *MemoryStore) ListMessagesByCampaign(ctx context.Context, campaignID string) ([]*TestMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*TestMessage
	for _, m := range s.messages {
		if m.CampaignID == campaignID {
			out = append(out, copyMessage(m))
		}
	}
	return out, nil
}

// CreateCampaign inserts a new campaign.
func (s *MemoryStore) CreateCampaign(ctx context.Context, c *Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.campaigns[c.ID]; exists {
		return ErrDuplicateID
	}
	cp := copyCampaign(c)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.campaigns[cp.ID] = cp
	return nil
}

// UpdateCampaign replaces an existing campaign.
func (s *MemoryStore) UpdateCampaign(ctx context.Context, c *Campaign) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.campaigns[c.ID]; !ok {
		return ErrNotFound
	}
	s.campaigns[c.ID] = copyCampaign(c)
	return nil
}

// GetCampaign returns the campaign with the given id.
func (s *MemoryStore) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.campaigns[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCampaign(c), nil
}
