package store

import "time"

// DeliveryStatus is the delivery state of a test message. Status only moves
// forward: sending -> sent -> delivered, or sending/sent -> failed.
type DeliveryStatus string

const (
	StatusSending   DeliveryStatus = "sending"
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s DeliveryStatus) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// RecipientMode selects how a campaign picks the recipient for each message.
type RecipientMode string

const (
	ModeAll        RecipientMode = "all"
	ModeRandom     RecipientMode = "random"
	ModeRoundRobin RecipientMode = "round-robin"
	ModeList       RecipientMode = "list"
)

// CampaignStatus is the lifecycle state of a test campaign.
type CampaignStatus string

const (
	CampaignRunning   CampaignStatus = "running"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Endpoint is one independently running chat-protocol process. The bridge
// reads endpoints; it never creates or deletes them, but it does bump the
// received counter and last-active timestamp as delivery events arrive.
type Endpoint struct {
	ID            string
	Address       string
	Active        bool
	ReceivedCount int
	LastActiveAt  time.Time
	CreatedAt     time.Time
}

// Pairing is an established messaging relationship between two endpoints,
// distinct from the transport-level connection to a single endpoint.
// ContactName is how RemoteEndpoint appears in LocalEndpoint's contact list.
type Pairing struct {
	ID             string
	LocalEndpoint  string
	RemoteEndpoint string
	ContactName    string
	Active         bool
	CreatedAt      time.Time
}

// TestMessage is one tracked message. Timestamps are filled monotonically in
// the order CreatedAt, SentAt, ServerReceivedAt, ClientReceivedAt; a latency
// field is set exactly once, when all of its inputs exist.
type TestMessage struct {
	ID         string
	CampaignID string
	Sender     string
	Recipient  string
	PairingID  string
	Content    string
	TrackingID string
	Status     DeliveryStatus

	CreatedAt        time.Time
	SentAt           time.Time
	ServerReceivedAt time.Time
	ClientReceivedAt time.Time

	LatencyToServerMs int64
	LatencyToClientMs int64
	TotalLatencyMs    int64
}

// Campaign is one scripted test run. Counters and latency aggregates are
// mutated continuously while running; the record is terminal once Status
// leaves CampaignRunning.
type Campaign struct {
	ID            string
	Sender        string
	RecipientMode RecipientMode
	Recipients    []string
	MessageCount  int
	MessageSize   int
	Interval      time.Duration

	SentCount      int
	DeliveredCount int
	FailedCount    int

	AvgLatencyMs int64
	MinLatencyMs int64
	MaxLatencyMs int64
	SuccessRate  float64

	Status     CampaignStatus
	CreatedAt  time.Time
	FinishedAt time.Time
}
