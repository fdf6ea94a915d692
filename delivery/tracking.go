package delivery

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Tracking ids are embedded as a bracketed prefix of the visible message
// text. Two shapes are recognized: a campaign-scoped token (8 hex chars of
// campaign id, an underscore, a 4-digit zero-padded sequence) and an ad hoc
// token ("msg_" plus 12 hex chars).
var trackingPattern = regexp.MustCompile(`^\[([0-9a-f]{8}_[0-9]{4}|msg_[0-9a-f]{12})\] ?`)

// NewCampaignID generates an 8-hex-char campaign id.
func NewCampaignID() string {
	return hexID(8)
}

// CampaignTrackingID builds the tracking id for the seq-th message of a
// campaign.
func CampaignTrackingID(campaignID string, seq int) string {
	return fmt.Sprintf("%s_%04d", campaignID, seq)
}

// NewAdHocTrackingID generates a tracking id for a message sent outside any
// campaign.
func NewAdHocTrackingID() string {
	return "msg_" + hexID(12)
}

// Prefix embeds a tracking id ahead of the visible text.
func Prefix(trackingID, text string) string {
	return fmt.Sprintf("[%s] %s", trackingID, text)
}

// Extract returns the tracking id at the start of text, if any. An absent or
// unrecognized prefix means the message has no tracking id and must be
// correlated by content instead.
func Extract(text string) (string, bool) {
	m := trackingPattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Strip removes the tracking-id prefix so end users see only the visible
// text.
func Strip(text string) string {
	return trackingPattern.ReplaceAllString(text, "")
}

func hexID(n int) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:n]
}
