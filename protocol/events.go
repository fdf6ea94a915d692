package protocol

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the decoded variant of an inbound response or event.
type EventType uint8

const (
	// EventUnknown is any type tag the bridge does not consume.
	EventUnknown EventType = iota
	// EventCmdError is a failed command ("chatCmdError").
	EventCmdError
	// EventNewChatItems is one or more received chat items ("newChatItems").
	EventNewChatItems
	// EventStatusesUpdated is one or more delivery status changes
	// ("chatItemsStatusesUpdated").
	EventStatusesUpdated
)

// ItemStatus is a delivery status reported by an endpoint for a sent item.
// Only server and recipient acknowledgements are meaningful to the bridge;
// every other status code is discarded during decoding.
type ItemStatus string

const (
	// StatusServerAck means the endpoint's server accepted the item.
	StatusServerAck ItemStatus = "sndSent"
	// StatusClientAck means the recipient acknowledged or read the item.
	StatusClientAck ItemStatus = "sndRcvd"
)

// ChatItem is a received text message. Non-text content is dropped during
// decoding.
type ChatItem struct {
	Contact string `json:"contact"`
	Text    string `json:"text"`
}

// StatusUpdate is a delivery status change for a previously sent item.
type StatusUpdate struct {
	Status  ItemStatus `json:"itemStatus"`
	Contact string     `json:"contact"`
	Text    string     `json:"text"`
}

// Event is the decoded form of a response payload. Raw always holds the
// original JSON so callers can surface the untouched protocol reply.
type Event struct {
	Type     EventType
	TypeTag  string
	Raw      json.RawMessage
	ErrText  string
	Items    []ChatItem
	Statuses []StatusUpdate
}

type rawEvent struct {
	Type      string `json:"type"`
	ChatError *struct {
		Message string `json:"message"`
	} `json:"chatError"`
	ChatItems []struct {
		Contact string `json:"contact"`
		Content struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"chatItems"`
	Updates []StatusUpdate `json:"updates"`
}

// DecodeEvent decodes a response payload into its typed variant. Unrecognized
// type tags decode to EventUnknown rather than an error; only frames that are
// not valid JSON objects fail.
func DecodeEvent(raw json.RawMessage) (*Event, error) {
	var re rawEvent
	if err := json.Unmarshal(raw, &re); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	ev := &Event{TypeTag: re.Type, Raw: raw}

	switch re.Type {
	case "chatCmdError":
		ev.Type = EventCmdError
		if re.ChatError != nil {
			ev.ErrText = re.ChatError.Message
		}
		if ev.ErrText == "" {
			ev.ErrText = "command failed"
		}
	case "newChatItems":
		ev.Type = EventNewChatItems
		for _, item := range re.ChatItems {
			// Only text content is tracked; reactions, files and
			// other content types pass through untouched.
			if item.Content.Type != "text" {
				continue
			}
			ev.Items = append(ev.Items, ChatItem{
				Contact: item.Contact,
				Text:    item.Content.Text,
			})
		}
	case "chatItemsStatusesUpdated":
		ev.Type = EventStatusesUpdated
		for _, upd := range re.Updates {
			if upd.Status != StatusServerAck && upd.Status != StatusClientAck {
				continue
			}
			ev.Statuses = append(ev.Statuses, upd)
		}
	default:
		ev.Type = EventUnknown
	}

	return ev, nil
}
