package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame is returned when an inbound frame cannot be decoded.
// Malformed frames are logged and dropped; they never close the connection.
var ErrMalformedFrame = errors.New("malformed protocol frame")

// Request is an outbound command frame. Cmd is a single-line domain command
// such as "/address", "/contacts" or "@alice hello".
type Request struct {
	CorrID string `json:"corrId"`
	Cmd    string `json:"cmd"`
}

// Response is an inbound frame. An empty CorrID marks an unsolicited event;
// otherwise it echoes the correlation id of the request it answers.
type Response struct {
	CorrID string          `json:"corrId"`
	Resp   json.RawMessage `json:"resp"`
}

// DecodeFrame parses a raw inbound frame into a Response.
func DecodeFrame(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(resp.Resp) == 0 {
		return nil, fmt.Errorf("%w: missing resp payload", ErrMalformedFrame)
	}
	return &resp, nil
}

// EncodeRequest serializes a Request for transmission.
func EncodeRequest(req *Request) ([]byte, error) {
	return json.Marshal(req)
}
