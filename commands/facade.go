// Package commands provides a stateless facade for on-demand control
// actions against an endpoint. Each operation opens a short-lived channel,
// issues exactly one correlated command, parses the typed reply and closes.
// Standing connections belong to the transport pool, not here.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatprobe/delivery"
	"github.com/opd-ai/chatprobe/protocol"
	"github.com/opd-ai/chatprobe/store"
	"github.com/opd-ai/chatprobe/transport"
)

// Result is the uniform outcome of a facade operation. A protocol-level
// failure sets Error and keeps the raw reply; it is not a Go error. Only
// transport failures (timeout, disconnect) surface as errors.
type Result struct {
	OK       bool
	Error    string
	Raw      json.RawMessage
	Address  string
	Contacts []string
}

// Facade issues one-shot domain commands to endpoints.
type Facade struct {
	store   store.Store
	timeout time.Duration
}

// NewFacade creates a Facade. timeout <= 0 selects the transport default.
func NewFacade(st store.Store, timeout time.Duration) *Facade {
	if timeout <= 0 {
		timeout = transport.DefaultCommandTimeout
	}
	return &Facade{store: st, timeout: timeout}
}

// CreateOrGetAddress creates the endpoint's contact address, falling back to
// fetching the existing one when creation reports it already exists. Both
// paths normalize to the same result shape, so the call is idempotent.
func (f *Facade) CreateOrGetAddress(ctx context.Context, endpointID string) (*Result, error) {
	res, err := f.do(ctx, endpointID, protocol.CmdAddress())
	if err != nil {
		return nil, err
	}
	if !res.OK && strings.Contains(strings.ToLower(res.Error), "already exists") {
		logrus.WithFields(logrus.Fields{
			"function": "CreateOrGetAddress",
			"endpoint": endpointID,
		}).Debug("Address exists, fetching existing one")
		res, err = f.do(ctx, endpointID, protocol.CmdShowAddress())
		if err != nil {
			return nil, err
		}
	}
	if !res.OK {
		return res, nil
	}

	var reply struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(res.Raw, &reply); err != nil || reply.Address == "" {
		res.OK = false
		res.Error = "reply carried no address"
		return res, nil
	}
	res.Address = reply.Address
	return res, nil
}

// Connect joins this endpoint to another via its invitation link.
func (f *Facade) Connect(ctx context.Context, endpointID, link string) (*Result, error) {
	return f.do(ctx, endpointID, protocol.CmdConnect(link))
}

// SendMessage sends text to a contact, optionally embedding a tracking id
// ahead of the visible text so the receiving side can extract it.
func (f *Facade) SendMessage(ctx context.Context, endpointID, contact, text, trackingID string) (*Result, error) {
	if trackingID != "" {
		text = delivery.Prefix(trackingID, text)
	}
	return f.do(ctx, endpointID, protocol.CmdSendMessage(contact, text))
}

// ListContacts returns the endpoint's contact names.
func (f *Facade) ListContacts(ctx context.Context, endpointID string) (*Result, error) {
	res, err := f.do(ctx, endpointID, protocol.CmdContacts())
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return res, nil
	}

	var reply struct {
		Contacts []string `json:"contacts"`
	}
	if err := json.Unmarshal(res.Raw, &reply); err != nil {
		res.OK = false
		res.Error = "reply carried no contact list"
		return res, nil
	}
	res.Contacts = reply.Contacts
	return res, nil
}

// AcceptContact accepts a pending contact request.
func (f *Facade) AcceptContact(ctx context.Context, endpointID, name string) (*Result, error) {
	return f.do(ctx, endpointID, protocol.CmdAcceptContact(name))
}

// DeleteContact removes a contact.
func (f *Facade) DeleteContact(ctx context.Context, endpointID, name string) (*Result, error) {
	return f.do(ctx, endpointID, protocol.CmdDeleteContact(name))
}

// do opens a short-lived connection, issues one correlated command and
// closes. Endpoint error replies map into the result, never into a Go
// error.
func (f *Facade) do(ctx context.Context, endpointID, cmd string) (*Result, error) {
	ep, err := f.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, fmt.Errorf("command %q: %w", cmd, err)
	}

	conn := transport.NewConnection(endpointID, ep.Address)
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	defer conn.Close()

	raw, err := conn.SendCommand(ctx, cmd, f.timeout)
	if err != nil {
		return nil, err
	}

	ev, err := protocol.DecodeEvent(raw)
	if err != nil {
		return nil, err
	}

	res := &Result{Raw: raw}
	if ev.Type == protocol.EventCmdError {
		res.Error = ev.ErrText
		logrus.WithFields(logrus.Fields{
			"function": "do",
			"endpoint": endpointID,
			"cmd":      cmd,
			"error":    ev.ErrText,
		}).Warn("Endpoint rejected command")
		return res, nil
	}
	res.OK = true
	return res, nil
}
