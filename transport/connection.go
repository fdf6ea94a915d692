package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatprobe/protocol"
)

// EventHandler receives unsolicited events and replies with unknown
// correlation ids.
type EventHandler func(endpointID string, ev *protocol.Event)

type cmdResult struct {
	resp json.RawMessage
	err  error
}

// pendingRequest is one command awaiting its correlated reply. The result
// channel has capacity one, so the receive loop never blocks delivering it.
type pendingRequest struct {
	corrID   string
	cmd      string
	issuedAt time.Time
	result   chan cmdResult
}

// Connection is one persistent channel to one endpoint. It is created on
// first use and survives disconnects: the next Connect call redials.
type Connection struct {
	endpointID string
	address    string

	// dialMu serializes Connect so concurrent callers dial at most once
	// and exactly one read loop runs per session.
	dialMu sync.Mutex

	mu        sync.Mutex
	wmu       sync.Mutex
	ws        *websocket.Conn
	connected bool
	pending   map[string]*pendingRequest
	failures  int
	handlers  []EventHandler
	done      chan struct{}
}

// NewConnection creates an unconnected Connection for an endpoint.
func NewConnection(endpointID, address string) *Connection {
	done := make(chan struct{})
	close(done)
	return &Connection{
		endpointID: endpointID,
		address:    address,
		pending:    make(map[string]*pendingRequest),
		done:       done,
	}
}

// OnEvent registers a handler for unsolicited events. Handlers must be
// registered before Connect so no early frame is missed.
func (c *Connection) OnEvent(h EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// EndpointID returns the endpoint this connection belongs to.
func (c *Connection) EndpointID() string { return c.endpointID }

// Connected reports whether the channel is currently open.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Failures returns the count of consecutive failed dials. It resets to zero
// on a successful connect; callers use it to drive backoff decisions.
func (c *Connection) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// Done returns a channel closed when the current session disconnects. It is
// already closed while the connection is down.
func (c *Connection) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Connect dials the endpoint and starts the receive loop. It is a no-op on
// an already connected Connection; concurrent callers share one dial.
func (c *Connection) Connect(ctx context.Context) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL(c.address), nil)
	if err != nil {
		c.mu.Lock()
		c.failures++
		failures := c.failures
		c.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"function": "Connect",
			"endpoint": c.endpointID,
			"address":  c.address,
			"failures": failures,
		}).Warn("Failed to dial endpoint")
		return fmt.Errorf("%w: dial %s: %v", ErrDisconnected, c.address, err)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.ws = ws
	c.connected = true
	c.failures = 0
	c.done = done
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Connect",
		"endpoint": c.endpointID,
		"address":  c.address,
	}).Info("Endpoint channel established")

	go c.readLoop(ws)
	return nil
}

// SendCommand transmits a correlated command and blocks this caller until
// the reply arrives or the timeout elapses. Other callers are unaffected:
// every in-flight command waits on its own pending entry.
func (c *Connection) SendCommand(ctx context.Context, cmd string, timeout time.Duration) (json.RawMessage, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDisconnected, c.endpointID)
	}
	ws := c.ws
	pr := &pendingRequest{
		corrID:   uuid.NewString(),
		cmd:      cmd,
		issuedAt: time.Now(),
		result:   make(chan cmdResult, 1),
	}
	c.pending[pr.corrID] = pr
	c.mu.Unlock()

	data, err := protocol.EncodeRequest(&protocol.Request{CorrID: pr.corrID, Cmd: cmd})
	if err != nil {
		c.removePending(pr.corrID)
		return nil, err
	}

	c.wmu.Lock()
	err = ws.WriteMessage(websocket.TextMessage, data)
	c.wmu.Unlock()
	if err != nil {
		c.removePending(pr.corrID)
		return nil, fmt.Errorf("%w: write: %v", ErrDisconnected, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pr.result:
		return res.resp, res.err
	case <-timer.C:
		c.removePending(pr.corrID)
		logrus.WithFields(logrus.Fields{
			"function": "SendCommand",
			"endpoint": c.endpointID,
			"cmd":      cmd,
			"timeout":  timeout.String(),
		}).Warn("Command timed out")
		return nil, fmt.Errorf("%w: no reply to %q within %s", ErrTimeout, cmd, timeout)
	case <-ctx.Done():
		c.removePending(pr.corrID)
		return nil, ctx.Err()
	}
}

// HasPending reports whether a correlation id is still outstanding.
func (c *Connection) HasPending(corrID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[corrID]
	return ok
}

// Close tears the channel down. Pending requests fail immediately with
// ErrDisconnected.
func (c *Connection) Close() {
	c.teardown()
}

func (c *Connection) removePending(corrID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, corrID)
}

// readLoop dispatches every inbound frame either to its correlation id's
// pending request or, failing that, to the event handlers. It exits when
// the websocket errors or closes.
func (c *Connection) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.teardownSession(ws)
			return
		}

		frame, err := protocol.DecodeFrame(data)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"endpoint": c.endpointID,
				"error":    err.Error(),
			}).Warn("Dropping malformed frame")
			continue
		}

		if frame.CorrID != "" {
			c.mu.Lock()
			pr, ok := c.pending[frame.CorrID]
			if ok {
				delete(c.pending, frame.CorrID)
			}
			c.mu.Unlock()
			if ok {
				pr.result <- cmdResult{resp: frame.Resp}
				continue
			}
			// Unknown correlation id, likely a reply that already
			// timed out. Routed to event handlers, never dropped
			// silently.
		}

		ev, err := protocol.DecodeEvent(frame.Resp)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "readLoop",
				"endpoint": c.endpointID,
				"error":    err.Error(),
			}).Warn("Dropping malformed event")
			continue
		}
		c.dispatch(ev)
	}
}

func (c *Connection) dispatch(ev *protocol.Event) {
	c.mu.Lock()
	handlers := make([]EventHandler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, h := range handlers {
		h(c.endpointID, ev)
	}
}

// teardownSession closes a specific session from the read loop, ignoring
// sessions that were already replaced by a reconnect.
func (c *Connection) teardownSession(ws *websocket.Conn) {
	c.mu.Lock()
	if c.ws != ws {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.teardown()
}

func (c *Connection) teardown() {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	ws := c.ws
	c.ws = nil
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	sessionDone := c.done
	c.mu.Unlock()

	if ws != nil {
		ws.Close()
	}
	for _, pr := range pending {
		pr.result <- cmdResult{err: fmt.Errorf("%w: %s", ErrDisconnected, c.endpointID)}
	}
	select {
	case <-sessionDone:
	default:
		close(sessionDone)
	}

	logrus.WithFields(logrus.Fields{
		"function": "teardown",
		"endpoint": c.endpointID,
		"pending":  len(pending),
	}).Info("Endpoint channel closed")
}

func wsURL(address string) string {
	if strings.Contains(address, "://") {
		return address
	}
	return "ws://" + address
}
