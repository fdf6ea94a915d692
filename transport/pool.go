package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatprobe/protocol"
	"github.com/opd-ai/chatprobe/store"
)

// DefaultCommandTimeout bounds every command send that does not specify its
// own deadline.
const DefaultCommandTimeout = 30 * time.Second

// Pool creates and reuses one Connection per endpoint. Endpoint addresses
// come from the store; a Connection that lost its channel is redialed on the
// next Acquire.
type Pool struct {
	store   store.Store
	timeout time.Duration

	mu       sync.RWMutex
	conns    map[string]*Connection
	handlers []EventHandler
}

// NewPool creates a Pool. timeout <= 0 selects DefaultCommandTimeout.
func NewPool(st store.Store, timeout time.Duration) *Pool {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Pool{
		store:   st,
		timeout: timeout,
		conns:   make(map[string]*Connection),
	}
}

// OnEvent registers a handler for unsolicited events on every pooled
// connection, current and future.
func (p *Pool) OnEvent(h EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// Acquire returns a live Connection to the endpoint, dialing if necessary.
func (p *Pool) Acquire(ctx context.Context, endpointID string) (*Connection, error) {
	p.mu.Lock()
	conn, ok := p.conns[endpointID]
	if !ok {
		ep, err := p.store.GetEndpoint(ctx, endpointID)
		if err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("acquire %s: %w", endpointID, err)
		}
		conn = NewConnection(endpointID, ep.Address)
		conn.OnEvent(p.dispatch)
		p.conns[endpointID] = conn
	}
	p.mu.Unlock()

	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	return conn, nil
}

// SendCommand acquires the endpoint's connection and issues one correlated
// command. timeout <= 0 selects the pool default.
func (p *Pool) SendCommand(ctx context.Context, endpointID, cmd string, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = p.timeout
	}
	conn, err := p.Acquire(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	return conn.SendCommand(ctx, cmd, timeout)
}

// SendMessage formats and issues a domain "send to contact" command.
func (p *Pool) SendMessage(ctx context.Context, endpointID, contact, text string) (json.RawMessage, error) {
	return p.SendCommand(ctx, endpointID, protocol.CmdSendMessage(contact, text), 0)
}

// Disconnect closes the endpoint's connection and discards its pending
// state.
func (p *Pool) Disconnect(endpointID string) {
	p.mu.Lock()
	conn, ok := p.conns[endpointID]
	if ok {
		delete(p.conns, endpointID)
	}
	p.mu.Unlock()

	if ok {
		conn.Close()
	}
}

// DisconnectAll closes every pooled connection.
func (p *Pool) DisconnectAll() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*Connection)
	p.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	logrus.WithFields(logrus.Fields{
		"function": "DisconnectAll",
		"count":    len(conns),
	}).Info("Closed all pooled connections")
}

// ConnectedCount returns a point-in-time snapshot of live connections.
func (p *Pool) ConnectedCount() int {
	p.mu.RLock()
	conns := make([]*Connection, 0, len(p.conns))
	for _, c := range p.conns {
		conns = append(conns, c)
	}
	p.mu.RUnlock()

	count := 0
	for _, c := range conns {
		if c.Connected() {
			count++
		}
	}
	return count
}

func (p *Pool) dispatch(endpointID string, ev *protocol.Event) {
	p.mu.RLock()
	handlers := make([]EventHandler, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.RUnlock()

	for _, h := range handlers {
		h(endpointID, ev)
	}
}
