package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/chatprobe/protocol"
)

// newFakeEndpoint starts a websocket server that decodes each inbound
// command frame and hands it to the supplied handler.
func newFakeEndpoint(t *testing.T, handler func(ws *websocket.Conn, corrID, cmd string)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			var req struct {
				CorrID string `json:"corrId"`
				Cmd    string `json:"cmd"`
			}
			if err := json.Unmarshal(data, &req); err != nil {
				continue
			}
			handler(ws, req.CorrID, req.Cmd)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsAddr(srv *httptest.Server) string {
	return strings.TrimPrefix(srv.URL, "http://")
}

func writeFrame(ws *websocket.Conn, frame string) {
	ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

func TestSendCommandRoundTrip(t *testing.T) {
	srv := newFakeEndpoint(t, func(ws *websocket.Conn, corrID, cmd string) {
		writeFrame(ws, fmt.Sprintf(`{"corrId":%q,"resp":{"type":"echo","cmd":%q}}`, corrID, cmd))
	})

	conn := NewConnection("ep1", wsAddr(srv))
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Close()

	resp, err := conn.SendCommand(context.Background(), "/contacts", time.Second)
	require.NoError(t, err)

	var body struct {
		Type string `json:"type"`
		Cmd  string `json:"cmd"`
	}
	require.NoError(t, json.Unmarshal(resp, &body))
	assert.Equal(t, "echo", body.Type)
	assert.Equal(t, "/contacts", body.Cmd)
}

func TestOutOfOrderReplies(t *testing.T) {
	// The fake endpoint holds both requests, then answers them in reverse
	// order. Each caller must still receive its own reply.
	var (
		mu   sync.Mutex
		held []struct{ corrID, cmd string }
	)
	srv := newFakeEndpoint(t, func(ws *websocket.Conn, corrID, cmd string) {
		mu.Lock()
		defer mu.Unlock()
		held = append(held, struct{ corrID, cmd string }{corrID, cmd})
		if len(held) == 2 {
			for i := len(held) - 1; i >= 0; i-- {
				writeFrame(ws, fmt.Sprintf(`{"corrId":%q,"resp":{"type":"echo","cmd":%q}}`, held[i].corrID, held[i].cmd))
			}
		}
	})

	conn := NewConnection("ep1", wsAddr(srv))
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Close()

	results := make(chan error, 2)
	for _, cmd := range []string{"/contacts", "/address"} {
		cmd := cmd
		go func() {
			resp, err := conn.SendCommand(context.Background(), cmd, 2*time.Second)
			if err != nil {
				results <- err
				return
			}
			var body struct {
				Cmd string `json:"cmd"`
			}
			if err := json.Unmarshal(resp, &body); err != nil {
				results <- err
				return
			}
			if body.Cmd != cmd {
				results <- fmt.Errorf("reply for %q answered %q", cmd, body.Cmd)
				return
			}
			results <- nil
		}()
	}
	for i := 0; i < 2; i++ {
		assert.NoError(t, <-results)
	}
}

func TestSendCommandTimeout(t *testing.T) {
	corrIDs := make(chan string, 1)
	srv := newFakeEndpoint(t, func(ws *websocket.Conn, corrID, cmd string) {
		corrIDs <- corrID
		// Never reply.
	})

	conn := NewConnection("ep1", wsAddr(srv))
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Close()

	errs := make(chan error, 1)
	go func() {
		_, err := conn.SendCommand(context.Background(), "/contacts", 100*time.Millisecond)
		errs <- err
	}()

	corrID := <-corrIDs
	assert.True(t, conn.HasPending(corrID))

	err := <-errs
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, conn.HasPending(corrID), "timed-out request must be forgotten")
	assert.True(t, conn.Connected(), "timeout does not drop the channel")
}

func TestUnsolicitedEvents(t *testing.T) {
	srv := newFakeEndpoint(t, func(ws *websocket.Conn, corrID, cmd string) {
		// An event frame and a reply carrying an unknown correlation id.
		writeFrame(ws, `{"corrId":null,"resp":{"type":"newChatItems","chatItems":[{"contact":"bob","content":{"type":"text","text":"hi"}}]}}`)
		writeFrame(ws, `{"corrId":"ghost","resp":{"type":"chatItemsStatusesUpdated","updates":[{"itemStatus":"sndSent","contact":"bob","text":"hi"}]}}`)
		writeFrame(ws, fmt.Sprintf(`{"corrId":%q,"resp":{"type":"ok"}}`, corrID))
	})

	conn := NewConnection("ep1", wsAddr(srv))
	events := make(chan *protocol.Event, 4)
	conn.OnEvent(func(endpointID string, ev *protocol.Event) {
		assert.Equal(t, "ep1", endpointID)
		events <- ev
	})
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Close()

	_, err := conn.SendCommand(context.Background(), "/contacts", time.Second)
	require.NoError(t, err)

	var types []protocol.EventType
	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	assert.Contains(t, types, protocol.EventNewChatItems)
	assert.Contains(t, types, protocol.EventStatusesUpdated,
		"unknown correlation ids must be surfaced as events")
}

func TestDisconnectFailsPending(t *testing.T) {
	srv := newFakeEndpoint(t, func(ws *websocket.Conn, corrID, cmd string) {
		ws.Close()
	})

	conn := NewConnection("ep1", wsAddr(srv))
	require.NoError(t, conn.Connect(context.Background()))

	_, err := conn.SendCommand(context.Background(), "/contacts", 2*time.Second)
	assert.ErrorIs(t, err, ErrDisconnected)

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed after disconnect")
	}
	assert.False(t, conn.Connected())
}

func TestConnectFailureCounting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := wsAddr(srv)
	srv.Close()

	conn := NewConnection("ep1", addr)
	require.Error(t, conn.Connect(context.Background()))
	require.Error(t, conn.Connect(context.Background()))
	assert.Equal(t, 2, conn.Failures())

	live := newFakeEndpoint(t, func(ws *websocket.Conn, corrID, cmd string) {})
	good := NewConnection("ep2", wsAddr(live))
	require.NoError(t, good.Connect(context.Background()))
	defer good.Close()
	assert.Equal(t, 0, good.Failures(), "successful dial resets the counter")
}

func TestConcurrentConnectDialsOnce(t *testing.T) {
	var upgrades atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		upgrades.Add(1)
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	conn := NewConnection("ep1", strings.TrimPrefix(srv.URL, "http://"))
	defer conn.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, conn.Connect(context.Background()))
		}()
	}
	wg.Wait()

	assert.True(t, conn.Connected())
	assert.Equal(t, int32(1), upgrades.Load(), "racing callers must share one session")
}

func TestConnectIsIdempotent(t *testing.T) {
	srv := newFakeEndpoint(t, func(ws *websocket.Conn, corrID, cmd string) {})
	conn := NewConnection("ep1", wsAddr(srv))
	require.NoError(t, conn.Connect(context.Background()))
	defer conn.Close()
	require.NoError(t, conn.Connect(context.Background()))
	assert.True(t, conn.Connected())
}
