package transport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/chatprobe/protocol"
	"github.com/opd-ai/chatprobe/store"
)

func TestPool(t *testing.T) {
	srv := newFakeEndpoint(t, func(ws *websocket.Conn, corrID, cmd string) {
		writeFrame(ws, fmt.Sprintf(`{"corrId":%q,"resp":{"type":"echo","cmd":%q}}`, corrID, cmd))
	})

	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.SaveEndpoint(ctx, &store.Endpoint{ID: "ep1", Address: wsAddr(srv), Active: true}))

	pool := NewPool(st, time.Second)

	t.Run("unknown endpoint", func(t *testing.T) {
		_, err := pool.Acquire(ctx, "ghost")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("acquire reuses the connection", func(t *testing.T) {
		first, err := pool.Acquire(ctx, "ep1")
		require.NoError(t, err)
		second, err := pool.Acquire(ctx, "ep1")
		require.NoError(t, err)
		assert.Same(t, first, second)
		assert.Equal(t, 1, pool.ConnectedCount())
	})

	t.Run("send message formats the domain command", func(t *testing.T) {
		resp, err := pool.SendMessage(ctx, "ep1", "bob", "hello")
		require.NoError(t, err)
		assert.Contains(t, string(resp), `"@bob hello"`)
	})

	t.Run("pool-wide event handlers reach pooled connections", func(t *testing.T) {
		events := make(chan string, 1)
		pool.OnEvent(func(endpointID string, ev *protocol.Event) {
			if ev.Type == protocol.EventNewChatItems {
				events <- endpointID
			}
		})

		conn, err := pool.Acquire(ctx, "ep1")
		require.NoError(t, err)
		conn.dispatch(&protocol.Event{Type: protocol.EventNewChatItems})

		select {
		case id := <-events:
			assert.Equal(t, "ep1", id)
		case <-time.After(time.Second):
			t.Fatal("event not fanned out")
		}
	})

	t.Run("disconnect all", func(t *testing.T) {
		pool.DisconnectAll()
		assert.Equal(t, 0, pool.ConnectedCount())
	})
}
