package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	"github.com/canvango/canvango-group/internal/ports"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// fakeRealtimeServer accepts websocket connections, waits for a join, and
// hands the connection to the per-connection script.
func fakeRealtimeServer(t *testing.T, script func(conn *websocket.Conn, join phxMessage)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realtime/v1/websocket" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("apikey") == "" {
			http.Error(w, "missing apikey", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var join phxMessage
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		script(conn, join)
	}))
}

func newTestRealtimeClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{ProjectURL: srv.URL, AnonKey: "anon-key"})
	require.NoError(t, err)
	return client
}

func sendUpdate(t *testing.T, conn *websocket.Conn, topic string, record map[string]any) {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"type": "UPDATE", "record": record})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(phxMessage{Topic: topic, Event: "UPDATE", Payload: payload}))
}

func TestSubscribeUserDeliversUpdate(t *testing.T) {
	srv := fakeRealtimeServer(t, func(conn *websocket.Conn, join phxMessage) {
		assert.Equal(t, "phx_join", join.Event)
		assert.Equal(t, "realtime:public:users:id=eq.user-1", join.Topic)

		sendUpdate(t, conn, join.Topic, map[string]any{
			"id": "user-1", "role": "admin", "balance": 250000,
		})
		time.Sleep(200 * time.Millisecond)
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := newTestRealtimeClient(t, srv).SubscribeUser(ctx, "user-1")
	require.NoError(t, err)

	select {
	case change := <-changes:
		assert.Equal(t, "user-1", change.UserID)
		assert.Equal(t, domainauth.RoleAdmin, change.Role)
		assert.Equal(t, int64(250000), change.Balance)
	case <-time.After(3 * time.Second):
		t.Fatal("no change delivered")
	}
}

func TestSubscribeUserIgnoresOtherTopicsAndRows(t *testing.T) {
	srv := fakeRealtimeServer(t, func(conn *websocket.Conn, join phxMessage) {
		// Wrong topic, wrong row id, and a join ack: all must be dropped.
		sendUpdate(t, conn, "realtime:public:users:id=eq.other", map[string]any{"id": "other", "role": "admin"})
		sendUpdate(t, conn, join.Topic, map[string]any{"id": "intruder", "role": "admin"})
		require.NoError(t, conn.WriteJSON(phxMessage{Topic: join.Topic, Event: "phx_reply"}))
		sendUpdate(t, conn, join.Topic, map[string]any{"id": "user-1", "role": "member", "balance": 1})
		time.Sleep(200 * time.Millisecond)
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := newTestRealtimeClient(t, srv).SubscribeUser(ctx, "user-1")
	require.NoError(t, err)

	select {
	case change := <-changes:
		// Only the matching UPDATE arrives.
		assert.Equal(t, domainauth.RoleMember, change.Role)
	case <-time.After(3 * time.Second):
		t.Fatal("no change delivered")
	}
}

func TestSubscribeUserClosesChannelOnCancel(t *testing.T) {
	srv := fakeRealtimeServer(t, func(conn *websocket.Conn, _ phxMessage) {
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	changes, err := newTestRealtimeClient(t, srv).SubscribeUser(ctx, "user-1")
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-changes:
		assert.False(t, open)
	case <-time.After(3 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestSubscribeUserReconnects(t *testing.T) {
	var joins atomic.Int32
	srv := fakeRealtimeServer(t, func(conn *websocket.Conn, join phxMessage) {
		n := joins.Add(1)
		if n == 1 {
			// Drop the first connection immediately to force a reconnect.
			return
		}
		sendUpdate(t, conn, join.Topic, map[string]any{"id": "user-1", "role": "member", "balance": 5})
		time.Sleep(200 * time.Millisecond)
	})
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := newTestRealtimeClient(t, srv)
	var transitions atomic.Int32
	client.SetConnectionCallback(func(bool) { transitions.Add(1) })

	changes, err := client.SubscribeUser(ctx, "user-1")
	require.NoError(t, err)

	select {
	case change := <-changes:
		assert.Equal(t, int64(5), change.Balance)
	case <-time.After(10 * time.Second):
		t.Fatal("no change after reconnect")
	}
	assert.GreaterOrEqual(t, joins.Load(), int32(2))
	assert.GreaterOrEqual(t, transitions.Load(), int32(2))
}

func TestSubscribeUserRequiresUserID(t *testing.T) {
	client, err := NewClient(ClientConfig{ProjectURL: "http://localhost", AnonKey: "k"})
	require.NoError(t, err)
	_, err = client.SubscribeUser(context.Background(), "")
	assert.Error(t, err)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(ClientConfig{AnonKey: "k"})
	assert.Error(t, err)
	_, err = NewClient(ClientConfig{ProjectURL: "http://localhost"})
	assert.Error(t, err)
}

var _ ports.RealtimeSubscriber = (*Client)(nil)
