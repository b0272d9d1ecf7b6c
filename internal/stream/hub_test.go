package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"storekit/internal/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_SnapshotThenTransitions(t *testing.T) {
	s := store.NewMap(store.Map{"count": 0.0, "owner": "ada"})
	hub := NewHub(s, zap.NewNop())
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)

	snapshot := readMessage(t, conn)
	assert.Equal(t, TypeSnapshot, snapshot.Type)
	assert.Equal(t, uint64(0), snapshot.Seq)
	assert.Equal(t, store.Map{"count": 0.0, "owner": "ada"}, snapshot.State)

	require.NoError(t, s.SetState(store.Set(store.Map{"count": 1.0})))
	require.NoError(t, s.SetState(store.Set(store.Map{"count": 1.0}))) // elided
	require.NoError(t, s.SetState(store.Set(store.Map{"tags": []any{"x"}})))

	first := readMessage(t, conn)
	assert.Equal(t, TypeTransition, first.Type)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, []string{"count"}, first.Changed)
	assert.Equal(t, 1.0, first.State["count"])

	second := readMessage(t, conn)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, []string{"tags"}, second.Changed)
	assert.Equal(t, []any{"x"}, second.State["tags"])

	assert.Equal(t, uint64(2), hub.Seq())
}

func TestHub_LateClientSeesCurrentState(t *testing.T) {
	s := store.NewMap(store.Map{"count": 0.0})
	hub := NewHub(s, nil)
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	require.NoError(t, s.SetState(store.Set(store.Map{"count": 5.0})))

	conn := dial(t, srv)
	snapshot := readMessage(t, conn)
	assert.Equal(t, uint64(1), snapshot.Seq)
	assert.Equal(t, store.Map{"count": 5.0}, snapshot.State)
}

func TestHub_FanOut(t *testing.T) {
	s := store.NewMap(store.Map{})
	hub := NewHub(s, zap.NewNop())
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	readMessage(t, a)
	readMessage(t, b)
	assert.Equal(t, 2, hub.ClientCount())

	require.NoError(t, s.SetState(store.Set(store.Map{"k": "v"})))

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		assert.Equal(t, TypeTransition, msg.Type)
		assert.Equal(t, "v", msg.State["k"])
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	s := store.NewMap(store.Map{})
	hub := NewHub(s, zap.NewNop())
	defer hub.Close()

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	readMessage(t, conn)
	require.Equal(t, 1, hub.ClientCount())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)

	// Broadcasting with nobody connected is fine
	require.NoError(t, s.SetState(store.Set(store.Map{"k": 1.0})))
}

func TestHub_Close(t *testing.T) {
	s := store.NewMap(store.Map{})
	hub := NewHub(s, zap.NewNop())

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	readMessage(t, conn)

	hub.Close()
	assert.Equal(t, 0, s.ListenerCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)

	// New connections are refused once closed
	late := dial(t, srv)
	require.NoError(t, late.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = late.ReadMessage()
	assert.Error(t, err)
}
