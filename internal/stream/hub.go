// Package stream pushes store transitions to WebSocket clients.
//
// A client receives one "snapshot" message when it connects, then one
// "transition" message per committed transition, in commit order and without
// gaps. A client that cannot keep up is disconnected rather than allowed to
// slow the store down.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"storekit/internal/store"
	pkgstore "storekit/pkg/store"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message types
const (
	TypeSnapshot   = "snapshot"
	TypeTransition = "transition"
)

const (
	sendBuffer   = 64
	writeTimeout = 10 * time.Second
)

// Message is the JSON frame sent to clients
type Message struct {
	Type    string    `json:"type"`
	Seq     uint64    `json:"seq"`
	Changed []string  `json:"changed,omitempty"`
	State   store.Map `json:"state"`
}

// Source is what a hub reads from
type Source interface {
	pkgstore.Reader[store.Map]
	pkgstore.Subscriber[store.Map]
}

// connWrapper wraps a WebSocket connection with its write mutex
type connWrapper struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	send    chan *websocket.PreparedMessage
	once    sync.Once
}

func (c *connWrapper) write(msg *websocket.PreparedMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WritePreparedMessage(msg)
}

func (c *connWrapper) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// Hub fans transitions out to connected clients
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader
	sub      store.Subscription

	connsMu     sync.Mutex
	connections []*connWrapper
	seq         uint64
	last        store.Map
	closed      bool
}

// NewHub creates a hub and subscribes it to src. Sequence numbers count the
// transitions the hub has seen; attach the hub together with a journal so
// both number transitions the same way.
func NewHub(src Source, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		last: src.GetState(),
	}
	h.sub = src.Subscribe(h.broadcast)
	return h
}

// broadcast runs on the store's notification path. It only encodes once and
// hands the frame to each connection's writer without blocking.
func (h *Hub) broadcast(next, prev store.Map) {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()

	if h.closed {
		return
	}
	h.seq++
	h.last = next

	msg, err := prepare(Message{
		Type:    TypeTransition,
		Seq:     h.seq,
		Changed: store.ChangedKeys(prev, next),
		State:   next,
	})
	if err != nil {
		h.logger.Error("Failed to encode transition", zap.Uint64("seq", h.seq), zap.Error(err))
		return
	}

	alive := h.connections[:0]
	for _, c := range h.connections {
		select {
		case c.send <- msg:
			alive = append(alive, c)
		default:
			h.logger.Warn("Dropping slow stream client",
				zap.String("remote", c.conn.RemoteAddr().String()))
			c.close()
		}
	}
	for i := len(alive); i < len(h.connections); i++ {
		h.connections[i] = nil
	}
	h.connections = alive
}

func prepare(m Message) (*websocket.PreparedMessage, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return websocket.NewPreparedMessage(websocket.TextMessage, data)
}

// ServeHTTP upgrades the request and streams to the client until it
// disconnects
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &connWrapper{
		conn: conn,
		send: make(chan *websocket.PreparedMessage, sendBuffer),
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}

	h.logger.Debug("Stream client connected", zap.String("remote", conn.RemoteAddr().String()))

	go h.readLoop(c)
	h.writeLoop(c)
}

// register queues the snapshot and adds c under the same lock broadcast
// takes, so no transition falls between the two
func (h *Hub) register(c *connWrapper) bool {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()

	if h.closed {
		return false
	}

	msg, err := prepare(Message{Type: TypeSnapshot, Seq: h.seq, State: h.last})
	if err != nil {
		h.logger.Error("Failed to encode snapshot", zap.Error(err))
		return false
	}
	c.send <- msg
	h.connections = append(h.connections, c)
	return true
}

func (h *Hub) unregister(c *connWrapper) {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()

	for i, existing := range h.connections {
		if existing == c {
			h.connections = append(h.connections[:i], h.connections[i+1:]...)
			break
		}
	}
	c.close()
}

// readLoop drains client frames so close and ping control messages are
// processed. Client payloads are ignored.
func (h *Hub) readLoop(c *connWrapper) {
	defer h.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(c *connWrapper) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
		h.logger.Debug("Stream client disconnected", zap.String("remote", c.conn.RemoteAddr().String()))
	}()

	for msg := range c.send {
		if err := c.write(msg); err != nil {
			h.logger.Debug("Stream write failed", zap.Error(err))
			return
		}
	}

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()
	return len(h.connections)
}

// Seq returns the sequence number of the last broadcast transition
func (h *Hub) Seq() uint64 {
	h.connsMu.Lock()
	defer h.connsMu.Unlock()
	return h.seq
}

// Close unsubscribes from the store and disconnects every client
func (h *Hub) Close() {
	h.sub.Unsubscribe()

	h.connsMu.Lock()
	defer h.connsMu.Unlock()

	h.closed = true
	for _, c := range h.connections {
		c.close()
	}
	h.connections = nil
}
