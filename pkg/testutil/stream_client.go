package testutil

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Frame is a decoded stream message
type Frame struct {
	Type    string         `json:"type"`
	Seq     uint64         `json:"seq"`
	Changed []string       `json:"changed,omitempty"`
	State   map[string]any `json:"state"`
}

// StreamClient reads frames from a storekit WebSocket stream
type StreamClient struct {
	conn    *websocket.Conn
	readMu  sync.Mutex
	timeout time.Duration
}

// DialStream connects to the stream at url. http:// and https:// URLs are
// rewritten to ws:// and wss://.
func DialStream(url string) (*StreamClient, error) {
	switch {
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial stream: %w", err)
	}
	return &StreamClient{conn: conn, timeout: 5 * time.Second}, nil
}

// Next reads one frame, failing after the client timeout
func (c *StreamClient) Next() (Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	var f Frame
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return f, err
	}
	if err := c.conn.ReadJSON(&f); err != nil {
		return f, fmt.Errorf("failed to read frame: %w", err)
	}
	return f, nil
}

// Collect reads frames until n have arrived
func (c *StreamClient) Collect(n int) ([]Frame, error) {
	frames := make([]Frame, 0, n)
	for len(frames) < n {
		f, err := c.Next()
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
	return frames, nil
}

// Close closes the connection
func (c *StreamClient) Close() error {
	return c.conn.Close()
}
