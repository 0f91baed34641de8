// Package client is the Go client for the chat backend: a realtime
// transport with REST fallback behind a single MessageService.
package client

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chatforge/chatforge/pkg/event"
	"github.com/gorilla/websocket"
)

// Transport is the realtime connection to one conversation. Incoming
// frames are delivered to the handler registered with OnFrame before
// Connect is called.
type Transport interface {
	OnFrame(fn func(event.Frame))
	Connect(ctx context.Context, conversationID string) error
	SendMessage(ctx context.Context, content, messageType string) error
	SendTyping(ctx context.Context, isTyping bool) error
	Connected() bool
	Close() error
}

const writeWait = 5 * time.Second

// WSTransport implements Transport over a gorilla WebSocket.
type WSTransport struct {
	baseURL string
	userID  string

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	handler   func(event.Frame)
}

// NewWSTransport creates a transport for the socket endpoint under
// baseURL (e.g. "ws://127.0.0.1:8090/api/v1").
func NewWSTransport(baseURL, userID string) *WSTransport {
	return &WSTransport{baseURL: baseURL, userID: userID}
}

// OnFrame registers the incoming-frame handler.
func (t *WSTransport) OnFrame(fn func(event.Frame)) {
	t.mu.Lock()
	t.handler = fn
	t.mu.Unlock()
}

// Connect dials the conversation socket and starts the read loop.
func (t *WSTransport) Connect(ctx context.Context, conversationID string) error {
	url := fmt.Sprintf("%s/chat/ws/%s", t.baseURL, conversationID)
	header := http.Header{"X-User-ID": []string{t.userID}}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return fmt.Errorf("dial %s: %w", url, err)
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.mu.Unlock()

	go t.readLoop(conn)
	return nil
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		var frame event.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			t.mu.Lock()
			if t.conn == conn {
				t.connected = false
			}
			t.mu.Unlock()
			return
		}
		t.mu.Lock()
		handler := t.handler
		t.mu.Unlock()
		if handler != nil {
			handler(frame)
		}
	}
}

// SendMessage writes an outbound chat message frame.
func (t *WSTransport) SendMessage(ctx context.Context, content, messageType string) error {
	return t.writeFrame(event.Frame{
		Type:        event.FrameMessage,
		Content:     content,
		MessageType: messageType,
	})
}

// SendTyping writes a typing-indicator frame.
func (t *WSTransport) SendTyping(ctx context.Context, isTyping bool) error {
	return t.writeFrame(event.Frame{
		Type:     event.FrameTyping,
		IsTyping: isTyping,
	})
}

func (t *WSTransport) writeFrame(frame event.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.conn == nil {
		return fmt.Errorf("transport is not connected")
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteJSON(frame)
}

// Connected reports whether the socket is currently open.
func (t *WSTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Close sends a best-effort close frame and tears the socket down.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.connected = false
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return conn.Close()
}
