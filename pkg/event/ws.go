package event

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/chatforge/chatforge/pkg/db"
	"github.com/chatforge/chatforge/pkg/service"
	"github.com/chatforge/chatforge/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	readLimit    = 64 * 1024
	readTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

// ChatHandler upgrades conversation socket requests and bridges frames
// between connections and the hub. Inbound "message" frames are
// persisted before broadcast; "typing" frames are broadcast only.
type ChatHandler struct {
	hub           *Hub
	conversations *service.ConversationService
	upgrader      websocket.Upgrader
	logger        *slog.Logger
}

// NewChatHandler creates the WebSocket handler.
func NewChatHandler(hub *Hub, conversations *service.ConversationService) *ChatHandler {
	return &ChatHandler{
		hub:           hub,
		conversations: conversations,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: utils.GetLogger(),
	}
}

// RegisterRoutes registers the socket endpoint.
func (h *ChatHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/chat/ws/:conversation_id", h.Handle)
}

// Handle is the Gin handler for a conversation socket.
func (h *ChatHandler) Handle(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	userID := c.GetString("user_id")

	// The assistant joins rooms it does not own; everyone else must.
	if userID != db.RoleAssistant {
		if _, err := h.conversations.Get(c.Request.Context(), conversationID, userID); err != nil {
			if errors.Is(err, service.ErrConversationNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	cl := h.hub.join(conversationID)
	defer h.hub.leave(conversationID, cl)

	done := make(chan struct{})
	go h.writeLoop(conn, cl, done)
	defer close(done)

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		h.handleFrame(c, conversationID, userID, frame)
	}
}

// writeLoop drains the client's send channel onto the socket and keeps
// the connection alive with pings. Owns all writes to conn.
func (h *ChatHandler) writeLoop(conn *websocket.Conn, cl *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case frame := <-cl.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		}
	}
}

func (h *ChatHandler) handleFrame(c *gin.Context, conversationID, userID string, frame Frame) {
	switch frame.Type {
	case FrameMessage:
		role := db.RoleUser
		outType := FrameMessage
		if userID == db.RoleAssistant {
			role = db.RoleAssistant
			outType = FrameAIResponse
		}
		msg, err := h.conversations.AddMessage(c.Request.Context(), conversationID, userID, role, frame.Content, frame.MessageType, nil)
		if err != nil {
			h.logger.Warn("Failed to persist socket message",
				"conversation", conversationID, "error", err)
			return
		}
		h.hub.Broadcast(conversationID, Frame{
			Type:           outType,
			ConversationID: conversationID,
			UserID:         userID,
			Message:        msg,
			TS:             time.Now().UnixMilli(),
		})

	case FrameTyping:
		h.hub.Broadcast(conversationID, Frame{
			Type:           FrameTyping,
			ConversationID: conversationID,
			UserID:         userID,
			IsTyping:       frame.IsTyping,
			TS:             time.Now().UnixMilli(),
		})

	default:
		h.logger.Debug("Ignoring unknown frame type",
			"conversation", conversationID, "type", frame.Type)
	}
}
