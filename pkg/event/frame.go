// Package event carries the realtime chat plumbing: the JSON frame
// format, a per-conversation broadcast hub, and the WebSocket handler.
package event

import "github.com/chatforge/chatforge/pkg/db"

// Frame types exchanged on the conversation socket.
const (
	FrameMessage    = "message"
	FrameTyping     = "typing"
	FrameAIResponse = "ai_response"
)

// Frame is the JSON message exchanged over the conversation socket.
// Type selects which of the remaining fields are meaningful: inbound
// "message" frames carry Content/MessageType, inbound "typing" frames
// carry IsTyping, and outbound "message"/"ai_response" frames carry
// the persisted Message.
type Frame struct {
	Type           string      `json:"type"`
	ConversationID string      `json:"conversation_id,omitempty"`
	UserID         string      `json:"user_id,omitempty"`
	Content        string      `json:"content,omitempty"`
	MessageType    string      `json:"message_type,omitempty"`
	IsTyping       bool        `json:"is_typing,omitempty"`
	Message        *db.Message `json:"message,omitempty"`
	TS             int64       `json:"ts,omitempty"`
}
