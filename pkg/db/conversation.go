// Database models for chat conversations
package db

import "time"

// Conversation represents a chat conversation owned by a user
type Conversation struct {
	ID          string    `json:"id" gorm:"primaryKey;size:36"`
	UserID      string    `json:"user_id" gorm:"index;size:36;not null"`
	AssistantID string    `json:"assistant_id,omitempty" gorm:"index;size:36"`
	Title       string    `json:"title" gorm:"size:200;default:'New Chat'"`
	Archived    bool      `json:"archived" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message types
const (
	MessageTypeText   = "text"
	MessageTypeFile   = "file"
	MessageTypeTool   = "tool"
	MessageTypeSystem = "system"
)

// Message is a single conversation message. Messages are append-only:
// there is no update path through the API.
type Message struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	ConversationID string    `json:"conversation_id" gorm:"index;size:36;not null"`
	UserID         string    `json:"user_id,omitempty" gorm:"size:36"`
	Role           string    `json:"role" gorm:"size:20;not null"`
	Content        string    `json:"content" gorm:"type:text;not null"`
	MessageType    string    `json:"message_type" gorm:"size:20;default:'text'"`
	Metadata       JSONMap   `json:"metadata,omitempty" gorm:"type:json"`
	CreatedAt      time.Time `json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
