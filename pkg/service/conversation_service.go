// Conversation service: conversation and message CRUD
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatforge/chatforge/pkg/db"
	"github.com/chatforge/chatforge/pkg/embedding"
	"github.com/chatforge/chatforge/pkg/utils"
	"github.com/chatforge/chatforge/pkg/vector"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEmptyMessage         = errors.New("message content is empty")
)

// ConversationService handles conversation and message operations.
// Every single-resource operation is owner-scoped: a conversation
// owned by another user signals not-found.
//
// When an embedder and index are configured, new messages are mirrored
// into the vector index so conversation search has data to rank.
type ConversationService struct {
	db       *gorm.DB
	embedder embedding.Provider
	index    vector.Index
	logger   *slog.Logger
}

// NewConversationService creates a conversation service. embedder and
// index may be nil to skip message indexing.
func NewConversationService(database *gorm.DB, embedder embedding.Provider, index vector.Index) *ConversationService {
	return &ConversationService{
		db:       database,
		embedder: embedder,
		index:    index,
		logger:   utils.GetLogger(),
	}
}

// AutoMigrate creates database tables
func (s *ConversationService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.Conversation{}, &db.Message{})
}

// Create creates a conversation for the user.
func (s *ConversationService) Create(ctx context.Context, userID, assistantID, title string) (*db.Conversation, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if title == "" {
		title = "New Chat"
	}

	conv := &db.Conversation{
		ID:          uuid.New().String(),
		UserID:      userID,
		AssistantID: assistantID,
		Title:       title,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// List returns all conversations owned by the user, newest first. The
// order is stable so offset pagination over it is well-defined.
func (s *ConversationService) List(ctx context.Context, userID string) ([]db.Conversation, error) {
	var conversations []db.Conversation
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id").
		Find(&conversations).Error; err != nil {
		return nil, err
	}
	return conversations, nil
}

// Get returns the conversation only when it belongs to userID.
func (s *ConversationService) Get(ctx context.Context, id, userID string) (*db.Conversation, error) {
	var conv db.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ? AND user_id = ?", id, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return &conv, nil
}

// UpdateTitle renames an owned conversation.
func (s *ConversationService) UpdateTitle(ctx context.Context, id, userID, title string) (*db.Conversation, error) {
	conv, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(conv).Updates(map[string]interface{}{
		"title":      title,
		"updated_at": time.Now(),
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to update conversation: %w", err)
	}
	return s.Get(ctx, id, userID)
}

// Delete removes an owned conversation and its messages.
func (s *ConversationService) Delete(ctx context.Context, id, userID string) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&db.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(&db.Conversation{}, "id = ?", id).Error
	})
}

// Archive flags an owned conversation as archived.
func (s *ConversationService) Archive(ctx context.Context, id, userID string) error {
	if _, err := s.Get(ctx, id, userID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&db.Conversation{}).Where("id = ?", id).Updates(map[string]interface{}{
		"archived":   true,
		"updated_at": time.Now(),
	}).Error
}

// Messages returns the conversation's messages in creation order. The
// caller must own the conversation.
func (s *ConversationService) Messages(ctx context.Context, conversationID, userID string) ([]db.Message, error) {
	if _, err := s.Get(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	var messages []db.Message
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id").
		Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

// AddMessage appends a message to a conversation. The author may be
// any participant (including the assistant), so the conversation is
// looked up by id alone; handlers enforce ownership for the HTTP path.
func (s *ConversationService) AddMessage(ctx context.Context, conversationID, userID, role, content, messageType string, metadata map[string]any) (*db.Message, error) {
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if role == "" {
		role = db.RoleUser
	}
	if messageType == "" {
		messageType = db.MessageTypeText
	}

	var conv db.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	msg := &db.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
		Content:        content,
		MessageType:    messageType,
		Metadata:       db.JSONMap(metadata),
		CreatedAt:      time.Now(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&db.Conversation{}).Where("id = ?", conversationID).
			Update("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	// Index under the conversation owner so their searches find
	// messages from every participant.
	s.indexMessage(ctx, &conv, msg)

	return msg, nil
}

// indexMessage mirrors a message into the vector index. Failures are
// logged and never surfaced; chat must not depend on the index.
func (s *ConversationService) indexMessage(ctx context.Context, conv *db.Conversation, msg *db.Message) {
	if s.embedder == nil || s.index == nil {
		return
	}

	vec, err := s.embedder.EmbedQuery(ctx, msg.Content)
	if err != nil || vec == nil {
		return
	}
	if err := s.index.UpsertMessage(ctx, conv.UserID, msg.ID, conv.ID, msg.Content, vec); err != nil {
		s.logger.Warn("Failed to index message", "messageID", msg.ID, "error", err)
	}
}
