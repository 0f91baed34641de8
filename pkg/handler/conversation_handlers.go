// Conversation API handlers
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/chatforge/chatforge/pkg/db"
	"github.com/chatforge/chatforge/pkg/service"
	"github.com/gin-gonic/gin"
)

const maxPageSize = 100

// ConversationHandler handles conversation API requests
type ConversationHandler struct {
	conversations *service.ConversationService
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversations *service.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

// RegisterRoutes registers conversation routes
func (h *ConversationHandler) RegisterRoutes(r *gin.RouterGroup) {
	conversations := r.Group("/conversations")
	{
		conversations.POST("", h.CreateConversation)
		conversations.GET("", h.ListConversations)
		conversations.GET("/:id", h.GetConversation)
		conversations.PUT("/:id", h.UpdateConversation)
		conversations.DELETE("/:id", h.DeleteConversation)
		conversations.POST("/:id/archive", h.ArchiveConversation)
		conversations.GET("/:id/messages", h.ListMessages)
		conversations.POST("/:id/messages", h.AddMessage)
	}
}

// CreateConversation creates a conversation
// POST /api/v1/conversations
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req struct {
		AssistantID string `json:"assistant_id"`
		Title       string `json:"title"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.conversations.Create(c.Request.Context(), currentUser(c), req.AssistantID, req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create conversation"})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

// ListConversations lists the user's conversations
// GET /api/v1/conversations?page=&size=
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	all, err := h.conversations.List(c.Request.Context(), currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	start := (page - 1) * size
	if start > len(all) {
		start = len(all)
	}
	end := start + size
	if end > len(all) {
		end = len(all)
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": all[start:end],
		"total":         len(all),
		"page":          page,
		"size":          size,
	})
}

// GetConversation returns one owned conversation
// GET /api/v1/conversations/:id
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conv, err := h.conversations.Get(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// UpdateConversation renames a conversation
// PUT /api/v1/conversations/:id
func (h *ConversationHandler) UpdateConversation(c *gin.Context) {
	var req struct {
		Title string `json:"title" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conv, err := h.conversations.UpdateTitle(c.Request.Context(), c.Param("id"), currentUser(c), req.Title)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

// DeleteConversation deletes a conversation and its messages
// DELETE /api/v1/conversations/:id
func (h *ConversationHandler) DeleteConversation(c *gin.Context) {
	if err := h.conversations.Delete(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ArchiveConversation flags a conversation archived
// POST /api/v1/conversations/:id/archive
func (h *ConversationHandler) ArchiveConversation(c *gin.Context) {
	if err := h.conversations.Archive(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archived": true})
}

// ListMessages returns a conversation's messages in creation order
// GET /api/v1/conversations/:id/messages
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	messages, err := h.conversations.Messages(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": messages,
		"count":    len(messages),
	})
}

// AddMessage appends a message to an owned conversation
// POST /api/v1/conversations/:id/messages
func (h *ConversationHandler) AddMessage(c *gin.Context) {
	var req struct {
		Content     string         `json:"content" binding:"required"`
		Role        string         `json:"role"`
		MessageType string         `json:"message_type"`
		Metadata    map[string]any `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := currentUser(c)
	conversationID := c.Param("id")

	// Ownership gate; AddMessage itself accepts any participant.
	if _, err := h.conversations.Get(c.Request.Context(), conversationID, userID); err != nil {
		h.renderError(c, err)
		return
	}

	if req.Role == "" {
		req.Role = db.RoleUser
	}

	msg, err := h.conversations.AddMessage(c.Request.Context(), conversationID, userID, req.Role, req.Content, req.MessageType, req.Metadata)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
	case errors.Is(err, service.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
