// Knowledge base API handlers
package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/chatforge/chatforge/pkg/service"
	"github.com/gin-gonic/gin"
)

// maxUploadSize caps document uploads at 50 MiB.
const maxUploadSize = 50 << 20

// KnowledgeHandler handles document and search API requests
type KnowledgeHandler struct {
	knowledge *service.KnowledgeService
}

// NewKnowledgeHandler creates a new knowledge handler
func NewKnowledgeHandler(knowledge *service.KnowledgeService) *KnowledgeHandler {
	return &KnowledgeHandler{knowledge: knowledge}
}

// RegisterRoutes registers knowledge routes
func (h *KnowledgeHandler) RegisterRoutes(r *gin.RouterGroup) {
	knowledge := r.Group("/knowledge")
	{
		knowledge.POST("/documents", h.UploadDocument)
		knowledge.GET("/documents", h.ListDocuments)
		knowledge.GET("/documents/:id", h.GetDocument)
		knowledge.DELETE("/documents/:id", h.DeleteDocument)
		knowledge.POST("/documents/:id/process", h.ProcessDocument)
		knowledge.POST("/search", h.SearchDocuments)
		knowledge.POST("/search/conversations", h.SearchConversations)
	}
}

// UploadDocument accepts a multipart upload and creates a document
// POST /api/v1/knowledge/documents
func (h *KnowledgeHandler) UploadDocument(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read upload"})
		return
	}
	if len(content) > maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}

	req := &service.CreateDocumentRequest{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		FileName:    header.Filename,
	}
	if tags := c.PostForm("tags"); tags != "" {
		for _, t := range strings.Split(tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.Tags = append(req.Tags, t)
			}
		}
	}

	doc, err := h.knowledge.CreateDocument(c.Request.Context(), currentUser(c), req, content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, doc)
}

// ListDocuments returns a page of the user's documents
// GET /api/v1/knowledge/documents?skip=&limit=&status=
func (h *KnowledgeHandler) ListDocuments(c *gin.Context) {
	skip, _ := strconv.Atoi(c.DefaultQuery("skip", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit > maxPageSize {
		limit = maxPageSize
	}

	docs, total, err := h.knowledge.GetDocuments(c.Request.Context(), currentUser(c), skip, limit, c.Query("status"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list documents"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documents": docs,
		"total":     total,
	})
}

// GetDocument returns one owned document
// GET /api/v1/knowledge/documents/:id
func (h *KnowledgeHandler) GetDocument(c *gin.Context) {
	doc, err := h.knowledge.GetDocument(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// DeleteDocument removes a document, its chunks, file and vectors
// DELETE /api/v1/knowledge/documents/:id
func (h *KnowledgeHandler) DeleteDocument(c *gin.Context) {
	ok, err := h.knowledge.DeleteDocument(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete document"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// ProcessDocument runs the ingestion pipeline for an owned document
// POST /api/v1/knowledge/documents/:id/process
func (h *KnowledgeHandler) ProcessDocument(c *gin.Context) {
	documentID := c.Param("id")
	userID := currentUser(c)

	if _, err := h.knowledge.GetDocument(c.Request.Context(), documentID, userID); err != nil {
		h.renderError(c, err)
		return
	}

	if err := h.knowledge.ProcessDocument(c.Request.Context(), documentID); err != nil {
		if errors.Is(err, service.ErrDocumentProcessing) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		// Processing failed; the document carries status "error" with
		// the reason.
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	doc, err := h.knowledge.GetDocument(c.Request.Context(), documentID, userID)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// SearchDocuments runs a semantic search over the user's documents
// POST /api/v1/knowledge/search
func (h *KnowledgeHandler) SearchDocuments(c *gin.Context) {
	var req struct {
		Query   string            `json:"query" binding:"required"`
		Limit   int               `json:"limit"`
		Filters map[string]string `json:"filters"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	results, err := h.knowledge.SearchDocuments(c.Request.Context(), currentUser(c), req.Query, req.Limit, req.Filters)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"count":   len(results),
	})
}

// SearchConversations runs a semantic search over message history
// POST /api/v1/knowledge/search/conversations
func (h *KnowledgeHandler) SearchConversations(c *gin.Context) {
	var req struct {
		Query          string `json:"query" binding:"required"`
		ConversationID string `json:"conversation_id"`
		Limit          int    `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	results, err := h.knowledge.SearchConversations(c.Request.Context(), currentUser(c), req.Query, req.ConversationID, req.Limit)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"count":   len(results),
	})
}

func (h *KnowledgeHandler) renderError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDocumentNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
	case errors.Is(err, service.ErrEmptyQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
