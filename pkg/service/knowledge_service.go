// Knowledge service: document lifecycle and semantic search
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chatforge/chatforge/pkg/db"
	"github.com/chatforge/chatforge/pkg/embedding"
	"github.com/chatforge/chatforge/pkg/processor"
	"github.com/chatforge/chatforge/pkg/utils"
	"github.com/chatforge/chatforge/pkg/vector"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrDocumentNotFound   = errors.New("document not found")
	ErrDocumentProcessing = errors.New("document is already being processed")
	ErrEmptyContent       = errors.New("document content is empty")
	ErrEmptyQuery         = errors.New("search query is empty")
)

// KnowledgeService orchestrates the document pipeline: persist uploads,
// chunk and embed them, mirror embedded chunks into the vector index,
// and answer semantic search queries.
//
// The embedder and index are optional; when either is nil, documents
// are still processed and chunked but semantic search returns empty
// results.
type KnowledgeService struct {
	db        *gorm.DB
	uploadDir string
	processor processor.Processor
	embedder  embedding.Provider
	index     vector.Index
	logger    *slog.Logger
}

// NewKnowledgeService creates a knowledge service. embedder and index
// may be nil to disable semantic features.
func NewKnowledgeService(database *gorm.DB, uploadDir string, proc processor.Processor, embedder embedding.Provider, index vector.Index) *KnowledgeService {
	return &KnowledgeService{
		db:        database,
		uploadDir: uploadDir,
		processor: proc,
		embedder:  embedder,
		index:     index,
		logger:    utils.GetLogger(),
	}
}

// AutoMigrate creates database tables
func (s *KnowledgeService) AutoMigrate() error {
	return s.db.AutoMigrate(&db.Document{}, &db.DocumentChunk{}, &db.SearchQuery{})
}

// CreateDocumentRequest carries the caller-supplied document fields.
type CreateDocumentRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	FileName    string         `json:"file_name"`
	Tags        []string       `json:"tags,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CreateDocument writes the uploaded bytes under the upload directory
// and inserts a Document row with status "uploaded". The file is
// written first; if the insert fails the file is removed again so no
// row ever points at a file that was not written.
func (s *KnowledgeService) CreateDocument(ctx context.Context, userID string, req *CreateDocumentRequest, content []byte) (*db.Document, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.New("title is required")
	}
	if req.FileName == "" {
		return nil, errors.New("file name is required")
	}
	if len(content) == 0 {
		return nil, ErrEmptyContent
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	id := uuid.New().String()
	ext := strings.ToLower(filepath.Ext(req.FileName))
	filePath := filepath.Join(s.uploadDir, id+ext)

	if err := os.WriteFile(filePath, content, 0o644); err != nil {
		return nil, fmt.Errorf("failed to store document file: %w", err)
	}

	doc := &db.Document{
		ID:          id,
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		FileName:    req.FileName,
		FilePath:    filePath,
		FileType:    strings.TrimPrefix(ext, "."),
		FileSize:    int64(len(content)),
		MimeType:    mimetype.Detect(content).String(),
		Tags:        db.StringArray(req.Tags),
		Metadata:    db.JSONMap(req.Metadata),
		Status:      db.DocumentStatusUploaded,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		if rmErr := os.Remove(filePath); rmErr != nil {
			s.logger.Warn("Failed to remove file after insert failure", "path", filePath, "error", rmErr)
		}
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	s.logger.Debug("Document created", "id", doc.ID, "user", userID, "file", req.FileName)

	return doc, nil
}

// ProcessDocument runs the ingestion pipeline for one document: read
// the stored file, chunk it, embed the chunks in one batch, mirror
// embedded chunks into the vector index, and persist chunks plus the
// final document state.
//
// Processing may only start from status "uploaded" or "error"; the
// transition to "processing" is a conditional update so two concurrent
// calls cannot both proceed. Any failure past that point marks the
// document "error" with the failure reason and is returned to the
// caller, never leaving the document "processed" with partial chunks.
func (s *KnowledgeService) ProcessDocument(ctx context.Context, documentID string) error {
	var doc db.Document
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", documentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDocumentNotFound
		}
		return err
	}

	// Status-transition guard against double processing.
	res := s.db.WithContext(ctx).Model(&db.Document{}).
		Where("id = ? AND status IN ?", documentID, []string{db.DocumentStatusUploaded, db.DocumentStatusError}).
		Updates(map[string]interface{}{
			"status":        db.DocumentStatusProcessing,
			"error_message": "",
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to start processing: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDocumentProcessing
	}

	content, err := os.ReadFile(doc.FilePath)
	if err != nil {
		return s.markError(ctx, documentID, fmt.Errorf("failed to read document file: %w", err))
	}

	result, err := s.processor.Process(content, doc.FileName)
	if err != nil {
		return s.markError(ctx, documentID, fmt.Errorf("document processing failed: %w", err))
	}

	chunks, embedded, err := s.buildChunks(ctx, documentID, result.Chunks)
	if err != nil {
		return s.markError(ctx, documentID, err)
	}

	// Mirror embedded chunks before committing, so "processed" is only
	// ever set once the index has everything. Chunk IDs are minted per
	// run, so a retry after a failed attempt must clear the document's
	// slice of the index first or the old entries would linger.
	if s.index != nil {
		if err := s.index.DeleteDocument(ctx, doc.UserID, documentID); err != nil {
			return s.markError(ctx, documentID, fmt.Errorf("failed to clear stale vectors: %w", err))
		}
		for _, i := range embedded {
			c := chunks[i]
			meta := s.chunkIndexMetadata(&doc, c, result)
			if err := s.index.UpsertChunk(ctx, doc.UserID, c.ID, documentID, c.Content, c.Embedding, meta); err != nil {
				return s.markError(ctx, documentID, fmt.Errorf("vector index upsert failed: %w", err))
			}
		}
	}

	now := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// A previous run that failed after inserting chunks may have
		// left rows behind; replace them.
		if err := tx.Where("document_id = ?", documentID).Delete(&db.DocumentChunk{}).Error; err != nil {
			return fmt.Errorf("failed to clear old chunks: %w", err)
		}
		if len(chunks) > 0 {
			if err := tx.CreateInBatches(chunks, 100).Error; err != nil {
				return fmt.Errorf("failed to insert chunks: %w", err)
			}
		}
		return tx.Model(&db.Document{}).Where("id = ?", documentID).Updates(map[string]interface{}{
			"status":        db.DocumentStatusProcessed,
			"error_message": "",
			"chunk_count":   len(chunks),
			"metadata":      mergeMetadata(doc.Metadata, result.Metadata),
			"processed_at":  now,
			"updated_at":    now,
		}).Error
	})
	if err != nil {
		return s.markError(ctx, documentID, err)
	}

	s.logger.Info("Document processed",
		"id", documentID,
		"chunks", len(chunks),
		"embedded", len(embedded))

	return nil
}

// buildChunks converts processor chunks into DocumentChunk rows and
// attaches batch embeddings. The returned index list names the chunks
// that received a vector; a nil vector at position i means chunk i is
// persisted without one and skipped for the index.
func (s *KnowledgeService) buildChunks(ctx context.Context, documentID string, raw []processor.Chunk) ([]*db.DocumentChunk, []int, error) {
	var vectors [][]float32
	if s.embedder != nil && len(raw) > 0 {
		texts := make([]string, len(raw))
		for i, c := range raw {
			texts[i] = c.Content
		}
		var err error
		vectors, err = s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to embed chunks: %w", err)
		}
	}

	now := time.Now()
	chunks := make([]*db.DocumentChunk, len(raw))
	var embedded []int
	for i, c := range raw {
		chunk := &db.DocumentChunk{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			ChunkIndex: i,
			Content:    c.Content,
			TokenCount: c.TokenCount,
			StartWord:  c.StartWord,
			EndWord:    c.EndWord,
			Metadata:   chunkMetadata(c),
			CreatedAt:  now,
		}
		if i < len(vectors) && vectors[i] != nil {
			t := now
			chunk.Embedding = db.Vector(vectors[i])
			chunk.EmbeddingModel = s.embedder.ModelName()
			chunk.EmbeddingCreatedAt = &t
			embedded = append(embedded, i)
		}
		chunks[i] = chunk
	}
	return chunks, embedded, nil
}

// chunkMetadata keeps the optional structural fields of a chunk.
func chunkMetadata(c processor.Chunk) db.JSONMap {
	meta := db.JSONMap{}
	if c.Type != "" {
		meta["chunk_type"] = c.Type
	}
	if c.PageNumber > 0 {
		meta["page_number"] = c.PageNumber
	}
	if c.TableID != "" {
		meta["table_id"] = c.TableID
	}
	if c.FigureID != "" {
		meta["figure_id"] = c.FigureID
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// chunkIndexMetadata builds the vector-index metadata for one chunk.
func (s *KnowledgeService) chunkIndexMetadata(doc *db.Document, c *db.DocumentChunk, result *processor.Result) map[string]string {
	meta := map[string]string{
		"title":       doc.Title,
		"file_type":   doc.FileType,
		"chunk_index": fmt.Sprintf("%d", c.ChunkIndex),
		"user_id":     doc.UserID,
	}
	if engine, ok := result.Metadata["processing_engine"].(string); ok {
		meta["processing_engine"] = engine
	}
	for k, v := range c.Metadata {
		meta[k] = fmt.Sprintf("%v", v)
	}
	return meta
}

// mergeMetadata overlays processor-returned document metadata onto the
// existing metadata map.
func mergeMetadata(existing db.JSONMap, updates map[string]any) db.JSONMap {
	merged := db.JSONMap{}
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}

// markError sets the document status to "error" with the failure
// reason and returns the original error.
func (s *KnowledgeService) markError(ctx context.Context, documentID string, cause error) error {
	if err := s.db.WithContext(ctx).Model(&db.Document{}).Where("id = ?", documentID).Updates(map[string]interface{}{
		"status":        db.DocumentStatusError,
		"error_message": cause.Error(),
		"updated_at":    time.Now(),
	}).Error; err != nil {
		s.logger.Error("Failed to mark document error", "id", documentID, "error", err)
	}
	return cause
}

// GetDocuments returns a page of the user's documents plus the total
// matching count, optionally filtered by status. Order is creation
// time ascending so pagination is stable.
func (s *KnowledgeService) GetDocuments(ctx context.Context, userID string, offset, limit int, status string) ([]db.Document, int64, error) {
	query := s.db.WithContext(ctx).Model(&db.Document{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var docs []db.Document
	if err := query.Order("created_at ASC").Offset(offset).Limit(limit).Find(&docs).Error; err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// GetDocument returns the document only when it belongs to userID.
// A document owned by someone else is indistinguishable from one that
// does not exist.
func (s *KnowledgeService) GetDocument(ctx context.Context, documentID, userID string) (*db.Document, error) {
	var doc db.Document
	if err := s.db.WithContext(ctx).First(&doc, "id = ? AND user_id = ?", documentID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument removes a document: vectors first, then the stored
// file (absence ignored), then the row and its chunks in one
// transaction. Returns false when the document is absent or not owned
// by userID; partial failures are surfaced as errors without
// compensation.
func (s *KnowledgeService) DeleteDocument(ctx context.Context, documentID, userID string) (bool, error) {
	doc, err := s.GetDocument(ctx, documentID, userID)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return false, nil
		}
		return false, err
	}

	if s.index != nil {
		if err := s.index.DeleteDocument(ctx, userID, documentID); err != nil {
			s.logger.Error("Failed to delete document vectors", "id", documentID, "error", err)
			return false, fmt.Errorf("failed to delete document vectors: %w", err)
		}
	}

	if err := os.Remove(doc.FilePath); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to delete document file", "path", doc.FilePath, "error", err)
		return false, fmt.Errorf("failed to delete document file: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", documentID).Delete(&db.DocumentChunk{}).Error; err != nil {
			return err
		}
		return tx.Delete(&db.Document{}, "id = ?", documentID).Error
	})
	if err != nil {
		s.logger.Error("Failed to delete document row", "id", documentID, "error", err)
		return false, fmt.Errorf("failed to delete document: %w", err)
	}

	s.logger.Debug("Document deleted", "id", documentID, "user", userID)

	return true, nil
}

// SearchDocuments embeds the query and returns ranked chunk results
// scoped to the user. A failed query embedding (or disabled semantic
// features) yields an empty list, not an error. Successful index
// queries are recorded as SearchQuery audit rows.
func (s *KnowledgeService) SearchDocuments(ctx context.Context, userID, queryText string, limit int, filters map[string]string) ([]vector.Result, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, ErrEmptyQuery
	}
	if s.embedder == nil || s.index == nil {
		return []vector.Result{}, nil
	}

	vec, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil || vec == nil {
		return []vector.Result{}, nil
	}

	results, err := s.index.SearchDocuments(ctx, userID, vec, limit, filters)
	if err != nil {
		return nil, fmt.Errorf("document search failed: %w", err)
	}

	s.recordQuery(ctx, userID, queryText, db.QueryTypeKnowledge, filters, len(results))

	return results, nil
}

// SearchConversations is the conversation-scoped variant of
// SearchDocuments, optionally narrowed to one conversation.
func (s *KnowledgeService) SearchConversations(ctx context.Context, userID, queryText, conversationID string, limit int) ([]vector.Result, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, ErrEmptyQuery
	}
	if s.embedder == nil || s.index == nil {
		return []vector.Result{}, nil
	}

	vec, err := s.embedder.EmbedQuery(ctx, queryText)
	if err != nil || vec == nil {
		return []vector.Result{}, nil
	}

	results, err := s.index.SearchConversations(ctx, userID, vec, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation search failed: %w", err)
	}

	var filters map[string]string
	if conversationID != "" {
		filters = map[string]string{"conversation_id": conversationID}
	}
	s.recordQuery(ctx, userID, queryText, db.QueryTypeConversation, filters, len(results))

	return results, nil
}

// recordQuery writes the immutable search audit row. Audit failures
// are logged, never surfaced to the caller.
func (s *KnowledgeService) recordQuery(ctx context.Context, userID, queryText, queryType string, filters map[string]string, resultCount int) {
	var fm db.JSONMap
	if len(filters) > 0 {
		fm = db.JSONMap{}
		for k, v := range filters {
			fm[k] = v
		}
	}

	q := &db.SearchQuery{
		ID:          uuid.New().String(),
		UserID:      userID,
		Query:       queryText,
		QueryType:   queryType,
		Filters:     fm,
		ResultCount: resultCount,
		CreatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(q).Error; err != nil {
		s.logger.Warn("Failed to record search query", "error", err)
	}
}
