// Database models for the knowledge base
package db

import "time"

// Document status lifecycle: uploaded -> processing -> processed | error
const (
	DocumentStatusUploaded   = "uploaded"
	DocumentStatusProcessing = "processing"
	DocumentStatusProcessed  = "processed"
	DocumentStatusError      = "error"
)

// Document represents an uploaded knowledge base document owned by a user.
// Its chunks are deleted together with the document.
type Document struct {
	ID          string `json:"id" gorm:"primaryKey;size:36"`
	UserID      string `json:"user_id" gorm:"index;size:36;not null"`
	Title       string `json:"title" gorm:"size:200;not null"`
	Description string `json:"description,omitempty" gorm:"type:text"`

	FileName string `json:"file_name" gorm:"size:255;not null"`
	FilePath string `json:"file_path" gorm:"size:500;not null"`
	FileType string `json:"file_type,omitempty" gorm:"size:20"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type,omitempty" gorm:"size:100"`

	Tags     StringArray `json:"tags,omitempty" gorm:"type:json"`
	Metadata JSONMap     `json:"metadata,omitempty" gorm:"type:json"`

	Status       string `json:"status" gorm:"index;size:20;default:'uploaded'"`
	ErrorMessage string `json:"error_message,omitempty" gorm:"type:text"`
	ChunkCount   int    `json:"chunk_count"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}

// DocumentChunk is one bounded span of a document's extracted text, the unit
// indexed for semantic search. ChunkIndex is dense and zero-based within a
// document, matching processing order.
type DocumentChunk struct {
	ID         string `json:"id" gorm:"primaryKey;size:36"`
	DocumentID string `json:"document_id" gorm:"index:idx_chunk_document_index,unique;size:36;not null"`
	ChunkIndex int    `json:"chunk_index" gorm:"index:idx_chunk_document_index,unique;not null"`

	Content    string `json:"content" gorm:"type:text;not null"`
	TokenCount int    `json:"token_count"`
	StartWord  int    `json:"start_word"`
	EndWord    int    `json:"end_word"`

	Embedding          Vector     `json:"-" gorm:"type:json"`
	EmbeddingModel     string     `json:"embedding_model,omitempty" gorm:"size:100"`
	EmbeddingCreatedAt *time.Time `json:"embedding_created_at,omitempty"`

	Metadata JSONMap `json:"metadata,omitempty" gorm:"type:json"`

	CreatedAt time.Time `json:"created_at"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// Search query types
const (
	QueryTypeKnowledge    = "knowledge"
	QueryTypeConversation = "conversation"
)

// SearchQuery is an immutable audit record of a semantic search.
// Rows are never updated after creation.
type SearchQuery struct {
	ID          string  `json:"id" gorm:"primaryKey;size:36"`
	UserID      string  `json:"user_id" gorm:"index;size:36;not null"`
	Query       string  `json:"query" gorm:"type:text;not null"`
	QueryType   string  `json:"query_type" gorm:"size:20;not null"`
	Filters     JSONMap `json:"filters,omitempty" gorm:"type:json"`
	ResultCount int     `json:"result_count"`

	CreatedAt time.Time `json:"created_at"`
}

func (SearchQuery) TableName() string {
	return "search_queries"
}
