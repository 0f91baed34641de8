// Package vector provides the nearest-neighbor index over document
// chunk and message embeddings, backed by chromem-go.
package vector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/chatforge/chatforge/pkg/utils"
	chromem "github.com/philippgille/chromem-go"
	"github.com/pkg/errors"
)

// Result is one scored record from a similarity query.
type Result struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Index stores embeddings with metadata and answers nearest-neighbor
// queries scoped to one user. Vectors are always precomputed by the
// caller; the index never generates embeddings itself.
type Index interface {
	UpsertChunk(ctx context.Context, userID, chunkID, documentID, content string, vector []float32, metadata map[string]string) error
	DeleteDocument(ctx context.Context, userID, documentID string) error
	SearchDocuments(ctx context.Context, userID string, vector []float32, limit int, filters map[string]string) ([]Result, error)

	UpsertMessage(ctx context.Context, userID, messageID, conversationID, content string, vector []float32) error
	SearchConversations(ctx context.Context, userID string, vector []float32, conversationID string, limit int) ([]Result, error)
}

// ChromemIndex implements Index on a chromem-go database with one
// document collection and one conversation collection per user.
type ChromemIndex struct {
	db          *chromem.DB
	collections sync.Map // collection name -> *chromem.Collection
	logger      *slog.Logger
}

// NewPersistent opens (or creates) a persistent index under dir.
func NewPersistent(dir string) (*ChromemIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vector store directory: %w", err)
	}
	db, err := chromem.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	return &ChromemIndex{db: db, logger: utils.GetLogger()}, nil
}

// NewInMemory creates a non-persistent index, mainly for tests.
func NewInMemory() *ChromemIndex {
	return &ChromemIndex{db: chromem.NewDB(), logger: utils.GetLogger()}
}

// noEmbed satisfies chromem's embedding hook. All vectors are supplied
// by the caller, so it must never be reached.
func noEmbed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("vector index does not generate embeddings")
}

func (x *ChromemIndex) collection(name string) (*chromem.Collection, error) {
	if col, ok := x.collections.Load(name); ok {
		return col.(*chromem.Collection), nil
	}
	col, err := x.db.GetOrCreateCollection(name, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("get collection %s: %w", name, err)
	}
	x.collections.Store(name, col)
	return col, nil
}

func docsCollection(userID string) string { return "docs_" + userID }
func convCollection(userID string) string { return "conv_" + userID }

// UpsertChunk stores (or replaces) one chunk embedding with metadata.
func (x *ChromemIndex) UpsertChunk(ctx context.Context, userID, chunkID, documentID, content string, vector []float32, metadata map[string]string) error {
	col, err := x.collection(docsCollection(userID))
	if err != nil {
		return err
	}

	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["document_id"] = documentID

	if err := col.AddDocument(ctx, chromem.Document{
		ID:        chunkID,
		Content:   content,
		Embedding: vector,
		Metadata:  meta,
	}); err != nil {
		return fmt.Errorf("upsert chunk %s: %w", chunkID, err)
	}
	return nil
}

// DeleteDocument removes all chunk records belonging to documentID.
func (x *ChromemIndex) DeleteDocument(ctx context.Context, userID, documentID string) error {
	col, err := x.collection(docsCollection(userID))
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
		return fmt.Errorf("delete document %s vectors: %w", documentID, err)
	}
	return nil
}

// SearchDocuments returns up to limit ranked chunk records for the
// user, optionally narrowed by exact-match metadata filters.
func (x *ChromemIndex) SearchDocuments(ctx context.Context, userID string, vector []float32, limit int, filters map[string]string) ([]Result, error) {
	col, err := x.collection(docsCollection(userID))
	if err != nil {
		return nil, err
	}
	return x.query(ctx, col, vector, limit, filters)
}

// UpsertMessage stores one conversation message embedding.
func (x *ChromemIndex) UpsertMessage(ctx context.Context, userID, messageID, conversationID, content string, vector []float32) error {
	col, err := x.collection(convCollection(userID))
	if err != nil {
		return err
	}
	if err := col.AddDocument(ctx, chromem.Document{
		ID:        messageID,
		Content:   content,
		Embedding: vector,
		Metadata:  map[string]string{"conversation_id": conversationID},
	}); err != nil {
		return fmt.Errorf("upsert message %s: %w", messageID, err)
	}
	return nil
}

// SearchConversations returns ranked message records, optionally
// scoped to one conversation.
func (x *ChromemIndex) SearchConversations(ctx context.Context, userID string, vector []float32, conversationID string, limit int) ([]Result, error) {
	col, err := x.collection(convCollection(userID))
	if err != nil {
		return nil, err
	}
	var where map[string]string
	if conversationID != "" {
		where = map[string]string{"conversation_id": conversationID}
	}
	return x.query(ctx, col, vector, limit, where)
}

func (x *ChromemIndex) query(ctx context.Context, col *chromem.Collection, vector []float32, limit int, where map[string]string) ([]Result, error) {
	// chromem rejects nResults larger than the collection size.
	count := col.Count()
	if count == 0 {
		return []Result{}, nil
	}
	if limit <= 0 || limit > count {
		limit = count
	}

	found, err := col.QueryEmbedding(ctx, vector, limit, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	results := make([]Result, len(found))
	for i, r := range found {
		results[i] = Result{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: r.Metadata,
		}
	}
	return results, nil
}
