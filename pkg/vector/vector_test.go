package vector

import (
	"context"
	"testing"
)

func TestUpsertAndSearchDocuments(t *testing.T) {
	x := NewInMemory()
	ctx := context.Background()

	if err := x.UpsertChunk(ctx, "u1", "c1", "d1", "alpha", []float32{1, 0, 0}, map[string]string{"title": "Doc"}); err != nil {
		t.Fatalf("UpsertChunk() error = %v", err)
	}
	if err := x.UpsertChunk(ctx, "u1", "c2", "d1", "beta", []float32{0, 1, 0}, nil); err != nil {
		t.Fatalf("UpsertChunk() error = %v", err)
	}

	results, err := x.SearchDocuments(ctx, "u1", []float32{1, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results[0].ID != "c1" {
		t.Fatalf("top result = %s, want c1", results[0].ID)
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("results not ranked by score: %v then %v", results[0].Score, results[1].Score)
	}
	if got := results[0].Metadata["title"]; got != "Doc" {
		t.Fatalf("metadata title = %q, want Doc", got)
	}
}

func TestSearchDocuments_ScopedPerUser(t *testing.T) {
	x := NewInMemory()
	ctx := context.Background()

	if err := x.UpsertChunk(ctx, "u1", "c1", "d1", "mine", []float32{1, 0}, nil); err != nil {
		t.Fatalf("UpsertChunk() error = %v", err)
	}

	results, err := x.SearchDocuments(ctx, "u2", []float32{1, 0}, 5, nil)
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0 for other user", len(results))
	}
}

func TestDeleteDocument_RemovesOnlyThatDocument(t *testing.T) {
	x := NewInMemory()
	ctx := context.Background()

	if err := x.UpsertChunk(ctx, "u1", "c1", "d1", "one", []float32{1, 0}, nil); err != nil {
		t.Fatalf("UpsertChunk() error = %v", err)
	}
	if err := x.UpsertChunk(ctx, "u1", "c2", "d2", "two", []float32{0, 1}, nil); err != nil {
		t.Fatalf("UpsertChunk() error = %v", err)
	}

	if err := x.DeleteDocument(ctx, "u1", "d1"); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}

	results, err := x.SearchDocuments(ctx, "u1", []float32{1, 0}, 5, nil)
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != "c2" {
		t.Fatalf("results = %+v, want only c2", results)
	}
}

func TestSearchConversations_ConversationScope(t *testing.T) {
	x := NewInMemory()
	ctx := context.Background()

	if err := x.UpsertMessage(ctx, "u1", "m1", "conv-a", "hello there", []float32{1, 0}); err != nil {
		t.Fatalf("UpsertMessage() error = %v", err)
	}
	if err := x.UpsertMessage(ctx, "u1", "m2", "conv-b", "general kenobi", []float32{1, 0}); err != nil {
		t.Fatalf("UpsertMessage() error = %v", err)
	}

	results, err := x.SearchConversations(ctx, "u1", []float32{1, 0}, "conv-a", 5)
	if err != nil {
		t.Fatalf("SearchConversations() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != "m1" {
		t.Fatalf("results = %+v, want only m1", results)
	}

	all, err := x.SearchConversations(ctx, "u1", []float32{1, 0}, "", 5)
	if err != nil {
		t.Fatalf("SearchConversations() error = %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len(all) = %d, want 2", len(all))
	}
}

func TestSearchDocuments_EmptyCollection(t *testing.T) {
	x := NewInMemory()

	results, err := x.SearchDocuments(context.Background(), "nobody", []float32{1}, 10, nil)
	if err != nil {
		t.Fatalf("SearchDocuments() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0", len(results))
	}
}
