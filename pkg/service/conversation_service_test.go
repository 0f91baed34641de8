package service

import (
	"context"
	"errors"
	"testing"

	"github.com/chatforge/chatforge/pkg/db"
)

func newConversationService(t *testing.T) *ConversationService {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	return NewConversationService(database, nil, nil)
}

func TestCreateAndGetConversation(t *testing.T) {
	svc := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "u1", "asst-1", "My Chat")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := svc.Get(ctx, conv.ID, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "My Chat" || got.AssistantID != "asst-1" {
		t.Fatalf("got = %+v", got)
	}
	if got.Archived {
		t.Fatalf("new conversation should not be archived")
	}
}

func TestCreateConversation_DefaultTitle(t *testing.T) {
	svc := newConversationService(t)

	conv, err := svc.Create(context.Background(), "u1", "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if conv.Title != "New Chat" {
		t.Fatalf("title = %q, want %q", conv.Title, "New Chat")
	}
}

func TestConversation_OwnershipConflatedWithExistence(t *testing.T) {
	svc := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "u1", "", "Private")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.Get(ctx, conv.ID, "u2"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Get() error = %v, want ErrConversationNotFound", err)
	}
	if err := svc.Delete(ctx, conv.ID, "u2"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Delete() error = %v, want ErrConversationNotFound", err)
	}
	if err := svc.Archive(ctx, conv.ID, "u2"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Archive() error = %v, want ErrConversationNotFound", err)
	}
	if _, err := svc.Get(ctx, "missing", "u1"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrConversationNotFound", err)
	}
}

func TestListConversations_OwnedOnly(t *testing.T) {
	svc := newConversationService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "u1", "", "First"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Create(ctx, "u1", "", "Second"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.Create(ctx, "u2", "", "Other"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	conversations, err := svc.List(ctx, "u1")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(conversations) != 2 {
		t.Fatalf("len(conversations) = %d, want 2", len(conversations))
	}
	for _, c := range conversations {
		if c.UserID != "u1" {
			t.Fatalf("listed conversation owned by %q", c.UserID)
		}
	}
}

func TestDeleteConversation_RemovesMessages(t *testing.T) {
	svc := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "u1", "", "Chat")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.AddMessage(ctx, conv.ID, "u1", db.RoleUser, "hello", "", nil); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}

	if err := svc.Delete(ctx, conv.ID, "u1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	var count int64
	svc.db.Model(&db.Message{}).Where("conversation_id = ?", conv.ID).Count(&count)
	if count != 0 {
		t.Fatalf("messages remaining = %d, want 0", count)
	}
}

func TestArchiveConversation(t *testing.T) {
	svc := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "u1", "", "Chat")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := svc.Archive(ctx, conv.ID, "u1"); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	got, err := svc.Get(ctx, conv.ID, "u1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !got.Archived {
		t.Fatalf("conversation not archived")
	}
}

func TestMessages_CreationOrder(t *testing.T) {
	svc := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "u1", "", "Chat")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	contents := []string{"one", "two", "three"}
	for _, c := range contents {
		if _, err := svc.AddMessage(ctx, conv.ID, "u1", db.RoleUser, c, "", nil); err != nil {
			t.Fatalf("AddMessage(%q) error = %v", c, err)
		}
	}

	messages, err := svc.Messages(ctx, conv.ID, "u1")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(messages))
	}
	for i, m := range messages {
		if m.Content != contents[i] {
			t.Fatalf("message %d = %q, want %q", i, m.Content, contents[i])
		}
	}
}

func TestAddMessage_Validation(t *testing.T) {
	svc := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "u1", "", "Chat")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.AddMessage(ctx, conv.ID, "u1", db.RoleUser, "", "", nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("error = %v, want ErrEmptyMessage", err)
	}
	if _, err := svc.AddMessage(ctx, "missing", "u1", db.RoleUser, "hi", "", nil); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("error = %v, want ErrConversationNotFound", err)
	}
}

func TestAddMessage_Defaults(t *testing.T) {
	svc := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "u1", "", "Chat")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	msg, err := svc.AddMessage(ctx, conv.ID, "u1", "", "hello", "", nil)
	if err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	if msg.Role != db.RoleUser {
		t.Fatalf("role = %q, want %q", msg.Role, db.RoleUser)
	}
	if msg.MessageType != db.MessageTypeText {
		t.Fatalf("message type = %q, want %q", msg.MessageType, db.MessageTypeText)
	}
}

func TestAddMessage_IndexesUnderOwner(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	index := &fakeIndex{}
	svc := NewConversationService(database, &fakeEmbedder{queryVec: []float32{1, 0}}, index)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "u1", "", "Chat")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	msg, err := svc.AddMessage(ctx, conv.ID, "assistant", db.RoleAssistant, "answer", "", nil)
	if err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	if len(index.msgUpserts) != 1 || index.msgUpserts[0] != msg.ID {
		t.Fatalf("message upserts = %v, want [%s]", index.msgUpserts, msg.ID)
	}
}

func TestAddMessage_SkipsIndexOnNilEmbedding(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	index := &fakeIndex{}
	svc := NewConversationService(database, &fakeEmbedder{queryVec: nil}, index)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "u1", "", "Chat")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := svc.AddMessage(ctx, conv.ID, "u1", db.RoleUser, "hello", "", nil); err != nil {
		t.Fatalf("AddMessage() error = %v", err)
	}
	if len(index.msgUpserts) != 0 {
		t.Fatalf("message upserts = %v, want none", index.msgUpserts)
	}
}

func TestUpdateConversationTitle(t *testing.T) {
	svc := newConversationService(t)
	ctx := context.Background()

	conv, err := svc.Create(ctx, "u1", "", "Old")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := svc.UpdateTitle(ctx, conv.ID, "u1", "New")
	if err != nil {
		t.Fatalf("UpdateTitle() error = %v", err)
	}
	if got.Title != "New" {
		t.Fatalf("title = %q, want %q", got.Title, "New")
	}

	if _, err := svc.UpdateTitle(ctx, conv.ID, "u2", "Stolen"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("error = %v, want ErrConversationNotFound", err)
	}
}
