package client

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chatforge/chatforge/pkg/db"
	"github.com/chatforge/chatforge/pkg/event"
	"github.com/chatforge/chatforge/pkg/utils"
	"github.com/google/uuid"
)

var ErrNoActiveConversation = errors.New("no active conversation")

// historyLimit is how many persisted messages are loaded on connect.
const historyLimit = 50

// tempIDPrefix marks optimistic local messages awaiting a server id.
const tempIDPrefix = "temp_"

// Listeners are the callbacks the UI hangs off the message service.
// Nil entries are skipped.
type Listeners struct {
	OnMessageReceived   func(db.Message)
	OnMessageSent       func(db.Message)
	OnTypingChanged     func(userID string, isTyping bool)
	OnConnectionChanged func(connected bool)
}

// MessageService holds the message buffer for one active conversation
// and mediates between the realtime transport and the REST fallback.
//
// The buffer is mutated both by user-initiated sends and by transport
// events, so every access goes through the mutex.
type MessageService struct {
	transport Transport
	api       API
	userID    string
	listeners Listeners
	logger    *slog.Logger

	mu             sync.Mutex
	conversationID string
	messages       []db.Message
}

// NewMessageService wires a message service to its transport and REST
// fallback. transport may be nil for a REST-only client.
func NewMessageService(transport Transport, api API, userID string, listeners Listeners) *MessageService {
	s := &MessageService{
		transport: transport,
		api:       api,
		userID:    userID,
		listeners: listeners,
		logger:    utils.GetLogger(),
	}
	if transport != nil {
		transport.OnFrame(s.handleFrame)
	}
	return s
}

// ConnectToConversation makes the conversation active, opens the
// realtime transport, then replaces the local buffer with the last
// persisted messages. Frames that arrive while history is loading are
// kept and end up after the loaded history.
func (s *MessageService) ConnectToConversation(ctx context.Context, conversationID string) error {
	s.mu.Lock()
	s.conversationID = conversationID
	s.messages = nil
	s.mu.Unlock()

	if s.transport != nil {
		if err := s.transport.Connect(ctx, conversationID); err != nil {
			// REST fallback still works; sends just skip the socket.
			s.logger.Warn("Realtime connect failed, continuing with REST only", "error", err)
		}
	}
	s.notifyConnection()

	history, err := s.api.Messages(ctx, conversationID, historyLimit)
	if err != nil {
		return err
	}

	s.mu.Lock()
	// Anything already in the buffer arrived over the socket during
	// the load; it is newer than the history, so it stays behind it.
	s.messages = append(history, s.messages...)
	s.mu.Unlock()

	return nil
}

// SendMessage appends the message optimistically and dispatches it
// over the socket when connected, falling back to REST otherwise.
// Empty content is a silent no-op; any dispatch failure removes the
// optimistic entry again.
func (s *MessageService) SendMessage(ctx context.Context, content, messageType string) (*db.Message, error) {
	s.mu.Lock()
	conversationID := s.conversationID
	s.mu.Unlock()

	if conversationID == "" {
		return nil, ErrNoActiveConversation
	}
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	if messageType == "" {
		messageType = db.MessageTypeText
	}

	temp := db.Message{
		ID:             tempIDPrefix + uuid.New().String(),
		ConversationID: conversationID,
		UserID:         s.userID,
		Role:           db.RoleUser,
		Content:        content,
		MessageType:    messageType,
		CreatedAt:      time.Now(),
	}

	s.mu.Lock()
	s.messages = append(s.messages, temp)
	s.mu.Unlock()

	if s.transport != nil && s.transport.Connected() {
		if err := s.transport.SendMessage(ctx, content, messageType); err != nil {
			s.removeMessage(temp.ID)
			return nil, err
		}
		s.notifySent(temp)
		return &temp, nil
	}

	msg, err := s.api.SendMessage(ctx, conversationID, content, messageType)
	if err != nil {
		s.removeMessage(temp.ID)
		return nil, err
	}

	s.mu.Lock()
	for i := range s.messages {
		if s.messages[i].ID == temp.ID {
			s.messages[i] = *msg
			break
		}
	}
	s.mu.Unlock()

	s.notifySent(*msg)
	return msg, nil
}

// DisconnectFromConversation leaves the conversation. The transport
// teardown is best-effort; the active conversation and buffer are
// always cleared.
func (s *MessageService) DisconnectFromConversation(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.conversationID = ""
		s.messages = nil
		s.mu.Unlock()
		s.notifyConnection()
	}()

	if s.transport == nil {
		return
	}
	if s.transport.Connected() {
		if err := s.transport.SendTyping(ctx, false); err != nil {
			s.logger.Debug("Failed to clear typing on disconnect", "error", err)
		}
	}
	if err := s.transport.Close(); err != nil {
		s.logger.Warn("Failed to close transport", "error", err)
	}
}

// StartTyping signals the typing indicator. A no-op unless a
// conversation is active and the transport is connected.
func (s *MessageService) StartTyping(ctx context.Context) {
	s.sendTyping(ctx, true)
}

// StopTyping clears the typing indicator.
func (s *MessageService) StopTyping(ctx context.Context) {
	s.sendTyping(ctx, false)
}

func (s *MessageService) sendTyping(ctx context.Context, isTyping bool) {
	s.mu.Lock()
	active := s.conversationID != ""
	s.mu.Unlock()

	if !active || s.transport == nil || !s.transport.Connected() {
		return
	}
	if err := s.transport.SendTyping(ctx, isTyping); err != nil {
		s.logger.Warn("Failed to send typing indicator", "error", err)
	}
}

// Messages returns a snapshot of the local buffer.
func (s *MessageService) Messages() []db.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]db.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// ActiveConversation returns the current conversation id, or "".
func (s *MessageService) ActiveConversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// Connected reports whether the realtime transport is up.
func (s *MessageService) Connected() bool {
	return s.transport != nil && s.transport.Connected()
}

func (s *MessageService) handleFrame(frame event.Frame) {
	switch frame.Type {
	case event.FrameMessage, event.FrameAIResponse:
		if frame.Message == nil {
			return
		}
		s.mu.Lock()
		s.messages = append(s.messages, *frame.Message)
		s.mu.Unlock()
		if s.listeners.OnMessageReceived != nil {
			s.listeners.OnMessageReceived(*frame.Message)
		}

	case event.FrameTyping:
		// The assistant's own typing signal is suppressed.
		if frame.UserID == db.RoleAssistant {
			return
		}
		if s.listeners.OnTypingChanged != nil {
			s.listeners.OnTypingChanged(frame.UserID, frame.IsTyping)
		}
	}
}

func (s *MessageService) removeMessage(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

func (s *MessageService) notifySent(msg db.Message) {
	if s.listeners.OnMessageSent != nil {
		s.listeners.OnMessageSent(msg)
	}
}

func (s *MessageService) notifyConnection() {
	if s.listeners.OnConnectionChanged != nil {
		s.listeners.OnConnectionChanged(s.Connected())
	}
}
