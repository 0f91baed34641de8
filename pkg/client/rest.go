package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/chatforge/chatforge/pkg/db"
)

// API is the REST surface the message service depends on.
type API interface {
	Messages(ctx context.Context, conversationID string, limit int) ([]db.Message, error)
	SendMessage(ctx context.Context, conversationID, content, messageType string) (*db.Message, error)
}

// RestClient talks to the backend's conversation endpoints.
type RestClient struct {
	baseURL string
	userID  string
	http    *http.Client
}

// NewRestClient creates a client for the API under baseURL (e.g.
// "http://127.0.0.1:8090/api/v1").
func NewRestClient(baseURL, userID string) *RestClient {
	return &RestClient{
		baseURL: baseURL,
		userID:  userID,
		http:    &http.Client{},
	}
}

// Messages returns up to limit most recent messages of a conversation,
// oldest first.
func (r *RestClient) Messages(ctx context.Context, conversationID string, limit int) ([]db.Message, error) {
	url := fmt.Sprintf("%s/conversations/%s/messages", r.baseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-User-ID", r.userID)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch messages: unexpected status %s", resp.Status)
	}

	var body struct {
		Messages []db.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	if limit > 0 && len(body.Messages) > limit {
		body.Messages = body.Messages[len(body.Messages)-limit:]
	}
	return body.Messages, nil
}

// SendMessage posts a message and returns the persisted record with
// its server-assigned id and timestamp.
func (r *RestClient) SendMessage(ctx context.Context, conversationID, content, messageType string) (*db.Message, error) {
	payload, err := json.Marshal(map[string]string{
		"content":      content,
		"message_type": messageType,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/conversations/%s/messages", r.baseURL, conversationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", r.userID)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("send message: unexpected status %s", resp.Status)
	}

	var msg db.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return &msg, nil
}
