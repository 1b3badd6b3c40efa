// Package chat is the conversation/message store consumed by the gateway.
// The gateway treats it as an external collaborator behind a narrow
// interface; this in-memory implementation is the development default.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumachat/luma-gateway/internal/model/chat"
)

var ErrConversationRequired = errors.New("conversation id is required")

// Service holds conversation transcripts in memory.
type Service struct {
	mu       sync.RWMutex
	messages map[string][]chat.Message
}

// NewService bootstraps the in-memory store.
func NewService() *Service {
	return &Service{messages: make(map[string][]chat.Message)}
}

// AppendMessage appends a message to the conversation history, assigning id
// and timestamp. Conversations are created implicitly on first append.
func (s *Service) AppendMessage(_ context.Context, message chat.Message) (chat.Message, error) {
	if message.ConversationID == "" {
		return chat.Message{}, ErrConversationRequired
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	s.messages[message.ConversationID] = append(s.messages[message.ConversationID], message)
	s.mu.Unlock()

	return message, nil
}

// LoadHistory returns the ordered messages for a conversation. Unknown
// conversations yield an empty history rather than an error.
func (s *Service) LoadHistory(_ context.Context, conversationID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.messages[conversationID]
	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}
