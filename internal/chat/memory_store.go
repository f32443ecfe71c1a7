package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory MessageStore for the pilot deployment.
// State is ephemeral; rebuilding on restart is acceptable.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string][]Message // sessionID -> ordered messages
}

// NewMemoryStore creates an empty in-memory message store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{messages: make(map[string][]Message)}
}

// Save appends a message to its session and returns the new message id.
func (s *MemoryStore) Save(ctx context.Context, sessionID, role, content string, metadata map[string]interface{}) (string, error) {
	msg := Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	s.messages[sessionID] = append(s.messages[sessionID], msg)
	s.mu.Unlock()

	return msg.ID, nil
}

// RecentMessages returns up to limit most recent messages of a session,
// oldest first.
func (s *MemoryStore) RecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[sessionID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]Message, limit)
	copy(out, all[len(all)-limit:])
	return out, nil
}

// SessionCount returns the number of sessions with stored messages.
func (s *MemoryStore) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}
