package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Abraxas-365/pathway/chathistory"
	"github.com/Abraxas-365/pathway/llm"
)

// InMemoryRepository implements ChatHistoryRepository using in-memory storage
type InMemoryRepository struct {
	conversations map[string]chathistory.Conversation
	mu            sync.RWMutex
}

var _ chathistory.ChatHistoryRepository = (*InMemoryRepository)(nil)

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		conversations: make(map[string]chathistory.Conversation),
	}
}

func notFound(conversationID string) error {
	return fmt.Errorf("%w: %s", chathistory.ErrConversationNotFound, conversationID)
}

func (r *InMemoryRepository) AddMessage(ctx context.Context, conversationID string, message llm.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, exists := r.conversations[conversationID]
	if !exists {
		return notFound(conversationID)
	}

	conv.Messages = append(slices.Clip(conv.Messages), message)
	conv.UpdatedAt = time.Now()
	r.conversations[conversationID] = conv

	return nil
}

func (r *InMemoryRepository) GetMessages(ctx context.Context, conversationID string, limit int) ([]llm.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, exists := r.conversations[conversationID]
	if !exists {
		return nil, notFound(conversationID)
	}

	return tail(conv.Messages, limit), nil
}

func (r *InMemoryRepository) GetMessagesByFilter(ctx context.Context, conversationID string, filter chathistory.Filter, limit int) ([]llm.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, exists := r.conversations[conversationID]
	if !exists {
		return nil, notFound(conversationID)
	}

	var filtered []llm.Message
	for _, msg := range conv.Messages {
		if messageMatchesFilter(msg, filter) {
			filtered = append(filtered, msg)
		}
	}

	return tail(filtered, limit), nil
}

func (r *InMemoryRepository) DeleteMessages(ctx context.Context, conversationID string, filter chathistory.Filter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, exists := r.conversations[conversationID]
	if !exists {
		return notFound(conversationID)
	}

	var remaining []llm.Message
	for _, msg := range conv.Messages {
		if !messageMatchesFilter(msg, filter) {
			remaining = append(remaining, msg)
		}
	}

	conv.Messages = remaining
	conv.UpdatedAt = time.Now()
	r.conversations[conversationID] = conv

	return nil
}

func (r *InMemoryRepository) ClearHistory(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, exists := r.conversations[conversationID]
	if !exists {
		return notFound(conversationID)
	}

	conv.Messages = nil
	conv.UpdatedAt = time.Now()
	r.conversations[conversationID] = conv

	return nil
}

func (r *InMemoryRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conversations[conversationID]; !exists {
		return notFound(conversationID)
	}

	delete(r.conversations, conversationID)
	return nil
}

func (r *InMemoryRepository) CreateConversation(ctx context.Context, conv chathistory.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conversations[conv.ID]; exists {
		return fmt.Errorf("conversation already exists: %s", conv.ID)
	}

	r.conversations[conv.ID] = conv
	return nil
}

func (r *InMemoryRepository) GetConversation(ctx context.Context, conversationID string) (*chathistory.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, exists := r.conversations[conversationID]
	if !exists {
		return nil, notFound(conversationID)
	}

	conv.Messages = nil
	return &conv, nil
}

func (r *InMemoryRepository) ListConversations(ctx context.Context, filter chathistory.Filter, limit, offset int) ([]chathistory.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conversations []chathistory.Conversation
	for _, conv := range r.conversations {
		if conversationMatchesFilter(conv, filter) {
			conv.Messages = nil
			conversations = append(conversations, conv)
		}
	}

	// Sort by UpdatedAt descending
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})

	if offset >= len(conversations) {
		return []chathistory.Conversation{}, nil
	}

	end := len(conversations)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return conversations[offset:end], nil
}

func (r *InMemoryRepository) UpdateConversationMetadata(ctx context.Context, conversationID string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, exists := r.conversations[conversationID]
	if !exists {
		return notFound(conversationID)
	}

	conv.Metadata = metadata
	conv.UpdatedAt = time.Now()
	r.conversations[conversationID] = conv

	return nil
}

func (r *InMemoryRepository) GetMessageCount(ctx context.Context, conversationID string, filter chathistory.Filter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, exists := r.conversations[conversationID]
	if !exists {
		return 0, notFound(conversationID)
	}

	if filter.IsEmpty() {
		return len(conv.Messages), nil
	}

	count := 0
	for _, msg := range conv.Messages {
		if messageMatchesFilter(msg, filter) {
			count++
		}
	}

	return count, nil
}

// tail returns a copy of the last limit messages; limit <= 0 means all.
func tail(msgs []llm.Message, limit int) []llm.Message {
	start := 0
	if limit > 0 && limit < len(msgs) {
		start = len(msgs) - limit
	}
	return slices.Clone(msgs[start:])
}

func messageMatchesFilter(msg llm.Message, filter chathistory.Filter) bool {
	if timestamp, ok := msg.Metadata["timestamp"].(time.Time); ok {
		if filter.StartTime != nil && timestamp.Before(*filter.StartTime) {
			return false
		}
		if filter.EndTime != nil && timestamp.After(*filter.EndTime) {
			return false
		}
	}

	if len(filter.Roles) > 0 && !slices.Contains(filter.Roles, msg.Role) {
		return false
	}

	if filter.Search != "" {
		if !strings.Contains(strings.ToLower(msg.Content), strings.ToLower(filter.Search)) {
			return false
		}
	}

	return true
}

func conversationMatchesFilter(conv chathistory.Conversation, filter chathistory.Filter) bool {
	if filter.UserID != "" && conv.UserID != filter.UserID {
		return false
	}

	if filter.StartTime != nil && conv.CreatedAt.Before(*filter.StartTime) {
		return false
	}

	if filter.EndTime != nil && conv.CreatedAt.After(*filter.EndTime) {
		return false
	}

	for k, v := range filter.Metadata {
		if convValue, exists := conv.Metadata[k]; !exists || convValue != v {
			return false
		}
	}

	return true
}
