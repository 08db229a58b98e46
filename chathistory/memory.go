package chathistory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Abraxas-365/pathway/llm"
)

// MetadataSystemPrompt is the conversation metadata key holding a
// conversation-specific system prompt.
const MetadataSystemPrompt = "system_prompt"

// Memory scopes a ChatHistoryRepository to the user that owns each conversation.
type Memory struct {
	repo ChatHistoryRepository
	opts *Options
}

func New(repo ChatHistoryRepository, opts ...Option) *Memory {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	return &Memory{
		repo: repo,
		opts: options,
	}
}

// CreateConversation creates a new conversation for userID
func (m *Memory) CreateConversation(ctx context.Context, userID string, metadata map[string]any) (*Conversation, error) {
	return m.CreateConversationWithID(ctx, userID, metadata, m.opts.GenerateID())
}

func (m *Memory) CreateConversationWithID(ctx context.Context, userID string, metadata map[string]any, id string) (*Conversation, error) {
	if userID == "" {
		return nil, fmt.Errorf("create conversation: user id is required")
	}
	now := time.Now()
	conv := Conversation{
		ID:        id,
		UserID:    userID,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetConversation retrieves a conversation owned by userID
func (m *Memory) GetConversation(ctx context.Context, userID, conversationID string) (*Conversation, error) {
	conv, err := m.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil || conv.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	return conv, nil
}

// AddMessage adds a message to a conversation owned by userID. A timestamp is
// recorded in the message metadata when absent.
func (m *Memory) AddMessage(ctx context.Context, userID, conversationID string, msg llm.Message) error {
	if _, err := m.GetConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	if msg.Metadata == nil {
		msg.Metadata = make(map[string]any)
	}
	if _, ok := msg.Metadata["timestamp"]; !ok {
		msg.Metadata["timestamp"] = time.Now()
	}
	return m.repo.AddMessage(ctx, conversationID, msg)
}

// GetMessages retrieves the latest messages of a conversation
func (m *Memory) GetMessages(ctx context.Context, userID, conversationID string, limit int) ([]llm.Message, error) {
	if _, err := m.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return m.repo.GetMessages(ctx, conversationID, m.limit(limit))
}

// Context returns the messages to send to a model for the next turn: the
// conversation's system prompt (or the configured one) followed by the
// latest history, filtered by the include and exclude roles.
func (m *Memory) Context(ctx context.Context, userID, conversationID string) ([]llm.Message, error) {
	conv, err := m.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}
	history, err := m.repo.GetMessages(ctx, conversationID, m.limit(0))
	if err != nil {
		return nil, err
	}

	var out []llm.Message
	prompt := m.opts.SystemPrompt
	if p, ok := conv.Metadata[MetadataSystemPrompt].(string); ok && p != "" {
		prompt = p
	}
	if prompt != "" {
		out = append(out, llm.System(prompt))
	}
	for _, msg := range history {
		if len(m.opts.IncludeRoles) > 0 && !slices.Contains(m.opts.IncludeRoles, msg.Role) {
			continue
		}
		if slices.Contains(m.opts.ExcludeRoles, msg.Role) {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// ListConversations retrieves the conversations of userID
func (m *Memory) ListConversations(ctx context.Context, userID string, filter Filter, limit, offset int) ([]Conversation, error) {
	filter.UserID = userID
	return m.repo.ListConversations(ctx, filter, m.limit(limit), offset)
}

// DeleteConversation deletes an entire conversation
func (m *Memory) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if _, err := m.GetConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	return m.repo.DeleteConversation(ctx, conversationID)
}

// UpdateConversationMetadata updates conversation metadata
func (m *Memory) UpdateConversationMetadata(ctx context.Context, userID, conversationID string, metadata map[string]any) error {
	if _, err := m.GetConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	return m.repo.UpdateConversationMetadata(ctx, conversationID, metadata)
}

// GetMessagesByFilter retrieves messages using filter from a specific conversation
func (m *Memory) GetMessagesByFilter(ctx context.Context, userID, conversationID string, filter Filter) ([]llm.Message, error) {
	if _, err := m.GetConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return m.repo.GetMessagesByFilter(ctx, conversationID, filter, m.opts.ReturnLimit)
}

// ClearHistory clears all messages from a specific conversation
func (m *Memory) ClearHistory(ctx context.Context, userID, conversationID string) error {
	if _, err := m.GetConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	return m.repo.ClearHistory(ctx, conversationID)
}

func (m *Memory) GetMessageCount(ctx context.Context, userID, conversationID string, filter Filter) (int, error) {
	if _, err := m.GetConversation(ctx, userID, conversationID); err != nil {
		return 0, err
	}
	return m.repo.GetMessageCount(ctx, conversationID, filter)
}

func (m *Memory) GetID() string {
	return m.opts.GenerateID()
}

func (m *Memory) limit(limit int) int {
	if limit <= 0 {
		limit = m.opts.ReturnLimit
	}
	if m.opts.MaxMessages > 0 && limit > m.opts.MaxMessages {
		limit = m.opts.MaxMessages
	}
	return limit
}
