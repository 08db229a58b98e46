// Package postgres stores chat history and the exploration library in
// PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Abraxas-365/pathway/chathistory"
	"github.com/Abraxas-365/pathway/llm"
)

// foreign_key_violation
const pqForeignKeyViolation = "23503"

// ChatHistoryRepository implements chathistory.ChatHistoryRepository over
// database/sql with the lib/pq driver.
type ChatHistoryRepository struct {
	db *sql.DB
}

var _ chathistory.ChatHistoryRepository = (*ChatHistoryRepository)(nil)

func NewChatHistoryRepository(db *sql.DB) (*ChatHistoryRepository, error) {
	if db == nil {
		return nil, errors.New("database connection is required")
	}
	return &ChatHistoryRepository{db: db}, nil
}

// Required database schema
const chatSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    metadata JSONB,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
    id BIGSERIAL PRIMARY KEY,
    conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    metadata JSONB
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_role ON messages(role);
CREATE INDEX IF NOT EXISTS idx_messages_created_at ON messages(created_at);
CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id, created_at DESC);
`

func (r *ChatHistoryRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, chatSchema)
	return err
}

func (r *ChatHistoryRepository) CreateConversation(ctx context.Context, conv chathistory.Conversation) error {
	metadata, err := json.Marshal(conv.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO conversations (id, user_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.db.ExecContext(ctx, query, conv.ID, conv.UserID, string(metadata), conv.CreatedAt, conv.UpdatedAt)
	return err
}

func (r *ChatHistoryRepository) AddMessage(ctx context.Context, conversationID string, message llm.Message) error {
	metadata, err := json.Marshal(message.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO messages (conversation_id, role, content, name, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.ExecContext(ctx, query,
		conversationID,
		message.Role,
		message.Content,
		message.Name,
		time.Now(),
		string(metadata),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return notFound(conversationID)
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}

	// Update conversation updated_at timestamp
	updateQuery := `UPDATE conversations SET updated_at = NOW() WHERE id = $1`
	_, err = r.db.ExecContext(ctx, updateQuery, conversationID)
	return err
}

func (r *ChatHistoryRepository) GetMessages(ctx context.Context, conversationID string, limit int) ([]llm.Message, error) {
	return r.GetMessagesByFilter(ctx, conversationID, chathistory.Filter{}, limit)
}

// GetMessagesByFilter returns the latest matching messages in chronological
// order. limit <= 0 returns all of them.
func (r *ChatHistoryRepository) GetMessagesByFilter(ctx context.Context, conversationID string, filter chathistory.Filter, limit int) ([]llm.Message, error) {
	w := messageWhere(conversationID, filter)
	query := fmt.Sprintf(`
		SELECT role, content, name, metadata
		FROM messages
		WHERE %s
		ORDER BY created_at DESC, id DESC
	`, w.clause())
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %s", w.add(limit))
	}

	rows, err := r.db.QueryContext(ctx, query, w.params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []llm.Message
	for rows.Next() {
		var msg llm.Message
		var metadataJSON []byte
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.Name, &metadataJSON); err != nil {
			return nil, err
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &msg.Metadata); err != nil {
				return nil, err
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse the order to get chronological order
	for i := 0; i < len(messages)/2; i++ {
		j := len(messages) - i - 1
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (r *ChatHistoryRepository) DeleteMessages(ctx context.Context, conversationID string, filter chathistory.Filter) error {
	w := messageWhere(conversationID, filter)
	query := fmt.Sprintf(`DELETE FROM messages WHERE %s`, w.clause())
	_, err := r.db.ExecContext(ctx, query, w.params...)
	return err
}

func (r *ChatHistoryRepository) ClearHistory(ctx context.Context, conversationID string) error {
	query := `DELETE FROM messages WHERE conversation_id = $1`
	_, err := r.db.ExecContext(ctx, query, conversationID)
	return err
}

func (r *ChatHistoryRepository) DeleteConversation(ctx context.Context, conversationID string) error {
	query := `DELETE FROM conversations WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, conversationID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(conversationID)
	}
	return nil
}

func (r *ChatHistoryRepository) GetConversation(ctx context.Context, conversationID string) (*chathistory.Conversation, error) {
	query := `
		SELECT id, user_id, metadata, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`
	conv, err := scanConversation(r.db.QueryRowContext(ctx, query, conversationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(conversationID)
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *ChatHistoryRepository) ListConversations(ctx context.Context, filter chathistory.Filter, limit, offset int) ([]chathistory.Conversation, error) {
	w := &where{conditions: []string{"1=1"}}
	if filter.UserID != "" {
		w.conditions = append(w.conditions, "user_id = "+w.add(filter.UserID))
	}
	if filter.StartTime != nil {
		w.conditions = append(w.conditions, "created_at >= "+w.add(*filter.StartTime))
	}
	if filter.EndTime != nil {
		w.conditions = append(w.conditions, "created_at <= "+w.add(*filter.EndTime))
	}
	if len(filter.Metadata) > 0 {
		metadata, err := json.Marshal(filter.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata filter: %w", err)
		}
		w.conditions = append(w.conditions, "metadata @> "+w.add(string(metadata))+"::jsonb")
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, metadata, created_at, updated_at
		FROM conversations
		WHERE %s
		ORDER BY created_at DESC
	`, w.clause())
	if limit > 0 {
		query += " LIMIT " + w.add(limit)
	}
	if offset > 0 {
		query += " OFFSET " + w.add(offset)
	}

	rows, err := r.db.QueryContext(ctx, query, w.params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []chathistory.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *conv)
	}
	return conversations, rows.Err()
}

func (r *ChatHistoryRepository) UpdateConversationMetadata(ctx context.Context, conversationID string, metadata map[string]any) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE conversations
		SET metadata = $1, updated_at = NOW()
		WHERE id = $2
	`
	res, err := r.db.ExecContext(ctx, query, string(metadataJSON), conversationID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(conversationID)
	}
	return nil
}

func (r *ChatHistoryRepository) GetMessageCount(ctx context.Context, conversationID string, filter chathistory.Filter) (int, error) {
	w := messageWhere(conversationID, filter)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM messages WHERE %s`, w.clause())

	var count int
	err := r.db.QueryRowContext(ctx, query, w.params...).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*chathistory.Conversation, error) {
	var conv chathistory.Conversation
	var metadataJSON []byte
	if err := row.Scan(&conv.ID, &conv.UserID, &metadataJSON, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &conv.Metadata); err != nil {
			return nil, err
		}
	}
	return &conv, nil
}

func notFound(conversationID string) error {
	return fmt.Errorf("%w: %s", chathistory.ErrConversationNotFound, conversationID)
}

// where accumulates SQL conditions with numbered placeholders.
type where struct {
	conditions []string
	params     []any
}

// add appends a parameter and returns its placeholder.
func (w *where) add(v any) string {
	w.params = append(w.params, v)
	return fmt.Sprintf("$%d", len(w.params))
}

func (w *where) clause() string {
	return strings.Join(w.conditions, " AND ")
}

func messageWhere(conversationID string, filter chathistory.Filter) *where {
	w := &where{}
	w.conditions = append(w.conditions, "conversation_id = "+w.add(conversationID))
	if filter.StartTime != nil {
		w.conditions = append(w.conditions, "created_at >= "+w.add(*filter.StartTime))
	}
	if filter.EndTime != nil {
		w.conditions = append(w.conditions, "created_at <= "+w.add(*filter.EndTime))
	}
	if len(filter.Roles) > 0 {
		w.conditions = append(w.conditions, "role = ANY("+w.add(pq.Array(filter.Roles))+")")
	}
	if filter.Search != "" {
		w.conditions = append(w.conditions, "content ILIKE "+w.add("%"+filter.Search+"%"))
	}
	return w
}
