package llm

import "strings"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Message represents a chat message
type Message struct {
	Role     string         `json:"role"`    // e.g., "system", "user", "assistant"
	Content  string         `json:"content"` // The message content
	Name     string         `json:"name,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// System returns a system message with the given content
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User returns a user message with the given content
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant returns an assistant message with the given content
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// GetUsage returns the usage statistics from the message metadata
func (m *Message) GetUsage() *Usage {
	if m.Metadata == nil {
		return nil
	}
	usage, ok := m.Metadata["usage"].(Usage)
	if !ok {
		return nil
	}
	return &usage
}

// SetUsage sets the usage statistics in the message metadata
func (m *Message) SetUsage(usage *Usage) {
	if usage == nil {
		return
	}
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata["usage"] = *usage
}

// MessagesToString renders the user and assistant turns as a plain transcript.
func MessagesToString(messages []Message) string {
	var sb strings.Builder
	for _, message := range messages {
		if message.Role == RoleSystem {
			continue
		}
		sb.WriteString(message.Role)
		sb.WriteString(": ")
		sb.WriteString(message.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
