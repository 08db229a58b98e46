package learning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Abraxas-365/pathway/chathistory"
	"github.com/Abraxas-365/pathway/llm"
)

// Conversation metadata keys set by Tutor.Start.
const (
	MetadataExplorationID = "exploration_id"
	MetadataModule        = "module"
	MetadataTopic         = "topic"
)

// Tutor answers free-text questions about one topic of an exploration.
type Tutor struct {
	model  llm.LLM
	memory *chathistory.Memory
	opts   *Options
}

// NewTutor creates a Tutor.
func NewTutor(model llm.LLM, memory *chathistory.Memory, opts ...Option) *Tutor {
	return &Tutor{
		model:  model,
		memory: memory,
		opts:   applyOptions(opts),
	}
}

// Start opens a conversation about a topic of exp for userID. The topic is
// described in the conversation's system prompt.
func (t *Tutor) Start(ctx context.Context, userID string, exp *Exploration, moduleTitle, topicTitle string) (*chathistory.Conversation, error) {
	m, topic, ok := exp.Topic(moduleTitle, topicTitle)
	if !ok {
		return nil, fmt.Errorf("%w: %s / %s", ErrTopicNotFound, moduleTitle, topicTitle)
	}

	prompt, err := render(tutorInstructions, promptData{
		Query:    exp.Query,
		Module:   m.Title,
		Topic:    topic.Title,
		Content:  topic.Content,
		Language: t.opts.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("render tutor prompt: %w", err)
	}

	return t.memory.CreateConversation(ctx, userID, map[string]any{
		chathistory.MetadataSystemPrompt: prompt,
		MetadataExplorationID:            exp.ID,
		MetadataModule:                   m.Title,
		MetadataTopic:                    topic.Title,
	})
}

// Ask streams the answer to question, calling onToken with each fragment.
// The question and the answer are saved only when the answer completes.
func (t *Tutor) Ask(ctx context.Context, userID, conversationID, question string, onToken func(string)) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("learning: question is empty")
	}

	history, err := t.memory.Context(ctx, userID, conversationID)
	if err != nil {
		return "", err
	}
	messages := append(history, llm.User(question))

	stream, err := t.model.ChatStream(ctx, messages, t.opts.ChatOptions...)
	if err != nil {
		return "", fmt.Errorf("tutor answer: %w", err)
	}
	answer, err := llm.Collect(ctx, stream, onToken)
	if err != nil {
		return "", fmt.Errorf("tutor answer: %w", err)
	}

	if err := t.memory.AddMessage(ctx, userID, conversationID, llm.User(question)); err != nil {
		return "", err
	}
	if err := t.memory.AddMessage(ctx, userID, conversationID, llm.Assistant(answer)); err != nil {
		return "", err
	}
	return answer, nil
}
