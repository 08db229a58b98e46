package openai

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/Abraxas-365/pathway/llm"
)

// encodingForModel returns the tiktoken encoding name for a chat model
func encodingForModel(model string) string {
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "o1"), strings.HasPrefix(model, "o3"):
		return "o200k_base"
	case strings.HasPrefix(model, "gpt-4"), strings.HasPrefix(model, "gpt-3.5-turbo"):
		return "cl100k_base"
	}
	// Default to cl100k_base if model is unknown
	return "cl100k_base"
}

// tokenCounter counts tokens with the model's encoding. The encoding is
// loaded on first use; when it cannot be loaded, counts fall back to one
// token per four bytes.
type tokenCounter struct {
	model   string
	enabled bool
	once    sync.Once
	enc     *tiktoken.Tiktoken
}

func newTokenCounter(model string, enabled bool) *tokenCounter {
	return &tokenCounter{model: model, enabled: enabled}
}

func (c *tokenCounter) encoding() *tiktoken.Tiktoken {
	if !c.enabled {
		return nil
	}
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(encodingForModel(c.model))
		if err == nil {
			c.enc = enc
		}
	})
	return c.enc
}

func (c *tokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoding(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// CountMessages counts the prompt tokens of messages, including the
// per-message framing of the chat format.
func (c *tokenCounter) CountMessages(messages []llm.Message) int {
	const perMessage, perReply = 3, 3
	total := perReply
	for _, msg := range messages {
		total += perMessage + c.Count(msg.Role) + c.Count(msg.Content)
		if msg.Name != "" {
			total += 1 + c.Count(msg.Name)
		}
	}
	return total
}
