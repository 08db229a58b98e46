package llm

import (
	"context"
)

// LLM represents a large language model interface
type LLM interface {
	// Chat generates a response based on the conversation history
	Chat(ctx context.Context, messages []Message, opts ...Option) (*Message, error)

	// ChatStream streams the response tokens. The channel is closed after a
	// response with Done set has been delivered or ctx is canceled.
	ChatStream(ctx context.Context, messages []Message, opts ...Option) (<-chan StreamResponse, error)

	// Complete generates a completion for the given prompt
	Complete(ctx context.Context, prompt string, opts ...Option) (string, error)
}

// StreamResponse represents a streaming response. Non-terminal responses carry
// one token in Message.Content.
type StreamResponse struct {
	Message Message
	Error   error
	Done    bool
}

// Send delivers resp on ch unless ctx is done first. It reports whether the
// response was delivered.
func Send(ctx context.Context, ch chan<- StreamResponse, resp StreamResponse) bool {
	select {
	case ch <- resp:
		return true
	case <-ctx.Done():
		return false
	}
}

// Collect drains a stream and returns the concatenated content. onToken, when
// not nil, is called with every token as it arrives.
func Collect(ctx context.Context, stream <-chan StreamResponse, onToken func(string)) (string, error) {
	var out []byte
	for {
		select {
		case <-ctx.Done():
			return string(out), &LLMError{Op: "Collect", Code: ErrContextCanceled, Message: "context canceled", Err: ctx.Err()}
		case resp, ok := <-stream:
			if !ok {
				return string(out), nil
			}
			if resp.Error != nil {
				return string(out), resp.Error
			}
			if resp.Message.Content != "" {
				out = append(out, resp.Message.Content...)
				if onToken != nil {
					onToken(resp.Message.Content)
				}
			}
			if resp.Done {
				return string(out), nil
			}
		}
	}
}
