package openai

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/Abraxas-365/pathway/llm"
)

type OpenAILLM struct {
	client *openai.Client
	model  string
	tokens *tokenCounter
}

// Options configures the OpenAI client
type Options struct {
	BaseURL     string // OpenAI-compatible endpoint; empty uses api.openai.com
	CountTokens bool   // Count usage with tiktoken instead of estimating
	HTTPClient  *http.Client
}

// Option is a function type to modify Options
type Option func(*Options)

// WithBaseURL points the client at an OpenAI-compatible API
func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

// WithTokenCounting enables or disables tiktoken usage counting
func WithTokenCounting(enabled bool) Option {
	return func(o *Options) {
		o.CountTokens = enabled
	}
}

// WithHTTPClient sets the HTTP client used for API calls
func WithHTTPClient(client *http.Client) Option {
	return func(o *Options) {
		o.HTTPClient = client
	}
}

func NewOpenAILLM(apiKey string, model string, opts ...Option) *OpenAILLM {
	if model == "" {
		model = openai.GPT4oMini
	}
	options := &Options{CountTokens: true}
	for _, opt := range opts {
		opt(options)
	}

	config := openai.DefaultConfig(apiKey)
	if options.BaseURL != "" {
		config.BaseURL = options.BaseURL
	}
	if options.HTTPClient != nil {
		config.HTTPClient = options.HTTPClient
	}

	return &OpenAILLM{
		client: openai.NewClientWithConfig(config),
		model:  model,
		tokens: newTokenCounter(model, options.CountTokens),
	}
}

func (o *OpenAILLM) request(messages []llm.Message, opts []llm.Option) openai.ChatCompletionRequest {
	options := llm.Apply(llm.ChatOptions{Temperature: 0.1}, opts...)

	// Convert messages to OpenAI format
	openAIMessages := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		openAIMessages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
			Name:    msg.Name,
		}
	}

	req := openai.ChatCompletionRequest{
		Model:            o.model,
		Messages:         openAIMessages,
		Temperature:      options.Temperature,
		TopP:             options.TopP,
		MaxTokens:        options.MaxTokens,
		Stop:             options.Stop,
		PresencePenalty:  options.PresencePenalty,
		FrequencyPenalty: options.FrequencyPenalty,
	}
	if options.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

func (o *OpenAILLM) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (*llm.Message, error) {
	resp, err := o.client.CreateChatCompletion(ctx, o.request(messages, opts))
	if err != nil {
		return nil, handleOpenAIError(ctx, "Chat", err)
	}

	if len(resp.Choices) == 0 {
		return nil, llm.NewLLMError("Chat", llm.ErrAPIError, "no response choices returned", nil)
	}

	message := &llm.Message{
		Role:    resp.Choices[0].Message.Role,
		Content: resp.Choices[0].Message.Content,
		Name:    resp.Choices[0].Message.Name,
	}
	message.SetUsage(&llm.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	})

	return message, nil
}

// ChatStream streams content deltas. The final response carries the usage,
// counted locally since streamed chunks do not report it.
func (o *OpenAILLM) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.Option) (<-chan llm.StreamResponse, error) {
	req := o.request(messages, opts)
	req.Stream = true

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, handleOpenAIError(ctx, "ChatStream", err)
	}

	responseChan := make(chan llm.StreamResponse)

	go func() {
		defer close(responseChan)
		defer stream.Close()

		usage := &llm.Usage{PromptTokens: o.tokens.CountMessages(messages)}
		var completion []byte

		done := func() {
			usage.CompletionTokens = o.tokens.Count(string(completion))
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			final := llm.Message{Role: llm.RoleAssistant}
			final.SetUsage(usage)
			llm.Send(ctx, responseChan, llm.StreamResponse{Message: final, Done: true})
		}

		for {
			response, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				done()
				return
			}
			if err != nil {
				llm.Send(ctx, responseChan, llm.StreamResponse{
					Error: handleOpenAIError(ctx, "ChatStream", err),
					Done:  true,
				})
				return
			}
			if len(response.Choices) == 0 {
				continue
			}

			choice := response.Choices[0]
			if choice.Delta.Content != "" {
				completion = append(completion, choice.Delta.Content...)
				if !llm.Send(ctx, responseChan, llm.StreamResponse{
					Message: llm.Message{Role: llm.RoleAssistant, Content: choice.Delta.Content},
				}) {
					return
				}
			}
			if choice.FinishReason != "" {
				done()
				return
			}
		}
	}()

	return responseChan, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	resp, err := o.Chat(ctx, []llm.Message{llm.User(prompt)}, opts...)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func handleOpenAIError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return llm.NewLLMError(op, llm.ErrContextCanceled, "context canceled", err)
	}

	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusBadRequest:
		return llm.NewLLMError(op, llm.ErrInvalidInput, "invalid request", err)
	case status == http.StatusUnauthorized:
		return llm.NewLLMError(op, llm.ErrUnauthorized, "invalid API key", err)
	case status == http.StatusNotFound:
		return llm.NewLLMError(op, llm.ErrModelNotAvailable, "model not available", err)
	case status == http.StatusTooManyRequests:
		return llm.NewLLMError(op, llm.ErrRateLimitExceeded, "rate limit exceeded", err)
	case status >= 500:
		return llm.NewLLMError(op, llm.ErrAPIError, "OpenAI server error", err)
	}
	return llm.NewLLMError(op, llm.ErrInternal, "unexpected error", err)
}
