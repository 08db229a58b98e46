package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/aws/smithy-go/ptr"

	"github.com/Abraxas-365/pathway/llm"
)

// LLMModelID represents available Bedrock models
type LLMModelID string

const (
	Claude3Haiku   LLMModelID = "anthropic.claude-3-haiku-20240307-v1:0"
	Claude3Sonnet  LLMModelID = "anthropic.claude-3-sonnet-20240229-v1:0"
	Claude35Sonnet LLMModelID = "anthropic.claude-3-5-sonnet-20240620-v1:0"
)

const anthropicVersion = "bedrock-2023-05-31"

// RuntimeClient is the subset of *bedrockruntime.Client used by BedrockLLM
type RuntimeClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// BedrockLLM serves Anthropic models through the Bedrock messages API. JSON
// mode has no Bedrock equivalent and is ignored.
type BedrockLLM struct {
	client RuntimeClient
	model  LLMModelID
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	System           string             `json:"system,omitempty"`
	Messages         []anthropicMessage `json:"messages"`
	MaxTokens        int                `json:"max_tokens"`
	Temperature      float32            `json:"temperature,omitempty"`
	TopP             float32            `json:"top_p,omitempty"`
	StopSequences    []string           `json:"stop_sequences,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      anthropicUsage `json:"usage"`
}

// streamEvent is one chunk of a messages stream
type streamEvent struct {
	Type    string `json:"type"`
	Message *struct {
		Usage anthropicUsage `json:"usage"`
	} `json:"message,omitempty"`
	Delta *struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta,omitempty"`
	Usage *anthropicUsage `json:"usage,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewBedrockLLM(client RuntimeClient, model LLMModelID) *BedrockLLM {
	if model == "" {
		model = Claude3Haiku
	}
	return &BedrockLLM{
		client: client,
		model:  model,
	}
}

// buildRequest moves system messages into the system field and merges
// consecutive turns of the same role, as the messages API requires.
func buildRequest(messages []llm.Message, options *llm.ChatOptions) anthropicRequest {
	req := anthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        options.MaxTokens,
		Temperature:      options.Temperature,
		TopP:             options.TopP,
		StopSequences:    options.Stop,
	}

	var system []string
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		role := llm.RoleUser
		if msg.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == role {
			req.Messages[n-1].Content += "\n\n" + msg.Content
			continue
		}
		req.Messages = append(req.Messages, anthropicMessage{Role: role, Content: msg.Content})
	}
	req.System = strings.Join(system, "\n\n")
	return req
}

func (b *BedrockLLM) body(op string, messages []llm.Message, opts []llm.Option) ([]byte, error) {
	options := llm.Apply(llm.ChatOptions{Temperature: 0.7, MaxTokens: 2000}, opts...)
	req := buildRequest(messages, options)
	if len(req.Messages) == 0 {
		return nil, llm.NewLLMError(op, llm.ErrInvalidInput, "no user or assistant messages", nil)
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, llm.NewLLMError(op, llm.ErrInternal, "failed to marshal request", err)
	}
	return data, nil
}

func (b *BedrockLLM) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (*llm.Message, error) {
	requestBody, err := b.body("Chat", messages, opts)
	if err != nil {
		return nil, err
	}

	output, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     ptr.String(string(b.model)),
		Body:        requestBody,
		ContentType: ptr.String("application/json"),
		Accept:      ptr.String("application/json"),
	})
	if err != nil {
		return nil, handleBedrockError(ctx, "Chat", err)
	}

	var resp anthropicResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, llm.NewLLMError("Chat", llm.ErrAPIError, "failed to unmarshal response", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	message := &llm.Message{
		Role:    llm.RoleAssistant,
		Content: sb.String(),
	}
	message.SetUsage(&llm.Usage{
		PromptTokens:     resp.Usage.InputTokens,
		CompletionTokens: resp.Usage.OutputTokens,
		TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
	})
	return message, nil
}

func (b *BedrockLLM) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.Option) (<-chan llm.StreamResponse, error) {
	requestBody, err := b.body("ChatStream", messages, opts)
	if err != nil {
		return nil, err
	}

	output, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     ptr.String(string(b.model)),
		Body:        requestBody,
		ContentType: ptr.String("application/json"),
		Accept:      ptr.String("application/json"),
	})
	if err != nil {
		return nil, handleBedrockError(ctx, "ChatStream", err)
	}

	responseChan := make(chan llm.StreamResponse)

	go func() {
		defer close(responseChan)

		stream := output.GetStream()
		defer stream.Close()

		d := &decoder{}
		for event := range stream.Events() {
			chunk, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			resp, done := d.decode(chunk.Value.Bytes)
			if resp.Error != nil || resp.Message.Content != "" || done {
				if !llm.Send(ctx, responseChan, resp) {
					return
				}
			}
			if done {
				return
			}
		}

		if err := stream.Err(); err != nil {
			llm.Send(ctx, responseChan, llm.StreamResponse{
				Error: handleBedrockError(ctx, "ChatStream", err),
				Done:  true,
			})
			return
		}
		llm.Send(ctx, responseChan, d.final())
	}()

	return responseChan, nil
}

func (b *BedrockLLM) Complete(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	resp, err := b.Chat(ctx, []llm.Message{llm.User(prompt)}, opts...)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// decoder turns stream chunks into responses, tracking usage across events.
type decoder struct {
	usage llm.Usage
}

// decode returns the response for one chunk and whether the stream ended.
func (d *decoder) decode(data []byte) (llm.StreamResponse, bool) {
	var ev streamEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return llm.StreamResponse{
			Error: llm.NewLLMError("ChatStream", llm.ErrAPIError, "failed to unmarshal chunk", err),
			Done:  true,
		}, true
	}

	switch ev.Type {
	case "message_start":
		if ev.Message != nil {
			d.usage.PromptTokens = ev.Message.Usage.InputTokens
		}
	case "content_block_delta":
		if ev.Delta != nil && ev.Delta.Type == "text_delta" {
			return llm.StreamResponse{Message: llm.Assistant(ev.Delta.Text)}, false
		}
	case "message_delta":
		if ev.Usage != nil {
			d.usage.CompletionTokens = ev.Usage.OutputTokens
		}
	case "message_stop":
		return d.final(), true
	case "error":
		msg := "stream error"
		if ev.Error != nil {
			msg = fmt.Sprintf("%s: %s", ev.Error.Type, ev.Error.Message)
		}
		return llm.StreamResponse{
			Error: llm.NewLLMError("ChatStream", llm.ErrAPIError, msg, nil),
			Done:  true,
		}, true
	}
	return llm.StreamResponse{}, false
}

func (d *decoder) final() llm.StreamResponse {
	usage := d.usage
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	msg := llm.Message{Role: llm.RoleAssistant}
	msg.SetUsage(&usage)
	return llm.StreamResponse{Message: msg, Done: true}
}

func handleBedrockError(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return llm.NewLLMError(op, llm.ErrContextCanceled, "context canceled", err)
	}

	var throttled *types.ThrottlingException
	var denied *types.AccessDeniedException
	var notReady *types.ModelNotReadyException
	var invalid *types.ValidationException
	switch {
	case errors.As(err, &throttled):
		return llm.NewLLMError(op, llm.ErrRateLimitExceeded, "rate limit exceeded", err)
	case errors.As(err, &denied):
		return llm.NewLLMError(op, llm.ErrUnauthorized, "access denied", err)
	case errors.As(err, &notReady):
		return llm.NewLLMError(op, llm.ErrModelNotAvailable, "model not ready", err)
	case errors.As(err, &invalid):
		return llm.NewLLMError(op, llm.ErrInvalidInput, "invalid request", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return llm.NewLLMError(op, llm.ErrAPIError, "Bedrock API error: "+apiErr.ErrorCode(), err)
	}
	return llm.NewLLMError(op, llm.ErrAPIError, "Bedrock API error", err)
}
