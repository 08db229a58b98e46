package llm

// ChatOptions represents options for chat completion
type ChatOptions struct {
	Temperature      float32  // Controls randomness (0.0 to 2.0)
	TopP             float32  // Controls diversity (0.0 to 1.0)
	MaxTokens        int      // Maximum number of tokens to generate
	Stop             []string // Stop sequences
	PresencePenalty  float32  // Penalty for new tokens based on presence in text
	FrequencyPenalty float32  // Penalty for new tokens based on frequency in text
	JSONMode         bool     // Ask the backend for a JSON object response, when supported
}

// Option is a function type to modify ChatOptions
type Option func(*ChatOptions)

// Apply returns defaults with opts applied in order.
func Apply(defaults ChatOptions, opts ...Option) *ChatOptions {
	o := defaults
	for _, opt := range opts {
		opt(&o)
	}
	return &o
}

func WithTemperature(temp float32) Option {
	return func(o *ChatOptions) {
		o.Temperature = temp
	}
}

func WithTopP(topP float32) Option {
	return func(o *ChatOptions) {
		o.TopP = topP
	}
}

func WithMaxTokens(tokens int) Option {
	return func(o *ChatOptions) {
		o.MaxTokens = tokens
	}
}

func WithStop(stop []string) Option {
	return func(o *ChatOptions) {
		o.Stop = stop
	}
}

func WithPresencePenalty(p float32) Option {
	return func(o *ChatOptions) {
		o.PresencePenalty = p
	}
}

func WithFrequencyPenalty(p float32) Option {
	return func(o *ChatOptions) {
		o.FrequencyPenalty = p
	}
}

// WithJSONMode requests a single JSON object response. Line-delimited output
// must not use it.
func WithJSONMode(enabled bool) Option {
	return func(o *ChatOptions) {
		o.JSONMode = enabled
	}
}
