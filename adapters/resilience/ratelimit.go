package resilience

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/Abraxas-365/pathway/llm"
)

// RateLimitConfig configures the request rate allowed through a LimitedLLM.
type RateLimitConfig struct {
	// RequestsPerMin is the sustained number of calls allowed per minute.
	RequestsPerMin int `yaml:"requestsPerMin"`
	// BurstSize is the maximum number of calls allowed at once.
	BurstSize int `yaml:"burstSize"`
}

// LimitedLLM waits on a token bucket before every call to the wrapped model.
// Each extraction attempt opens one stream, so retries are throttled too.
type LimitedLLM struct {
	inner   llm.LLM
	limiter *rate.Limiter
}

var _ llm.LLM = (*LimitedLLM)(nil)

// NewLimitedLLM wraps inner. A non-positive RequestsPerMin disables limiting.
func NewLimitedLLM(inner llm.LLM, cfg RateLimitConfig) *LimitedLLM {
	limit := rate.Inf
	if cfg.RequestsPerMin > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMin) / 60.0)
	}
	burst := cfg.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &LimitedLLM{
		inner:   inner,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (l *LimitedLLM) wait(ctx context.Context, op string) error {
	if err := l.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return llm.NewLLMError(op, llm.ErrContextCanceled, "context canceled while rate limited", ctx.Err())
		}
		return llm.NewLLMError(op, llm.ErrRateLimitExceeded, "rate limit wait", err)
	}
	return nil
}

func (l *LimitedLLM) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (*llm.Message, error) {
	if err := l.wait(ctx, "Chat"); err != nil {
		return nil, err
	}
	return l.inner.Chat(ctx, messages, opts...)
}

func (l *LimitedLLM) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.Option) (<-chan llm.StreamResponse, error) {
	if err := l.wait(ctx, "ChatStream"); err != nil {
		return nil, err
	}
	return l.inner.ChatStream(ctx, messages, opts...)
}

func (l *LimitedLLM) Complete(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	if err := l.wait(ctx, "Complete"); err != nil {
		return "", err
	}
	return l.inner.Complete(ctx, prompt, opts...)
}
