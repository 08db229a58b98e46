// Package resilience wraps an llm.LLM with a circuit breaker and a rate limiter.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/Abraxas-365/pathway/llm"
)

// Default circuit breaker settings.
const (
	defaultMaxFailures uint32        = 5
	defaultTimeout     time.Duration = 30 * time.Second
	defaultInterval    time.Duration = 60 * time.Second
)

// Config configures the circuit breaker behavior.
type Config struct {
	Name string `yaml:"name"`
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"maxFailures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `yaml:"interval"`
}

// BreakerLLM routes calls to an llm.LLM through a circuit breaker. Only
// opening a stream is guarded; errors delivered on an open stream do not
// count against the breaker.
type BreakerLLM struct {
	inner   llm.LLM
	breaker *gobreaker.CircuitBreaker[*llm.Message]
	logger  *slog.Logger
}

var _ llm.LLM = (*BreakerLLM)(nil)

// NewBreakerLLM wraps inner. Zero config fields use defaults.
func NewBreakerLLM(inner llm.LLM, cfg Config, logger *slog.Logger) *BreakerLLM {
	if logger == nil {
		logger = slog.Default()
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}
	name := cfg.Name
	if name == "" {
		name = "default"
	}

	cb := gobreaker.NewCircuitBreaker[*llm.Message](gobreaker.Settings{
		Name:        "llm:" + name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || callerError(err)
		},
	})

	return &BreakerLLM{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// callerError reports errors caused by the request or the caller rather than
// the backend.
func callerError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var llmErr *llm.LLMError
	if errors.As(err, &llmErr) {
		switch llmErr.Code {
		case llm.ErrInvalidInput, llm.ErrContextCanceled, llm.ErrTokenLimitExceeded:
			return true
		}
	}
	return false
}

func (b *BreakerLLM) wrap(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return llm.NewLLMError(op, llm.ErrCircuitOpen, "circuit open", err)
	}
	return err
}

func (b *BreakerLLM) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (*llm.Message, error) {
	msg, err := b.breaker.Execute(func() (*llm.Message, error) {
		return b.inner.Chat(ctx, messages, opts...)
	})
	if err != nil {
		return nil, b.wrap("Chat", err)
	}
	return msg, nil
}

func (b *BreakerLLM) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.Option) (<-chan llm.StreamResponse, error) {
	var ch <-chan llm.StreamResponse
	_, err := b.breaker.Execute(func() (*llm.Message, error) {
		var streamErr error
		ch, streamErr = b.inner.ChatStream(ctx, messages, opts...)
		return nil, streamErr
	})
	if err != nil {
		return nil, b.wrap("ChatStream", err)
	}
	return ch, nil
}

func (b *BreakerLLM) Complete(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	msg, err := b.Chat(ctx, []llm.Message{llm.User(prompt)}, opts...)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// State returns the current circuit breaker state for monitoring.
func (b *BreakerLLM) State() gobreaker.State {
	return b.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (b *BreakerLLM) Counts() gobreaker.Counts {
	return b.breaker.Counts()
}
