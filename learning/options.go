package learning

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Abraxas-365/pathway/llm"
)

// Options configures the Generator, Explorer and Tutor.
type Options struct {
	RetryLimit  int          // Generation attempts per call; 0 keeps the extractor default
	MaxModules  int          // Upper bound asked of the model for modules
	MaxTopics   int          // Upper bound asked of the model for topics per module
	Language    string       // Language the content is written in
	ChatOptions []llm.Option // Passed to the model on every call
	GenerateID  func() string
	Now         func() time.Time
	Logger      *slog.Logger
}

// Option is a function type to modify Options
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		MaxModules: 6,
		MaxTopics:  8,
		Language:   "English",
		GenerateID: func() string { return uuid.New().String() },
		Now:        time.Now,
		Logger:     slog.Default(),
	}
}

func applyOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithRetryLimit sets the number of generation attempts per call
func WithRetryLimit(n int) Option {
	return func(o *Options) {
		o.RetryLimit = n
	}
}

// WithMaxModules sets the module count requested from the model
func WithMaxModules(n int) Option {
	return func(o *Options) {
		o.MaxModules = n
	}
}

// WithMaxTopics sets the per-module topic count requested from the model
func WithMaxTopics(n int) Option {
	return func(o *Options) {
		o.MaxTopics = n
	}
}

// WithLanguage sets the output language
func WithLanguage(lang string) Option {
	return func(o *Options) {
		o.Language = lang
	}
}

// WithChatOptions sets model options used on every call
func WithChatOptions(opts ...llm.Option) Option {
	return func(o *Options) {
		o.ChatOptions = opts
	}
}

// WithGenerateID sets the ID generator for explorations
func WithGenerateID(fn func() string) Option {
	return func(o *Options) {
		o.GenerateID = fn
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}
