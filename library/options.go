package library

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Options configures a Library.
type Options struct {
	GenerateID func() string
	Now        func() time.Time
	ShareTTL   time.Duration // Lifetime of shared links
	Logger     *slog.Logger
}

// Option is a function type to modify Options
type Option func(*Options)

func defaultOptions() *Options {
	return &Options{
		GenerateID: func() string { return uuid.New().String() },
		Now:        time.Now,
		ShareTTL:   24 * time.Hour,
		Logger:     slog.Default(),
	}
}

// WithGenerateID sets the note ID generator
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

// WithShareTTL sets how long shared links stay valid
func WithShareTTL(ttl time.Duration) Option {
	return func(o *Options) {
		o.ShareTTL = ttl
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
