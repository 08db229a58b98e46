package extract

import "log/slog"

// DefaultRetryLimit is the number of full generation attempts made before
// extraction fails.
const DefaultRetryLimit = 5

// Options configures an extraction run.
type Options struct {
	RetryLimit int               // Total attempts, including the first
	OnPartial  func(text string) // Live preview of the schema's preview field (single-record mode)
	Logger     *slog.Logger
}

// Option is a function type to modify Options
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		RetryLimit: DefaultRetryLimit,
		Logger:     slog.Default(),
	}
}

// WithRetryLimit sets the retry ceiling
func WithRetryLimit(n int) Option {
	return func(o *Options) {
		o.RetryLimit = n
	}
}

// WithPartial sets the preview callback used by Single
func WithPartial(fn func(text string)) Option {
	return func(o *Options) {
		o.OnPartial = fn
	}
}

// WithLogger sets the logger used for attempt diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}
