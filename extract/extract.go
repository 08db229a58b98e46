// Package extract recovers JSON records from a streamed model response while
// it is still being generated.
//
// Two modes are supported. Single parses one object once the stream ends and
// can surface a live preview of one string field meanwhile. Many splits the
// growing text into lines after every token and emits each line that parses
// into a complete, schema-valid record exactly once. Both modes retry the
// whole generation, with a fresh buffer, until the retry ceiling is reached.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/Abraxas-365/pathway/llm"
)

// Streamer is the token source consumed by an Extractor. Any llm.LLM
// satisfies it.
type Streamer interface {
	ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.Option) (<-chan llm.StreamResponse, error)
}

// Request describes one generation.
type Request struct {
	Instructions string // System prompt; usually embeds Schema.Describe
	Prompt       string
	Schema       *Schema
	ChatOptions  []llm.Option

	// Accept adds checks beyond the schema. A rejected record is treated as
	// not yet complete.
	Accept func(Record) error
}

func (r Request) check(rec Record) error {
	if err := r.Schema.Validate(rec); err != nil {
		return err
	}
	if r.Accept != nil {
		return r.Accept(rec)
	}
	return nil
}

func (r Request) messages() []llm.Message {
	var msgs []llm.Message
	if r.Instructions != "" {
		msgs = append(msgs, llm.System(r.Instructions))
	}
	return append(msgs, llm.User(r.Prompt))
}

// Extractor runs extractions against one token source.
type Extractor struct {
	source Streamer
	opts   Options
}

// New creates an Extractor. opts set the defaults of every call.
func New(source Streamer, opts ...Option) *Extractor {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Extractor{
		source: source,
		opts:   options,
	}
}

func (e *Extractor) callOptions(opts []Option) Options {
	o := e.opts
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (e *Extractor) check(op string, req Request, o Options) error {
	switch {
	case e.source == nil:
		return newExtractError(op, ErrCodeInvalidInput, "token source is nil", nil)
	case req.Schema == nil:
		return newExtractError(op, ErrCodeInvalidInput, "schema is required", nil)
	case strings.TrimSpace(req.Prompt) == "":
		return newExtractError(op, ErrCodeInvalidInput, "prompt is empty", nil)
	case o.RetryLimit < 1:
		return newExtractError(op, ErrCodeInvalidInput, fmt.Sprintf("retry limit must be positive, got %d", o.RetryLimit), nil)
	}
	return nil
}

// Single streams a response and parses the span between its first '{' and
// last '}' as one record. If OnPartial is set and the schema has a Preview
// field, the field's text is reported as it grows; the returned record is
// authoritative.
func (e *Extractor) Single(ctx context.Context, req Request, opts ...Option) (Record, error) {
	const op = "Single"
	o := e.callOptions(opts)
	if err := e.check(op, req, o); err != nil {
		return nil, err
	}

	var preview *previewMatcher
	if o.OnPartial != nil && req.Schema.Preview != "" {
		preview = newPreviewMatcher(req.Schema.Preview)
	}

	var (
		lastErr error
		lastRaw string
	)
	for attempt := 1; attempt <= o.RetryLimit; attempt++ {
		var shown string
		var onToken func(string)
		if preview != nil {
			onToken = func(buf string) {
				if text, ok := preview.Match(buf); ok && text != shown {
					shown = text
					o.OnPartial(text)
				}
			}
		}

		raw, err := e.attempt(ctx, req, onToken)
		lastRaw = raw
		if ctx.Err() != nil {
			return nil, e.canceled(op, ctx, attempt, raw)
		}
		if err == nil {
			var rec Record
			if rec, err = parseObject(raw); err == nil {
				if err = req.check(rec); err == nil {
					return rec, nil
				}
			}
		}

		lastErr = err
		e.logAttempt(o, op, req, attempt, err)
	}

	return nil, e.exhausted(op, o.RetryLimit, lastRaw, lastErr)
}

// Many streams a response of newline-delimited objects and calls onRecord
// for every new schema-valid record as soon as its line parses. Lines that do
// not parse yet are retried on every token. A stream that ends without any
// record is regenerated. Records are returned in emission order.
func (e *Extractor) Many(ctx context.Context, req Request, onRecord func(Record), opts ...Option) ([]Record, error) {
	const op = "Many"
	o := e.callOptions(opts)
	if err := e.check(op, req, o); err != nil {
		return nil, err
	}

	var (
		lastErr error
		lastRaw string
	)
	for attempt := 1; attempt <= o.RetryLimit; attempt++ {
		emitted := make(map[string]struct{})
		var records []Record

		raw, err := e.attempt(ctx, req, func(buf string) {
			for _, seg := range segments(buf) {
				// onRecord may cancel; nothing is emitted after that.
				if ctx.Err() != nil {
					return
				}
				rec, err := parseObject(seg)
				if err != nil || req.check(rec) != nil {
					continue
				}
				id := req.Schema.Identity(rec)
				if _, ok := emitted[id]; ok {
					continue
				}
				emitted[id] = struct{}{}
				records = append(records, rec)
				if onRecord != nil {
					onRecord(rec)
				}
			}
		})
		lastRaw = raw
		if ctx.Err() != nil {
			return nil, e.canceled(op, ctx, attempt, raw)
		}

		if len(records) > 0 {
			// Emitted records cannot be retracted, so a stream that broke
			// after emitting keeps what it produced.
			if err != nil {
				o.Logger.Warn("stream failed after emitting records",
					"op", op, "schema", req.Schema.Name, "attempt", attempt,
					"records", len(records), "error", err)
			}
			return records, nil
		}

		if err == nil {
			err = errNoRecords
		}
		lastErr = err
		e.logAttempt(o, op, req, attempt, err)
	}

	return nil, e.exhausted(op, o.RetryLimit, lastRaw, lastErr)
}

// attempt consumes one stream into a fresh buffer, calling onToken with the
// whole buffer after each append. onToken is never called once ctx is done.
func (e *Extractor) attempt(ctx context.Context, req Request, onToken func(buf string)) (string, error) {
	stream, err := e.source.ChatStream(ctx, req.messages(), req.ChatOptions...)
	if err != nil {
		return "", err
	}

	var buf strings.Builder
	for {
		select {
		case <-ctx.Done():
			return buf.String(), ctx.Err()
		case resp, ok := <-stream:
			if !ok {
				return buf.String(), nil
			}
			if resp.Error != nil {
				return buf.String(), resp.Error
			}
			if resp.Message.Content != "" {
				buf.WriteString(resp.Message.Content)
				if onToken != nil && ctx.Err() == nil {
					onToken(buf.String())
				}
			}
			if resp.Done {
				return buf.String(), nil
			}
		}
	}
}

func (e *Extractor) logAttempt(o Options, op string, req Request, attempt int, err error) {
	if attempt < o.RetryLimit {
		o.Logger.Warn("extraction attempt failed, regenerating",
			"op", op, "schema", req.Schema.Name, "attempt", attempt, "limit", o.RetryLimit, "error", err)
		return
	}
	o.Logger.Error("extraction retries exhausted",
		"op", op, "schema", req.Schema.Name, "attempt", attempt, "limit", o.RetryLimit, "error", err)
}

func (e *Extractor) canceled(op string, ctx context.Context, attempt int, raw string) *ExtractError {
	err := newExtractError(op, ErrCodeCanceled, "extraction canceled", ctx.Err())
	err.Attempts = attempt
	err.Raw = raw
	return err
}

func (e *Extractor) exhausted(op string, attempts int, raw string, last error) *ExtractError {
	err := newExtractError(op, ErrCodeRetriesExhausted,
		fmt.Sprintf("no valid record after %d attempts", attempts), last)
	err.Attempts = attempts
	err.Raw = raw
	return err
}
