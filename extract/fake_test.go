package extract

import (
	"context"
	"errors"
	"sync"

	"github.com/Abraxas-365/pathway/llm"
)

// scriptedStream replays one token script per ChatStream call. Calls beyond
// the last script repeat it.
type scriptedStream struct {
	mu       sync.Mutex
	scripts  [][]string
	openErr  []error // per call; nil entries stream normally
	midErr   []error // per call; delivered after the tokens
	calls    int
	messages [][]llm.Message
}

func newScripted(scripts ...[]string) *scriptedStream {
	return &scriptedStream{scripts: scripts}
}

func (s *scriptedStream) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.Option) (<-chan llm.StreamResponse, error) {
	s.mu.Lock()
	call := s.calls
	s.calls++
	s.messages = append(s.messages, messages)
	s.mu.Unlock()

	if call < len(s.openErr) && s.openErr[call] != nil {
		return nil, s.openErr[call]
	}

	idx := call
	if idx >= len(s.scripts) {
		idx = len(s.scripts) - 1
	}
	tokens := s.scripts[idx]
	var tail error
	if call < len(s.midErr) {
		tail = s.midErr[call]
	}

	ch := make(chan llm.StreamResponse)
	go func() {
		defer close(ch)
		for _, tok := range tokens {
			if !llm.Send(ctx, ch, llm.StreamResponse{Message: llm.Assistant(tok)}) {
				return
			}
		}
		if tail != nil {
			llm.Send(ctx, ch, llm.StreamResponse{Error: tail, Done: true})
			return
		}
		llm.Send(ctx, ch, llm.StreamResponse{Done: true})
	}()
	return ch, nil
}

func (s *scriptedStream) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var errTransport = errors.New("connection reset")

// chars splits s into one token per byte.
func chars(s string) []string {
	out := make([]string, len(s))
	for i := range s {
		out[i] = s[i : i+1]
	}
	return out
}
