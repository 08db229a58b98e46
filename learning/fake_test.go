package learning

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Abraxas-365/pathway/llm"
)

// fakeModel answers every call with the tokens chosen by respond.
type fakeModel struct {
	mu      sync.Mutex
	respond func(messages []llm.Message) ([]string, error)
	calls   []fakeCall
}

type fakeCall struct {
	messages []llm.Message
	options  *llm.ChatOptions
}

func (f *fakeModel) record(messages []llm.Message, opts []llm.Option) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{messages: messages, options: llm.Apply(llm.ChatOptions{}, opts...)})
}

func (f *fakeModel) Calls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

func (f *fakeModel) ChatStream(ctx context.Context, messages []llm.Message, opts ...llm.Option) (<-chan llm.StreamResponse, error) {
	f.record(messages, opts)
	tokens, err := f.respond(messages)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamResponse)
	go func() {
		defer close(ch)
		for _, tok := range tokens {
			if !llm.Send(ctx, ch, llm.StreamResponse{Message: llm.Assistant(tok)}) {
				return
			}
		}
		llm.Send(ctx, ch, llm.StreamResponse{Done: true})
	}()
	return ch, nil
}

func (f *fakeModel) Chat(ctx context.Context, messages []llm.Message, opts ...llm.Option) (*llm.Message, error) {
	f.record(messages, opts)
	tokens, err := f.respond(messages)
	if err != nil {
		return nil, err
	}
	msg := llm.Assistant(strings.Join(tokens, ""))
	return &msg, nil
}

func (f *fakeModel) Complete(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	msg, err := f.Chat(ctx, []llm.Message{llm.User(prompt)}, opts...)
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

// lastUser returns the content of the last user message.
func lastUser(messages []llm.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == llm.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}

// split cuts s into tokens of n bytes.
func split(s string, n int) []string {
	var out []string
	for len(s) > n {
		out = append(out, s[:n])
		s = s[n:]
	}
	return append(out, s)
}

type memStore struct {
	mu    sync.Mutex
	saved map[string]Exploration
	saves int
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]Exploration)}
}

func (s *memStore) SaveExploration(ctx context.Context, exp *Exploration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved[exp.UserID+"/"+exp.ID] = cloneExploration(*exp)
	s.saves++
	return nil
}

func (s *memStore) GetExploration(ctx context.Context, userID, id string) (*Exploration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.saved[userID+"/"+id]
	if !ok {
		return nil, fmt.Errorf("exploration %s not found", id)
	}
	cp := cloneExploration(exp)
	return &cp, nil
}

func cloneExploration(exp Exploration) Exploration {
	modules := make([]Module, len(exp.Modules))
	for i, m := range exp.Modules {
		m.Topics = append([]Topic(nil), m.Topics...)
		modules[i] = m
	}
	exp.Modules = modules
	return exp
}
