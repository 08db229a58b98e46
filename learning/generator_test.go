package learning

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/Abraxas-365/pathway/extract"
	"github.com/Abraxas-365/pathway/llm"
)

const (
	modulesJSON = `Here is your path: {"modules":[{"title":"Basics","description":"syntax and types"},{"title":"basics"},{"title":"  "},{"title":"Concurrency","description":"goroutines"}]}`
	topicsJSONL = "{\"title\":\"Goroutines\",\"relevance\":9,\"description\":\"lightweight threads\"}\n" +
		"{\"title\":\"Channels\",\"relevance\":8,\"description\":\"typed pipes\"}\n"
	contentJSON = `{"content":"Hello **Go**"}`
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

// route answers by call pattern, recognised from the prompts.
func route(modules, topics, subtopics, content []string) func([]llm.Message) ([]string, error) {
	return func(messages []llm.Message) ([]string, error) {
		system := messages[0].Content
		switch {
		case strings.Contains(system, "curriculum designer"):
			return modules, nil
		case strings.Contains(lastUser(messages), "List the subtopics"):
			return subtopics, nil
		case strings.Contains(system, "into topics"):
			return topics, nil
		case strings.Contains(system, "writing the lesson"):
			return content, nil
		}
		return nil, errors.New("unexpected prompt")
	}
}

func newTestGenerator(model *fakeModel, opts ...Option) *Generator {
	opts = append([]Option{WithLogger(quiet)}, opts...)
	return NewGenerator(extract.New(model, extract.WithLogger(quiet)), opts...)
}

func TestGenerator_GenerateModules(t *testing.T) {
	model := &fakeModel{respond: route(split(modulesJSON, 7), nil, nil, nil)}
	gen := newTestGenerator(model, WithMaxModules(4), WithLanguage("Spanish"))

	modules, err := gen.GenerateModules(context.Background(), "  learn Go  ")
	if err != nil {
		t.Fatalf("GenerateModules() error = %v", err)
	}

	want := []string{"Basics", "Concurrency"}
	if len(modules) != len(want) {
		t.Fatalf("got %d modules, want %d: %+v", len(modules), len(want), modules)
	}
	for i, title := range want {
		if modules[i].Title != title {
			t.Errorf("modules[%d].Title = %q, want %q", i, modules[i].Title, title)
		}
	}

	calls := model.Calls()
	if len(calls) != 1 {
		t.Fatalf("model calls = %d, want 1", len(calls))
	}
	if !calls[0].options.JSONMode {
		t.Error("module generation should request JSON mode")
	}
	system := calls[0].messages[0].Content
	for _, part := range []string{"Spanish", "at most 4 modules", `"modules": <array`} {
		if !strings.Contains(system, part) {
			t.Errorf("system prompt missing %q:\n%s", part, system)
		}
	}
	if got := lastUser(calls[0].messages); got != "Learning goal: learn Go" {
		t.Errorf("user prompt = %q", got)
	}
}

func TestGenerator_GenerateModulesRetriesEmptyList(t *testing.T) {
	n := 0
	model := &fakeModel{respond: func([]llm.Message) ([]string, error) {
		n++
		if n == 1 {
			return []string{`{"modules":[]}`}, nil
		}
		return []string{`{"modules":[{"title":"Only"}]}`}, nil
	}}
	gen := newTestGenerator(model)

	modules, err := gen.GenerateModules(context.Background(), "learn Go")
	if err != nil {
		t.Fatalf("GenerateModules() error = %v", err)
	}
	if len(modules) != 1 || modules[0].Title != "Only" {
		t.Errorf("modules = %+v", modules)
	}
	if n != 2 {
		t.Errorf("attempts = %d, want 2", n)
	}
}

func TestGenerator_GenerateModulesExhausted(t *testing.T) {
	model := &fakeModel{respond: func([]llm.Message) ([]string, error) {
		return []string{"I cannot help with that"}, nil
	}}
	gen := newTestGenerator(model, WithRetryLimit(3))

	_, err := gen.GenerateModules(context.Background(), "learn Go")
	if !extract.IsExhausted(err) {
		t.Fatalf("error = %v, want exhausted", err)
	}
	if got := len(model.Calls()); got != 3 {
		t.Errorf("model calls = %d, want 3", got)
	}
}

func TestGenerator_EmptyQuery(t *testing.T) {
	model := &fakeModel{respond: route(nil, nil, nil, nil)}
	gen := newTestGenerator(model)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"modules", func() error { _, err := gen.GenerateModules(ctx, " "); return err }},
		{"topics", func() error { _, err := gen.GenerateTopics(ctx, "", Module{Title: "m"}, nil); return err }},
		{"subtopics", func() error {
			_, err := gen.GenerateSubtopics(ctx, "", Module{Title: "m"}, Topic{Title: "t"}, nil)
			return err
		}},
		{"content", func() error { _, err := gen.GenerateContent(ctx, "\n", Module{}, Topic{}, nil); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrEmptyQuery) {
				t.Errorf("error = %v, want ErrEmptyQuery", err)
			}
		})
	}
	if got := len(model.Calls()); got != 0 {
		t.Errorf("model calls = %d, want 0", got)
	}
}

func TestGenerator_GenerateTopics(t *testing.T) {
	model := &fakeModel{respond: route(nil, split(topicsJSONL, 5), nil, nil)}
	gen := newTestGenerator(model, WithMaxTopics(3))

	var streamed []string
	topics, err := gen.GenerateTopics(context.Background(), "learn Go",
		Module{Title: "Concurrency", Description: "goroutines"},
		func(t Topic) { streamed = append(streamed, t.Title) })
	if err != nil {
		t.Fatalf("GenerateTopics() error = %v", err)
	}

	if len(topics) != 2 {
		t.Fatalf("got %d topics, want 2", len(topics))
	}
	if topics[0].Title != "Goroutines" || topics[0].Relevance != 9 || topics[0].Description != "lightweight threads" {
		t.Errorf("topics[0] = %+v", topics[0])
	}
	if strings.Join(streamed, ",") != "Goroutines,Channels" {
		t.Errorf("streamed = %v", streamed)
	}

	call := model.Calls()[0]
	if call.options.JSONMode {
		t.Error("topic generation must not request JSON mode")
	}
	user := lastUser(call.messages)
	if !strings.Contains(user, "Module: Concurrency (goroutines)") {
		t.Errorf("user prompt = %q", user)
	}
	if !strings.Contains(call.messages[0].Content, "at most 3 topics") {
		t.Errorf("system prompt = %q", call.messages[0].Content)
	}
}

func TestGenerator_GenerateTopicsMergesPaddedTitles(t *testing.T) {
	jsonl := "{\"title\":\"Channels\",\"relevance\":8,\"description\":\"typed pipes\"}\n" +
		"{\"title\":\" Channels \",\"relevance\":7,\"description\":\"again\"}\n" +
		"{\"title\":\"channels\",\"relevance\":6,\"description\":\"and again\"}\n" +
		"{\"title\":\"Select\",\"relevance\":5,\"description\":\"multiplexing\"}\n"
	model := &fakeModel{respond: route(nil, split(jsonl, 9), nil, nil)}
	gen := newTestGenerator(model)

	var streamed []string
	topics, err := gen.GenerateTopics(context.Background(), "learn Go", Module{Title: "Concurrency"},
		func(t Topic) { streamed = append(streamed, t.Title) })
	if err != nil {
		t.Fatalf("GenerateTopics() error = %v", err)
	}
	if len(topics) != 2 || topics[0].Description != "typed pipes" {
		t.Errorf("topics = %+v", topics)
	}
	if strings.Join(streamed, ",") != "Channels,Select" {
		t.Errorf("streamed = %v", streamed)
	}
}

func TestGenerator_GenerateSubtopics(t *testing.T) {
	sub := "{\"title\":\"Buffered\",\"relevance\":6,\"description\":\"capacity\"}\n"
	model := &fakeModel{respond: route(nil, nil, split(sub, 4), nil)}
	gen := newTestGenerator(model)

	subtopics, err := gen.GenerateSubtopics(context.Background(), "learn Go",
		Module{Title: "Concurrency"}, Topic{Title: "Channels", Description: "typed pipes"}, nil)
	if err != nil {
		t.Fatalf("GenerateSubtopics() error = %v", err)
	}
	if len(subtopics) != 1 || subtopics[0].Title != "Buffered" {
		t.Errorf("subtopics = %+v", subtopics)
	}
	if user := lastUser(model.Calls()[0].messages); !strings.Contains(user, "Topic: Channels (typed pipes)") {
		t.Errorf("user prompt = %q", user)
	}
}

func TestGenerator_GenerateContentPreview(t *testing.T) {
	tokens := make([]string, 0, len(contentJSON))
	for i := range contentJSON {
		tokens = append(tokens, contentJSON[i:i+1])
	}
	model := &fakeModel{respond: route(nil, nil, nil, tokens)}
	gen := newTestGenerator(model)

	var previews []string
	content, err := gen.GenerateContent(context.Background(), "learn Go",
		Module{Title: "Basics"}, Topic{Title: "Types"}, func(s string) { previews = append(previews, s) })
	if err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}
	if content != "Hello **Go**" {
		t.Fatalf("content = %q", content)
	}
	if len(previews) == 0 {
		t.Fatal("no previews")
	}
	for _, p := range previews {
		if !strings.HasPrefix(content, p) {
			t.Errorf("preview %q is not a prefix of %q", p, content)
		}
	}
	if !model.Calls()[0].options.JSONMode {
		t.Error("content generation should request JSON mode")
	}
}

func TestGenerator_GenerateContentRejectsBlank(t *testing.T) {
	n := 0
	model := &fakeModel{respond: func([]llm.Message) ([]string, error) {
		n++
		if n == 1 {
			return []string{`{"content":"   "}`}, nil
		}
		return []string{contentJSON}, nil
	}}
	gen := newTestGenerator(model)

	content, err := gen.GenerateContent(context.Background(), "learn Go", Module{}, Topic{Title: "Types"}, nil)
	if err != nil {
		t.Fatalf("GenerateContent() error = %v", err)
	}
	if content != "Hello **Go**" || n != 2 {
		t.Errorf("content = %q after %d attempts", content, n)
	}
}

func TestDecodeModules(t *testing.T) {
	tests := []struct {
		name    string
		rec     extract.Record
		max     int
		want    []string
		wantErr bool
	}{
		{
			name: "dedupes case-insensitively",
			rec:  extract.Record{"modules": []any{map[string]any{"title": "A"}, map[string]any{"title": "a"}, map[string]any{"title": "B"}}},
			want: []string{"A", "B"},
		},
		{
			name: "caps at max",
			rec:  extract.Record{"modules": []any{map[string]any{"title": "A"}, map[string]any{"title": "B"}}},
			max:  1,
			want: []string{"A"},
		},
		{
			name:    "no titles",
			rec:     extract.Record{"modules": []any{map[string]any{"description": "x"}}},
			wantErr: true,
		},
		{
			name:    "wrong element type",
			rec:     extract.Record{"modules": []any{"A", "B"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeModules(tt.rec, tt.max)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeModules() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %+v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i].Title != tt.want[i] {
					t.Errorf("got[%d] = %q, want %q", i, got[i].Title, tt.want[i])
				}
			}
		})
	}
}
