package learning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/Abraxas-365/pathway/extract"
	"github.com/Abraxas-365/pathway/llm"
)

// ErrEmptyQuery is returned when a generation is asked for a blank query.
var ErrEmptyQuery = errors.New("learning: query is empty")

// Generator implements the module, topic and content call patterns on top of
// an extract.Extractor.
type Generator struct {
	extractor *extract.Extractor
	opts      *Options
}

// NewGenerator creates a Generator.
func NewGenerator(extractor *extract.Extractor, opts ...Option) *Generator {
	return &Generator{
		extractor: extractor,
		opts:      applyOptions(opts),
	}
}

// GenerateModules asks for the modules of a learning path. The response is
// parsed as one record once the stream ends; a response without any titled
// module is regenerated.
func (g *Generator) GenerateModules(ctx context.Context, query string) ([]Module, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	data := g.data(query, modulesSchema)
	data.Max = g.opts.MaxModules
	req, err := g.request(modulesInstructions, modulesPrompt, data, modulesSchema, true)
	if err != nil {
		return nil, err
	}

	var modules []Module
	req.Accept = func(rec extract.Record) error {
		ms, err := decodeModules(rec, g.opts.MaxModules)
		if err != nil {
			return err
		}
		modules = ms
		return nil
	}

	if _, err := g.extractor.Single(ctx, req, g.extractOptions()...); err != nil {
		return nil, fmt.Errorf("generate modules: %w", err)
	}
	return modules, nil
}

// GenerateTopics streams the topics of one module. onTopic is called for each
// topic as soon as its line is complete.
func (g *Generator) GenerateTopics(ctx context.Context, query string, module Module, onTopic func(Topic)) ([]Topic, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	data := g.data(query, topicSchema)
	data.Module = module.Title
	data.ModuleDescription = module.Description
	topics, err := g.topics(ctx, topicsPrompt, data, onTopic)
	if err != nil {
		return nil, fmt.Errorf("generate topics for %q: %w", module.Title, err)
	}
	return topics, nil
}

// GenerateSubtopics streams the subtopics of one topic with the same
// discipline as GenerateTopics.
func (g *Generator) GenerateSubtopics(ctx context.Context, query string, module Module, topic Topic, onSubtopic func(Topic)) ([]Topic, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	data := g.data(query, topicSchema)
	data.Module = module.Title
	data.Topic = topic.Title
	data.TopicDescription = topic.Description
	topics, err := g.topics(ctx, subtopicsPrompt, data, onSubtopic)
	if err != nil {
		return nil, fmt.Errorf("generate subtopics for %q: %w", topic.Title, err)
	}
	return topics, nil
}

// GenerateContent writes the lesson of one topic. onPreview, if set, receives
// the lesson text as it grows; the returned text is the final parse.
func (g *Generator) GenerateContent(ctx context.Context, query string, module Module, topic Topic, onPreview func(string)) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}

	data := g.data(query, contentSchema)
	data.Module = module.Title
	data.Topic = topic.Title
	data.TopicDescription = topic.Description
	req, err := g.request(contentInstructions, contentPrompt, data, contentSchema, true)
	if err != nil {
		return "", err
	}
	req.Accept = func(rec extract.Record) error {
		if s, _ := rec["content"].(string); strings.TrimSpace(s) == "" {
			return errors.New("content is blank")
		}
		return nil
	}

	var opts []extract.Option
	if onPreview != nil {
		opts = append(opts, extract.WithPartial(onPreview))
	}
	rec, err := g.extractor.Single(ctx, req, g.extractOptions(opts...)...)
	if err != nil {
		return "", fmt.Errorf("generate content for %q: %w", topic.Title, err)
	}
	content, _ := rec["content"].(string)
	return content, nil
}

func (g *Generator) topics(ctx context.Context, prompt *template.Template, data promptData, onTopic func(Topic)) ([]Topic, error) {
	data.Max = g.opts.MaxTopics
	// One object per line; JSON mode would force a single object.
	req, err := g.request(topicsInstructions, prompt, data, topicSchema, false)
	if err != nil {
		return nil, err
	}

	var topics []Topic
	// The extractor dedupes on the raw title; titles differing only in
	// surrounding space or case are the same topic here.
	seen := make(map[string]struct{})
	_, err = g.extractor.Many(ctx, req, func(rec extract.Record) {
		t, err := extract.Decode[Topic](rec)
		if err != nil {
			g.opts.Logger.Warn("dropping undecodable topic", "error", err)
			return
		}
		t.Title = strings.TrimSpace(t.Title)
		key := strings.ToLower(t.Title)
		if _, ok := seen[key]; ok || t.Title == "" {
			return
		}
		seen[key] = struct{}{}
		topics = append(topics, t)
		if onTopic != nil {
			onTopic(t)
		}
	}, g.extractOptions()...)
	if err != nil {
		return nil, err
	}
	return topics, nil
}

func (g *Generator) data(query string, schema *extract.Schema) promptData {
	return promptData{
		Query:    query,
		Language: g.opts.Language,
		Shape:    schema.Describe(),
	}
}

func (g *Generator) request(instructions, prompt *template.Template, data promptData, schema *extract.Schema, jsonMode bool) (extract.Request, error) {
	system, err := render(instructions, data)
	if err != nil {
		return extract.Request{}, fmt.Errorf("render %s: %w", instructions.Name(), err)
	}
	user, err := render(prompt, data)
	if err != nil {
		return extract.Request{}, fmt.Errorf("render %s: %w", prompt.Name(), err)
	}

	chatOpts := append([]llm.Option{}, g.opts.ChatOptions...)
	if jsonMode {
		chatOpts = append(chatOpts, llm.WithJSONMode(true))
	}
	return extract.Request{
		Instructions: system,
		Prompt:       user,
		Schema:       schema,
		ChatOptions:  chatOpts,
	}, nil
}

func (g *Generator) extractOptions(extra ...extract.Option) []extract.Option {
	opts := []extract.Option{extract.WithLogger(g.opts.Logger)}
	if g.opts.RetryLimit > 0 {
		opts = append(opts, extract.WithRetryLimit(g.opts.RetryLimit))
	}
	return append(opts, extra...)
}

// decodeModules keeps the titled modules of rec, without duplicates, up to max.
func decodeModules(rec extract.Record, max int) ([]Module, error) {
	doc, err := extract.Decode[struct {
		Modules []Module `json:"modules"`
	}](rec)
	if err != nil {
		return nil, fmt.Errorf("decode modules: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Modules))
	var modules []Module
	for _, m := range doc.Modules {
		m.Title = strings.TrimSpace(m.Title)
		key := strings.ToLower(m.Title)
		if m.Title == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		modules = append(modules, m)
		if max > 0 && len(modules) == max {
			break
		}
	}
	if len(modules) == 0 {
		return nil, errors.New("no titled module")
	}
	return modules, nil
}
