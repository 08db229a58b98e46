package learning

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Abraxas-365/pathway/extract"
)

var (
	// ErrNoStore is returned by operations that need a saved exploration
	// when the Explorer has no Store.
	ErrNoStore = errors.New("learning: no exploration store configured")

	// ErrTopicNotFound is returned when a module or topic title does not
	// match the exploration.
	ErrTopicNotFound = errors.New("learning: topic not found")
)

// Observer receives the progress of an exploration. Every field is optional.
// Callbacks run on the goroutine calling Explore.
type Observer struct {
	OnModules     func(modules []Module)
	OnTopic       func(module int, topic Topic)
	OnModuleDone  func(module int, m Module)
	OnModuleError func(module int, err error)
}

// Explorer builds complete explorations and expands their topics.
type Explorer struct {
	gen   *Generator
	store Store
	opts  *Options
}

// NewExplorer creates an Explorer. store may be nil, in which case
// explorations are not persisted and topics cannot be expanded later.
func NewExplorer(gen *Generator, store Store, opts ...Option) *Explorer {
	return &Explorer{
		gen:   gen,
		store: store,
		opts:  applyOptions(opts),
	}
}

// Explore generates the modules for query and then the topics of each module,
// one module at a time. A module whose topics cannot be generated is kept
// without topics and reported to OnModuleError. Cancellation stops the
// exploration and nothing is saved.
func (x *Explorer) Explore(ctx context.Context, userID, query string, obs Observer) (*Exploration, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("learning: user ID is empty")
	}

	modules, err := x.gen.GenerateModules(ctx, query)
	if err != nil {
		return nil, err
	}

	now := x.opts.Now()
	exp := &Exploration{
		ID:        x.opts.GenerateID(),
		UserID:    userID,
		Query:     strings.TrimSpace(query),
		Modules:   modules,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if obs.OnModules != nil {
		obs.OnModules(append([]Module(nil), modules...))
	}

	for i := range exp.Modules {
		m := &exp.Modules[i]
		topics, err := x.gen.GenerateTopics(ctx, exp.Query, *m, func(t Topic) {
			if obs.OnTopic != nil {
				obs.OnTopic(i, t)
			}
		})
		if err != nil {
			if extract.IsCanceled(err) || ctx.Err() != nil {
				return nil, err
			}
			x.opts.Logger.Warn("module left without topics",
				"exploration_id", exp.ID, "module", m.Title, "error", err)
			if obs.OnModuleError != nil {
				obs.OnModuleError(i, err)
			}
			continue
		}
		m.Topics = topics
		if obs.OnModuleDone != nil {
			obs.OnModuleDone(i, *m)
		}
	}

	if x.store != nil {
		if err := x.store.SaveExploration(ctx, exp); err != nil {
			return exp, fmt.Errorf("save exploration: %w", err)
		}
	}
	x.opts.Logger.Info("exploration generated",
		"exploration_id", exp.ID, "user_id", userID, "modules", len(exp.Modules))
	return exp, nil
}

// ExpandTopic returns the topic with its lesson, generating and saving the
// lesson on first use. onPreview receives the lesson while it is generated.
func (x *Explorer) ExpandTopic(ctx context.Context, userID, explorationID, moduleTitle, topicTitle string, onPreview func(string)) (*Topic, error) {
	exp, m, t, err := x.locate(ctx, userID, explorationID, moduleTitle, topicTitle)
	if err != nil {
		return nil, err
	}
	if t.Content != "" {
		cp := *t
		return &cp, nil
	}

	content, err := x.gen.GenerateContent(ctx, exp.Query, *m, *t, onPreview)
	if err != nil {
		return nil, err
	}
	t.Content = content
	if err := x.save(ctx, exp); err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

// ExpandSubtopics returns the topic with its subtopics, generating and saving
// them on first use. onSubtopic receives each subtopic as it completes.
func (x *Explorer) ExpandSubtopics(ctx context.Context, userID, explorationID, moduleTitle, topicTitle string, onSubtopic func(Topic)) (*Topic, error) {
	exp, m, t, err := x.locate(ctx, userID, explorationID, moduleTitle, topicTitle)
	if err != nil {
		return nil, err
	}
	if len(t.Subtopics) > 0 {
		cp := *t
		return &cp, nil
	}

	subtopics, err := x.gen.GenerateSubtopics(ctx, exp.Query, *m, *t, onSubtopic)
	if err != nil {
		return nil, err
	}
	t.Subtopics = subtopics
	if err := x.save(ctx, exp); err != nil {
		return nil, err
	}
	cp := *t
	return &cp, nil
}

func (x *Explorer) locate(ctx context.Context, userID, explorationID, moduleTitle, topicTitle string) (*Exploration, *Module, *Topic, error) {
	if x.store == nil {
		return nil, nil, nil, ErrNoStore
	}
	exp, err := x.store.GetExploration(ctx, userID, explorationID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get exploration: %w", err)
	}
	m, t, ok := exp.Topic(moduleTitle, topicTitle)
	if !ok {
		return nil, nil, nil, fmt.Errorf("%w: %s / %s", ErrTopicNotFound, moduleTitle, topicTitle)
	}
	return exp, m, t, nil
}

func (x *Explorer) save(ctx context.Context, exp *Exploration) error {
	exp.UpdatedAt = x.opts.Now()
	if err := x.store.SaveExploration(ctx, exp); err != nil {
		return fmt.Errorf("save exploration: %w", err)
	}
	return nil
}
