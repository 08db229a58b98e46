// Package learning generates learning paths from a topic query: a list of
// modules, the topics of each module, and the detailed content of a topic.
// Every step streams through extract so callers can render results as they
// arrive.
package learning

import (
	"context"
	"strings"
	"time"
)

// Topic is one learning unit within a module.
type Topic struct {
	Title       string  `json:"title"`
	Relevance   float64 `json:"relevance"`
	Description string  `json:"description"`
	Content     string  `json:"content,omitempty"`
	Subtopics   []Topic `json:"subtopics,omitempty"`
}

// Module groups related topics of a learning path.
type Module struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Topics      []Topic `json:"topics,omitempty"`
}

// Exploration is one query of one user with the modules generated for it.
type Exploration struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Query     string    `json:"query"`
	Modules   []Module  `json:"modules"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Module returns the module with the given title, compared case-insensitively.
func (e *Exploration) Module(title string) (*Module, bool) {
	for i := range e.Modules {
		if strings.EqualFold(e.Modules[i].Title, title) {
			return &e.Modules[i], true
		}
	}
	return nil, false
}

// Topic returns a topic of the named module.
func (e *Exploration) Topic(moduleTitle, topicTitle string) (*Module, *Topic, bool) {
	m, ok := e.Module(moduleTitle)
	if !ok {
		return nil, nil, false
	}
	for i := range m.Topics {
		if strings.EqualFold(m.Topics[i].Title, topicTitle) {
			return m, &m.Topics[i], true
		}
	}
	return m, nil, false
}

// Store persists explorations. library.Library implements it.
type Store interface {
	SaveExploration(ctx context.Context, exp *Exploration) error
	GetExploration(ctx context.Context, userID, id string) (*Exploration, error)
}
