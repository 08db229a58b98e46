// Package library keeps the explorations of each user together with the
// notes taken on them.
package library

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/Abraxas-365/pathway/learning"
)

// Note is a user's annotation on an exploration, optionally tied to a topic.
type Note struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	ExplorationID string    `json:"exploration_id"`
	TopicTitle    string    `json:"topic_title,omitempty"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Repository persists explorations and notes. Every lookup is scoped to the
// owning user; a record of another user is reported as not found.
type Repository interface {
	SaveExploration(ctx context.Context, exp *learning.Exploration) error
	GetExploration(ctx context.Context, userID, id string) (*learning.Exploration, error)
	ListExplorations(ctx context.Context, userID string) ([]learning.Exploration, error)
	DeleteExploration(ctx context.Context, userID, id string) error

	SaveNote(ctx context.Context, note *Note) error
	GetNote(ctx context.Context, userID, id string) (*Note, error)
	ListNotes(ctx context.Context, userID string) ([]Note, error)
	DeleteNote(ctx context.Context, userID, id string) error
}

// Sharer is implemented by repositories that can hand out read-only links.
type Sharer interface {
	ShareURL(ctx context.Context, userID, explorationID string, expires time.Duration) (string, error)
}

var _ learning.Store = (*Library)(nil)

// Library is the per-user history of explorations and notes.
type Library struct {
	repo Repository
	opts *Options
}

// New creates a Library over repo.
func New(repo Repository, opts ...Option) *Library {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &Library{
		repo: repo,
		opts: options,
	}
}

// SaveExploration creates or replaces an exploration.
func (l *Library) SaveExploration(ctx context.Context, exp *learning.Exploration) error {
	if exp == nil || exp.ID == "" || exp.UserID == "" {
		return NewLibraryError("SaveExploration", "", nil, ErrCodeInvalidInput, "exploration needs an ID and a user ID")
	}
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = l.opts.Now()
	}
	if exp.UpdatedAt.IsZero() {
		exp.UpdatedAt = exp.CreatedAt
	}
	return l.repo.SaveExploration(ctx, exp)
}

// GetExploration retrieves one exploration of userID.
func (l *Library) GetExploration(ctx context.Context, userID, id string) (*learning.Exploration, error) {
	return l.repo.GetExploration(ctx, userID, id)
}

// ListHistory returns the explorations of userID, newest first. limit <= 0
// returns all of them.
func (l *Library) ListHistory(ctx context.Context, userID string, limit int) ([]learning.Exploration, error) {
	exps, err := l.repo.ListExplorations(ctx, userID)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(exps, func(a, b learning.Exploration) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(exps) > limit {
		exps = exps[:limit]
	}
	return exps, nil
}

// DeleteExploration removes an exploration and the notes taken on it.
func (l *Library) DeleteExploration(ctx context.Context, userID, id string) error {
	if _, err := l.repo.GetExploration(ctx, userID, id); err != nil {
		return err
	}
	notes, err := l.repo.ListNotes(ctx, userID)
	if err != nil {
		return err
	}
	for _, n := range notes {
		if n.ExplorationID != id {
			continue
		}
		if err := l.repo.DeleteNote(ctx, userID, n.ID); err != nil && !IsNotFound(err) {
			return err
		}
	}
	if err := l.repo.DeleteExploration(ctx, userID, id); err != nil {
		return err
	}
	l.opts.Logger.Info("exploration deleted", "user_id", userID, "exploration_id", id)
	return nil
}

// AddNote attaches a note to an exploration of userID. topicTitle may be empty.
func (l *Library) AddNote(ctx context.Context, userID, explorationID, topicTitle, body string) (*Note, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, NewLibraryError("AddNote", explorationID, nil, ErrCodeInvalidInput, "note body is empty")
	}
	if _, err := l.repo.GetExploration(ctx, userID, explorationID); err != nil {
		return nil, err
	}

	now := l.opts.Now()
	note := &Note{
		ID:            l.opts.GenerateID(),
		UserID:        userID,
		ExplorationID: explorationID,
		TopicTitle:    strings.TrimSpace(topicTitle),
		Body:          body,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.repo.SaveNote(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// UpdateNote replaces the body of a note.
func (l *Library) UpdateNote(ctx context.Context, userID, noteID, body string) (*Note, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, NewLibraryError("UpdateNote", noteID, nil, ErrCodeInvalidInput, "note body is empty")
	}
	note, err := l.repo.GetNote(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	note.Body = body
	note.UpdatedAt = l.opts.Now()
	if err := l.repo.SaveNote(ctx, note); err != nil {
		return nil, err
	}
	return note, nil
}

// ListNotes returns the notes of userID in creation order. An empty
// explorationID returns the notes of every exploration.
func (l *Library) ListNotes(ctx context.Context, userID, explorationID string) ([]Note, error) {
	notes, err := l.repo.ListNotes(ctx, userID)
	if err != nil {
		return nil, err
	}
	if explorationID != "" {
		notes = slices.DeleteFunc(notes, func(n Note) bool {
			return n.ExplorationID != explorationID
		})
	}
	slices.SortStableFunc(notes, func(a, b Note) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return notes, nil
}

// DeleteNote removes one note.
func (l *Library) DeleteNote(ctx context.Context, userID, noteID string) error {
	return l.repo.DeleteNote(ctx, userID, noteID)
}

// ShareExploration returns a read-only link to an exploration, valid for the
// configured share TTL.
func (l *Library) ShareExploration(ctx context.Context, userID, id string) (string, error) {
	sharer, ok := l.repo.(Sharer)
	if !ok {
		return "", NewLibraryError("ShareExploration", id, nil, ErrCodeUnsupported, "repository cannot share explorations")
	}
	if _, err := l.repo.GetExploration(ctx, userID, id); err != nil {
		return "", err
	}
	return sharer.ShareURL(ctx, userID, id, l.opts.ShareTTL)
}
