package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Abraxas-365/pathway/learning"
	"github.com/Abraxas-365/pathway/library"
)

// LibraryRepository implements library.Repository over a pgx connection pool.
// Modules are stored as one JSONB document per exploration.
type LibraryRepository struct {
	pool *pgxpool.Pool
	db   querier
}

// querier is the part of *pgxpool.Pool the repository runs statements on.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ library.Repository = (*LibraryRepository)(nil)

func NewLibraryRepository(ctx context.Context, connString string) (*LibraryRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("error parsing connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error creating connection pool: %w", err)
	}

	return &LibraryRepository{pool: pool, db: pool}, nil
}

// Close releases the connection pool
func (r *LibraryRepository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

const librarySchema = `
CREATE TABLE IF NOT EXISTS explorations (
    id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    query TEXT NOT NULL,
    modules JSONB NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
    PRIMARY KEY (user_id, id)
);

CREATE TABLE IF NOT EXISTS notes (
    id TEXT NOT NULL,
    user_id TEXT NOT NULL,
    exploration_id TEXT NOT NULL,
    topic_title TEXT NOT NULL DEFAULT '',
    body TEXT NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
    PRIMARY KEY (user_id, id)
);

CREATE INDEX IF NOT EXISTS idx_explorations_created_at ON explorations(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notes_exploration_id ON notes(user_id, exploration_id);
`

// InitDB creates the library tables
func (r *LibraryRepository) InitDB(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, librarySchema); err != nil {
		return fmt.Errorf("error creating library tables: %w", err)
	}
	return nil
}

func (r *LibraryRepository) SaveExploration(ctx context.Context, exp *learning.Exploration) error {
	modules, err := json.Marshal(exp.Modules)
	if err != nil {
		return library.NewLibraryError("SaveExploration", exp.ID, err, library.ErrCodeInternal, "failed to encode modules")
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO explorations (id, user_id, query, modules, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, id) DO UPDATE
		SET query = EXCLUDED.query, modules = EXCLUDED.modules, updated_at = EXCLUDED.updated_at
	`, exp.ID, exp.UserID, exp.Query, modules, exp.CreatedAt, exp.UpdatedAt)
	if err != nil {
		return library.NewLibraryError("SaveExploration", exp.ID, err, library.ErrCodeInternal, "failed to save exploration")
	}
	return nil
}

func (r *LibraryRepository) GetExploration(ctx context.Context, userID, id string) (*learning.Exploration, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, query, modules, created_at, updated_at
		FROM explorations
		WHERE user_id = $1 AND id = $2
	`, userID, id)

	exp, err := scanExploration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, library.NewLibraryError("GetExploration", id, nil, library.ErrCodeNotFound, "not found")
	}
	if err != nil {
		return nil, library.NewLibraryError("GetExploration", id, err, library.ErrCodeInternal, "failed to read exploration")
	}
	return exp, nil
}

func (r *LibraryRepository) ListExplorations(ctx context.Context, userID string) ([]learning.Exploration, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, query, modules, created_at, updated_at
		FROM explorations
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, library.NewLibraryError("ListExplorations", userID, err, library.ErrCodeInternal, "failed to list explorations")
	}
	defer rows.Close()

	var out []learning.Exploration
	for rows.Next() {
		exp, err := scanExploration(rows)
		if err != nil {
			return nil, library.NewLibraryError("ListExplorations", userID, err, library.ErrCodeInternal, "failed to read exploration")
		}
		out = append(out, *exp)
	}
	if err := rows.Err(); err != nil {
		return nil, library.NewLibraryError("ListExplorations", userID, err, library.ErrCodeInternal, "failed to list explorations")
	}
	return out, nil
}

func (r *LibraryRepository) DeleteExploration(ctx context.Context, userID, id string) error {
	return r.delete(ctx, "DeleteExploration", `DELETE FROM explorations WHERE user_id = $1 AND id = $2`, userID, id)
}

func (r *LibraryRepository) SaveNote(ctx context.Context, note *library.Note) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notes (id, user_id, exploration_id, topic_title, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, id) DO UPDATE
		SET topic_title = EXCLUDED.topic_title, body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`, note.ID, note.UserID, note.ExplorationID, note.TopicTitle, note.Body, note.CreatedAt, note.UpdatedAt)
	if err != nil {
		return library.NewLibraryError("SaveNote", note.ID, err, library.ErrCodeInternal, "failed to save note")
	}
	return nil
}

func (r *LibraryRepository) GetNote(ctx context.Context, userID, id string) (*library.Note, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, exploration_id, topic_title, body, created_at, updated_at
		FROM notes
		WHERE user_id = $1 AND id = $2
	`, userID, id)

	note, err := scanNote(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, library.NewLibraryError("GetNote", id, nil, library.ErrCodeNotFound, "not found")
	}
	if err != nil {
		return nil, library.NewLibraryError("GetNote", id, err, library.ErrCodeInternal, "failed to read note")
	}
	return note, nil
}

func (r *LibraryRepository) ListNotes(ctx context.Context, userID string) ([]library.Note, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, exploration_id, topic_title, body, created_at, updated_at
		FROM notes
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, library.NewLibraryError("ListNotes", userID, err, library.ErrCodeInternal, "failed to list notes")
	}
	defer rows.Close()

	var out []library.Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, library.NewLibraryError("ListNotes", userID, err, library.ErrCodeInternal, "failed to read note")
		}
		out = append(out, *note)
	}
	if err := rows.Err(); err != nil {
		return nil, library.NewLibraryError("ListNotes", userID, err, library.ErrCodeInternal, "failed to list notes")
	}
	return out, nil
}

func (r *LibraryRepository) DeleteNote(ctx context.Context, userID, id string) error {
	return r.delete(ctx, "DeleteNote", `DELETE FROM notes WHERE user_id = $1 AND id = $2`, userID, id)
}

func (r *LibraryRepository) delete(ctx context.Context, op, query, userID, id string) error {
	tag, err := r.db.Exec(ctx, query, userID, id)
	if err != nil {
		return library.NewLibraryError(op, id, err, library.ErrCodeInternal, "failed to delete")
	}
	if tag.RowsAffected() == 0 {
		return library.NewLibraryError(op, id, nil, library.ErrCodeNotFound, "not found")
	}
	return nil
}

func scanExploration(row pgx.Row) (*learning.Exploration, error) {
	var exp learning.Exploration
	var modules []byte
	if err := row.Scan(&exp.ID, &exp.UserID, &exp.Query, &modules, &exp.CreatedAt, &exp.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(modules, &exp.Modules); err != nil {
		return nil, fmt.Errorf("decode modules: %w", err)
	}
	return &exp, nil
}

func scanNote(row pgx.Row) (*library.Note, error) {
	var note library.Note
	err := row.Scan(&note.ID, &note.UserID, &note.ExplorationID, &note.TopicTitle, &note.Body, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &note, nil
}
