package library

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Abraxas-365/pathway/learning"
	"github.com/Abraxas-365/pathway/storage"
)

// BlobRepository stores explorations and notes as JSON documents in a
// storage.DataStore:
//
//	users/<user>/explorations/<id>.json
//	users/<user>/notes/<id>.json
type BlobRepository struct {
	store storage.DataStore
}

// NewBlobRepository creates a BlobRepository over store.
func NewBlobRepository(store storage.DataStore) *BlobRepository {
	return &BlobRepository{store: store}
}

var _ interface {
	Repository
	Sharer
} = (*BlobRepository)(nil)

func explorationKey(userID, id string) string {
	return path.Join("users", userID, "explorations", id+".json")
}

func noteKey(userID, id string) string {
	return path.Join("users", userID, "notes", id+".json")
}

func (r *BlobRepository) SaveExploration(ctx context.Context, exp *learning.Exploration) error {
	if err := checkIDs("SaveExploration", exp.UserID, exp.ID); err != nil {
		return err
	}
	return r.put(ctx, "SaveExploration", exp.ID, explorationKey(exp.UserID, exp.ID), exp)
}

func (r *BlobRepository) GetExploration(ctx context.Context, userID, id string) (*learning.Exploration, error) {
	if err := checkIDs("GetExploration", userID, id); err != nil {
		return nil, err
	}
	var exp learning.Exploration
	if err := r.get(ctx, "GetExploration", id, explorationKey(userID, id), &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}

func (r *BlobRepository) ListExplorations(ctx context.Context, userID string) ([]learning.Exploration, error) {
	if err := checkIDs("ListExplorations", userID); err != nil {
		return nil, err
	}
	var out []learning.Exploration
	err := r.list(ctx, "ListExplorations", path.Join("users", userID, "explorations")+"/", func(key string) error {
		var exp learning.Exploration
		if err := r.get(ctx, "ListExplorations", key, key, &exp); err != nil {
			return err
		}
		out = append(out, exp)
		return nil
	})
	return out, err
}

func (r *BlobRepository) DeleteExploration(ctx context.Context, userID, id string) error {
	if err := checkIDs("DeleteExploration", userID, id); err != nil {
		return err
	}
	return r.delete(ctx, "DeleteExploration", id, explorationKey(userID, id))
}

func (r *BlobRepository) SaveNote(ctx context.Context, note *Note) error {
	if err := checkIDs("SaveNote", note.UserID, note.ID); err != nil {
		return err
	}
	return r.put(ctx, "SaveNote", note.ID, noteKey(note.UserID, note.ID), note)
}

func (r *BlobRepository) GetNote(ctx context.Context, userID, id string) (*Note, error) {
	if err := checkIDs("GetNote", userID, id); err != nil {
		return nil, err
	}
	var note Note
	if err := r.get(ctx, "GetNote", id, noteKey(userID, id), &note); err != nil {
		return nil, err
	}
	return &note, nil
}

func (r *BlobRepository) ListNotes(ctx context.Context, userID string) ([]Note, error) {
	if err := checkIDs("ListNotes", userID); err != nil {
		return nil, err
	}
	var out []Note
	err := r.list(ctx, "ListNotes", path.Join("users", userID, "notes")+"/", func(key string) error {
		var note Note
		if err := r.get(ctx, "ListNotes", key, key, &note); err != nil {
			return err
		}
		out = append(out, note)
		return nil
	})
	return out, err
}

func (r *BlobRepository) DeleteNote(ctx context.Context, userID, id string) error {
	if err := checkIDs("DeleteNote", userID, id); err != nil {
		return err
	}
	return r.delete(ctx, "DeleteNote", id, noteKey(userID, id))
}

// ShareURL returns a presigned GET URL of the exploration document.
func (r *BlobRepository) ShareURL(ctx context.Context, userID, explorationID string, expires time.Duration) (string, error) {
	if err := checkIDs("ShareURL", userID, explorationID); err != nil {
		return "", err
	}
	u, err := r.store.GetPresignedGetURL(ctx, explorationKey(userID, explorationID), expires)
	if err != nil {
		return "", NewLibraryError("ShareURL", explorationID, err, ErrCodeInternal, "failed to presign exploration")
	}
	return u.URL, nil
}

func (r *BlobRepository) put(ctx context.Context, op, id, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return NewLibraryError(op, id, err, ErrCodeInternal, "failed to encode document")
	}
	if err := r.store.Put(ctx, key, bytes.NewReader(data), storage.WithContentType("application/json")); err != nil {
		return NewLibraryError(op, id, err, ErrCodeInternal, "failed to store document")
	}
	return nil
}

func (r *BlobRepository) get(ctx context.Context, op, id, key string, v any) error {
	rc, err := r.store.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return NewLibraryError(op, id, err, ErrCodeNotFound, "not found")
		}
		return NewLibraryError(op, id, err, ErrCodeInternal, "failed to read document")
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return NewLibraryError(op, id, err, ErrCodeInternal, "failed to read document")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewLibraryError(op, id, err, ErrCodeInternal, "failed to decode document")
	}
	return nil
}

func (r *BlobRepository) delete(ctx context.Context, op, id, key string) error {
	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return NewLibraryError(op, id, err, ErrCodeInternal, "failed to check document")
	}
	if !exists {
		return NewLibraryError(op, id, nil, ErrCodeNotFound, "not found")
	}
	if err := r.store.Delete(ctx, key); err != nil {
		return NewLibraryError(op, id, err, ErrCodeInternal, "failed to delete document")
	}
	return nil
}

func (r *BlobRepository) list(ctx context.Context, op, prefix string, fn func(key string) error) error {
	objects, err := r.store.List(ctx, prefix)
	if err != nil {
		return NewLibraryError(op, prefix, err, ErrCodeInternal, "failed to list documents")
	}
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		if err := fn(obj.Key); err != nil {
			return err
		}
	}
	return nil
}

// checkIDs rejects IDs that would escape the user's key space. Every key is
// built from checked IDs only.
func checkIDs(op string, ids ...string) error {
	for _, s := range ids {
		if s == "" || strings.ContainsAny(s, "/\\") || s == "." || s == ".." {
			return NewLibraryError(op, s, nil, ErrCodeInvalidInput, fmt.Sprintf("invalid id %q", s))
		}
	}
	return nil
}
