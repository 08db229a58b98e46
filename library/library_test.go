package library_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Abraxas-365/pathway/adapters/inmemory"
	"github.com/Abraxas-365/pathway/learning"
	"github.com/Abraxas-365/pathway/library"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newLibrary() (*library.Library, *inmemory.DataStore) {
	store := inmemory.NewDataStore()
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := 0
	lib := library.New(library.NewBlobRepository(store),
		library.WithClock(c.now),
		library.WithGenerateID(func() string {
			n++
			return fmt.Sprintf("note-%d", n)
		}),
		library.WithShareTTL(time.Hour),
	)
	return lib, store
}

func exploration(id, user string, created time.Time) *learning.Exploration {
	return &learning.Exploration{
		ID:        id,
		UserID:    user,
		Query:     "query " + id,
		Modules:   []learning.Module{{Title: "Basics", Topics: []learning.Topic{{Title: "Types", Relevance: 7}}}},
		CreatedAt: created,
	}
}

func TestLibrary_Explorations(t *testing.T) {
	ctx := context.Background()
	lib, store := newLibrary()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		if err := lib.SaveExploration(ctx, exploration(id, "alice", base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveExploration(%s) error = %v", id, err)
		}
	}
	if err := lib.SaveExploration(ctx, exploration("z", "bob", base)); err != nil {
		t.Fatalf("SaveExploration(z) error = %v", err)
	}

	if ok, _ := store.Exists(ctx, "users/alice/explorations/a.json"); !ok {
		t.Error("exploration document not stored under the user's prefix")
	}

	got, err := lib.GetExploration(ctx, "alice", "b")
	if err != nil {
		t.Fatalf("GetExploration() error = %v", err)
	}
	if got.Query != "query b" || got.Modules[0].Topics[0].Relevance != 7 || !got.UpdatedAt.Equal(got.CreatedAt) {
		t.Errorf("exploration = %+v", got)
	}

	history, err := lib.ListHistory(ctx, "alice", 2)
	if err != nil {
		t.Fatalf("ListHistory() error = %v", err)
	}
	if len(history) != 2 || history[0].ID != "c" || history[1].ID != "b" {
		t.Errorf("history = %v", ids(history))
	}

	if _, err := lib.GetExploration(ctx, "bob", "a"); !library.IsNotFound(err) {
		t.Errorf("cross-user GetExploration() error = %v, want not found", err)
	}
}

func TestLibrary_Notes(t *testing.T) {
	ctx := context.Background()
	lib, _ := newLibrary()
	for _, id := range []string{"a", "b"} {
		if err := lib.SaveExploration(ctx, exploration(id, "alice", time.Time{})); err != nil {
			t.Fatal(err)
		}
	}

	n1, err := lib.AddNote(ctx, "alice", "a", " Types ", "remember zero values")
	if err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}
	if n1.ID != "note-1" || n1.TopicTitle != "Types" || n1.ExplorationID != "a" {
		t.Errorf("note = %+v", n1)
	}
	if _, err := lib.AddNote(ctx, "alice", "b", "", "second"); err != nil {
		t.Fatal(err)
	}
	if _, err := lib.AddNote(ctx, "alice", "a", "", "third"); err != nil {
		t.Fatal(err)
	}

	updated, err := lib.UpdateNote(ctx, "alice", n1.ID, "zero values are useful")
	if err != nil {
		t.Fatalf("UpdateNote() error = %v", err)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) {
		t.Errorf("UpdatedAt %v not after CreatedAt %v", updated.UpdatedAt, updated.CreatedAt)
	}

	notes, err := lib.ListNotes(ctx, "alice", "a")
	if err != nil {
		t.Fatalf("ListNotes() error = %v", err)
	}
	if len(notes) != 2 || notes[0].Body != "zero values are useful" || notes[1].Body != "third" {
		t.Errorf("notes = %+v", notes)
	}
	all, _ := lib.ListNotes(ctx, "alice", "")
	if len(all) != 3 {
		t.Errorf("all notes = %d, want 3", len(all))
	}

	if err := lib.DeleteNote(ctx, "alice", "note-3"); err != nil {
		t.Fatalf("DeleteNote() error = %v", err)
	}
	if err := lib.DeleteNote(ctx, "alice", "note-3"); !library.IsNotFound(err) {
		t.Errorf("second DeleteNote() error = %v, want not found", err)
	}
}

func TestLibrary_DeleteExplorationRemovesNotes(t *testing.T) {
	ctx := context.Background()
	lib, _ := newLibrary()
	_ = lib.SaveExploration(ctx, exploration("a", "alice", time.Time{}))
	_ = lib.SaveExploration(ctx, exploration("b", "alice", time.Time{}))
	_, _ = lib.AddNote(ctx, "alice", "a", "", "one")
	_, _ = lib.AddNote(ctx, "alice", "b", "", "two")

	if err := lib.DeleteExploration(ctx, "alice", "a"); err != nil {
		t.Fatalf("DeleteExploration() error = %v", err)
	}
	if _, err := lib.GetExploration(ctx, "alice", "a"); !library.IsNotFound(err) {
		t.Errorf("GetExploration() error = %v, want not found", err)
	}
	notes, _ := lib.ListNotes(ctx, "alice", "")
	if len(notes) != 1 || notes[0].ExplorationID != "b" {
		t.Errorf("remaining notes = %+v", notes)
	}
	if err := lib.DeleteExploration(ctx, "alice", "a"); !library.IsNotFound(err) {
		t.Errorf("second DeleteExploration() error = %v, want not found", err)
	}
}

func TestLibrary_InvalidInput(t *testing.T) {
	ctx := context.Background()
	lib, _ := newLibrary()
	_ = lib.SaveExploration(ctx, exploration("a", "alice", time.Time{}))

	tests := []struct {
		name string
		call func() error
	}{
		{"nil exploration", func() error { return lib.SaveExploration(ctx, nil) }},
		{"missing user", func() error { return lib.SaveExploration(ctx, exploration("x", "", time.Time{})) }},
		{"path in id", func() error { return lib.SaveExploration(ctx, exploration("../x", "alice", time.Time{})) }},
		{"blank note", func() error { _, err := lib.AddNote(ctx, "alice", "a", "", "  "); return err }},
		{"blank update", func() error { _, err := lib.UpdateNote(ctx, "alice", "note-1", ""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if err == nil {
				t.Fatal("expected error")
			}
			if library.IsNotFound(err) {
				t.Errorf("error = %v, want invalid input", err)
			}
		})
	}

	if _, err := lib.AddNote(ctx, "alice", "missing", "", "body"); !library.IsNotFound(err) {
		t.Errorf("AddNote() on missing exploration error = %v, want not found", err)
	}
}

func TestLibrary_RejectsKeysOutsideUserSpace(t *testing.T) {
	ctx := context.Background()
	lib, _ := newLibrary()
	_ = lib.SaveExploration(ctx, exploration("a", "victim", time.Time{}))
	_ = lib.SaveExploration(ctx, exploration("b", "attacker", time.Time{}))
	n, err := lib.AddNote(ctx, "victim", "a", "Types", "mine")
	if err != nil {
		t.Fatalf("AddNote() error = %v", err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"delete note", func() error { return lib.DeleteNote(ctx, "attacker", "../../victim/notes/"+n.ID) }},
		{"delete exploration", func() error { return lib.DeleteExploration(ctx, "attacker", "../../victim/explorations/a") }},
		{"list notes", func() error { _, err := lib.ListNotes(ctx, "../victim", ""); return err }},
		{"list history", func() error { _, err := lib.ListHistory(ctx, "..", 0); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var libErr *library.LibraryError
			if !errors.As(err, &libErr) || libErr.Code != library.ErrCodeInvalidInput {
				t.Errorf("error = %v, want %s", err, library.ErrCodeInvalidInput)
			}
		})
	}

	notes, err := lib.ListNotes(ctx, "victim", "")
	if err != nil {
		t.Fatalf("ListNotes() error = %v", err)
	}
	if len(notes) != 1 || notes[0].ID != n.ID {
		t.Errorf("victim notes = %+v, want the original note", notes)
	}
	if _, err := lib.GetExploration(ctx, "victim", "a"); err != nil {
		t.Errorf("victim exploration lost: %v", err)
	}
}

func TestLibrary_ShareExploration(t *testing.T) {
	ctx := context.Background()
	lib, _ := newLibrary()
	_ = lib.SaveExploration(ctx, exploration("a", "alice", time.Time{}))

	link, err := lib.ShareExploration(ctx, "alice", "a")
	if err != nil {
		t.Fatalf("ShareExploration() error = %v", err)
	}
	if !strings.HasPrefix(link, "mem:///users/alice/explorations/a.json") || !strings.Contains(link, "expires=3600") {
		t.Errorf("link = %q", link)
	}
	if _, err := lib.ShareExploration(ctx, "bob", "a"); !library.IsNotFound(err) {
		t.Errorf("cross-user ShareExploration() error = %v, want not found", err)
	}
}

func TestLibrary_ImplementsExplorationStore(t *testing.T) {
	var _ learning.Store = library.New(library.NewBlobRepository(inmemory.NewDataStore()))
}

func ids(exps []learning.Exploration) []string {
	out := make([]string, len(exps))
	for i, e := range exps {
		out[i] = e.ID
	}
	return out
}
