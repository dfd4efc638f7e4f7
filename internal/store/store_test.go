package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/felixgeelhaar/fable/internal/game"
	"github.com/felixgeelhaar/fable/internal/provider"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:", bolt.New(bolt.NewConsoleHandler(io.Discard)))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testSnapshot(id string, lastPlayed time.Time) *Snapshot {
	return &Snapshot{
		ID:         id,
		Title:      "The Waystone Inn",
		LastPlayed: lastPlayed,
		Theme:      game.ThemeFantasy,
		History: []game.HistoryEntry{
			{Description: "You wake in a dim inn.", Image: "img-1"},
		},
		CurrentScene: &game.Scene{
			Title:       "The Waystone Inn",
			Description: "You wake in a dim inn.",
			Choices:     []string{"Read the note", "Go downstairs"},
			ImagePrompt: "a dim inn room",
			Theme:       game.ThemeFantasy,
		},
		CurrentImage: "img-1",
		Inventory:    []string{"rusty key"},
		WorldState:   map[string]string{"time_of_day": "night"},
		NPCs:         []game.NPC{{Name: "Innkeeper", Description: "weathered", Dialogue: "Sleep well?"}},
		Conversation: json.RawMessage(`[{"role":"user","content":"begin"}]`),
		TextProvider: provider.Config{Kind: provider.KindOllama, Model: "llama3.2"},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	snap := testSnapshot("save-1", time.Now().UTC().Truncate(time.Second))
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Load(ctx, "save-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Version != SnapshotVersion {
		t.Errorf("Expected version %d, got %d", SnapshotVersion, got.Version)
	}
	if got.Title != snap.Title || !got.LastPlayed.Equal(snap.LastPlayed) {
		t.Errorf("Metadata mismatch: %+v", got)
	}
	if len(got.History) != 1 || got.History[0].Description != snap.History[0].Description {
		t.Errorf("History mismatch: %+v", got.History)
	}
	if got.WorldState["time_of_day"] != "night" {
		t.Errorf("WorldState mismatch: %v", got.WorldState)
	}
	if got.NPCs[0].Name != "Innkeeper" {
		t.Errorf("NPCs mismatch: %v", got.NPCs)
	}
	if string(got.Conversation) != string(snap.Conversation) {
		t.Errorf("Conversation mismatch: %s", got.Conversation)
	}
	if got.TextProvider.Kind != provider.KindOllama {
		t.Errorf("Provider config mismatch: %+v", got.TextProvider)
	}
}

func TestSaveIsUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	snap := testSnapshot("save-1", time.Now())
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	snap.Title = "A Darker Turn"
	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Second save failed: %v", err)
	}

	got, err := s.Load(ctx, "save-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Title != "A Darker Turn" {
		t.Errorf("Expected overwritten title, got '%s'", got.Title)
	}

	list, _ := s.List(ctx)
	if len(list) != 1 {
		t.Errorf("Expected 1 save after upsert, got %d", len(list))
	}
}

func TestListOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	// Inserted out of play order on purpose.
	for _, tc := range []struct {
		id  string
		age time.Duration
	}{
		{"middle", -time.Hour},
		{"newest", 0},
		{"oldest", -24 * time.Hour},
	} {
		if err := s.Save(ctx, testSnapshot(tc.id, base.Add(tc.age))); err != nil {
			t.Fatalf("Save %s failed: %v", tc.id, err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("Expected 3 saves, got %d", len(list))
	}
	for i, want := range []string{"newest", "middle", "oldest"} {
		if list[i].ID != want {
			t.Errorf("Position %d: expected %s, got %s", i, want, list[i].ID)
		}
	}
	if list[0].Turns != 1 {
		t.Errorf("Expected turn count in summary, got %d", list[0].Turns)
	}
}

func TestListSkipsCorruptRecords(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, testSnapshot("good", time.Now())); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := s.db.Exec(`INSERT INTO saves (id, data) VALUES ('bad', ?)`, []byte("not zlib")); err != nil {
		t.Fatalf("Inserting corrupt record failed: %v", err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != "good" {
		t.Errorf("Expected corrupt record skipped, got %v", list)
	}
}

func TestLoadNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Load(context.Background(), "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, testSnapshot("save-1", time.Now())); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := s.Delete(ctx, "save-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Load(ctx, "save-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	// Deleting a missing id is not an error.
	if err := s.Delete(ctx, "save-1"); err != nil {
		t.Errorf("Second delete failed: %v", err)
	}
}

func TestSnapshotMigration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	t.Run("V1Upgraded", func(t *testing.T) {
		v1 := []byte(`{"version":1,"id":"old","title":"Legacy","lastPlayed":"2024-06-01T12:00:00Z","theme":"NOIR","history":[]}`)
		blob, err := compress(v1)
		if err != nil {
			t.Fatalf("compress failed: %v", err)
		}
		if _, err := s.db.Exec(`INSERT INTO saves (id, data) VALUES ('old', ?)`, blob); err != nil {
			t.Fatalf("Inserting v1 record failed: %v", err)
		}

		got, err := s.Load(ctx, "old")
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if got.Version != SnapshotVersion {
			t.Errorf("Expected upgraded version %d, got %d", SnapshotVersion, got.Version)
		}
		if got.Inventory == nil || got.WorldState == nil || got.NPCs == nil {
			t.Error("Expected migration to fill missing collections")
		}
	})

	t.Run("FutureVersionRejected", func(t *testing.T) {
		future := []byte(`{"version":99,"id":"tomorrow"}`)
		blob, _ := compress(future)
		if _, err := s.db.Exec(`INSERT INTO saves (id, data) VALUES ('tomorrow', ?)`, blob); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if _, err := s.Load(ctx, "tomorrow"); err == nil {
			t.Error("Expected error for future schema version")
		}
	})
}

func TestConfig(t *testing.T) {
	s := openTestStore(t)

	if err := s.SetConfig("gemini.api_key", "secret"); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}
	if err := s.SetConfig("gemini.api_key", "rotated"); err != nil {
		t.Fatalf("SetConfig overwrite failed: %v", err)
	}

	val, err := s.GetConfig("gemini.api_key")
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if val != "rotated" {
		t.Errorf("Expected 'rotated', got '%s'", val)
	}

	if val, _ := s.GetConfig("missing"); val != "" {
		t.Errorf("Expected empty value for unset key, got '%s'", val)
	}
}

func TestCompressRoundTrip(t *testing.T) {
	in := []byte(`{"description":"a long narrative that compresses well because words repeat, repeat, repeat"}`)
	blob, err := compress(in)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	out, err := decompress(blob)
	if err != nil {
		t.Fatalf("decompress failed: %v", err)
	}
	if string(out) != string(in) {
		t.Errorf("Round trip mismatch: %s", out)
	}

	if _, err := decompress([]byte("garbage")); err == nil {
		t.Error("Expected error inflating garbage")
	}
}
