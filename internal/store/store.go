// Package store is the persistence gateway: a durable mapping from a save id
// to a compressed snapshot of one adventure.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fable/internal/game"
	"github.com/felixgeelhaar/fable/internal/image"
	"github.com/felixgeelhaar/fable/internal/provider"
)

var (
	// ErrUnavailable means the persistence layer itself is inaccessible.
	ErrUnavailable = errors.New("save storage unavailable")

	// ErrNotFound means no save exists under the requested id.
	ErrNotFound = errors.New("save not found")
)

// SnapshotVersion is the current save schema version. Version 2 made
// imagePrompt and inventory part of the provider contract; version 1 saves
// are upgraded on read. Versions above current fail loudly rather than being
// guessed at.
const SnapshotVersion = 2

// Snapshot is the complete persisted state of one adventure: everything
// needed to reconstruct the session verbatim, including the serialized
// conversation context. Provider credentials are deliberately absent; they
// are re-resolved from configuration on load.
type Snapshot struct {
	Version       int                 `json:"version"`
	ID            string              `json:"id"`
	Title         string              `json:"title"`
	LastPlayed    time.Time           `json:"lastPlayed"`
	Theme         game.Theme          `json:"theme"`
	History       []game.HistoryEntry `json:"history"`
	CurrentScene  *game.Scene         `json:"currentScene"`
	CurrentImage  string              `json:"currentImage"`
	Inventory     []string            `json:"inventory"`
	WorldState    map[string]string   `json:"worldState"`
	NPCs          []game.NPC          `json:"npcs"`
	Conversation  json.RawMessage     `json:"conversation"`
	TextProvider  provider.Config     `json:"textProvider"`
	ImageProvider image.Config        `json:"imageProvider"`
}

// Summary is the listing row for the load screen.
type Summary struct {
	ID         string
	Title      string
	LastPlayed time.Time
	Theme      game.Theme
	Turns      int
}

// Storage is the persistence interface.
//
// List decompresses every record to sort by last-played; there is no
// secondary index. That is O(saves) per call and fine at human-playtime
// scale.
type Storage interface {
	// Save upserts the snapshot under its id.
	Save(ctx context.Context, snap *Snapshot) error

	// List returns summaries of all saves, most recently played first.
	// Individually corrupt records are skipped, not fatal.
	List(ctx context.Context) ([]Summary, error)

	// Load returns the snapshot for id, or ErrNotFound.
	Load(ctx context.Context, id string) (*Snapshot, error)

	// Delete removes the save for id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error

	// SetConfig and GetConfig manage persisted key/value configuration.
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)

	Close() error
}

// decodeSnapshot unmarshals a raw snapshot and applies the version-migration
// policy.
func decodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupt snapshot: %w", err)
	}

	switch {
	case snap.Version > SnapshotVersion:
		return nil, fmt.Errorf("save %s was written by a newer version (schema %d, supported %d)",
			snap.ID, snap.Version, SnapshotVersion)
	case snap.Version < SnapshotVersion:
		migrateSnapshot(&snap)
	}
	return &snap, nil
}

// migrateSnapshot upgrades older snapshots in place. Version 1 predates the
// inventory and imagePrompt contract fields; missing values get defaults,
// and VisualPrompt already falls back to the description for scenes with no
// image prompt.
func migrateSnapshot(snap *Snapshot) {
	if snap.Inventory == nil {
		snap.Inventory = []string{}
	}
	if snap.WorldState == nil {
		snap.WorldState = map[string]string{}
	}
	if snap.NPCs == nil {
		snap.NPCs = []game.NPC{}
	}
	snap.Version = SnapshotVersion
}

func (s *Snapshot) summary() Summary {
	return Summary{
		ID:         s.ID,
		Title:      s.Title,
		LastPlayed: s.LastPlayed,
		Theme:      s.Theme,
		Turns:      len(s.History),
	}
}
