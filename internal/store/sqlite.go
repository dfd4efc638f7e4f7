package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/felixgeelhaar/bolt/v3"
	_ "modernc.org/sqlite"
)

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS saves (
	id   TEXT PRIMARY KEY,
	data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS configuration (
	key   TEXT PRIMARY KEY,
	value TEXT
);
`

// SQLiteStore implements Storage backed by a SQLite database. Each save is a
// single compressed blob keyed by id.
type SQLiteStore struct {
	db  *sql.DB
	log *bolt.Logger
}

// Open creates or opens the database at dbPath and runs migrations. Use
// ":memory:" for tests. Failures surface as ErrUnavailable.
func Open(dbPath string, log *bolt.Logger) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return &SQLiteStore{db: db, log: log}, nil
}

func runMigrations(db *sql.DB) error {
	var current int
	row := db.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&current); err != nil {
		// Table doesn't exist or is empty: fresh database.
		current = 0
	}

	if current >= schemaVersion {
		return nil
	}

	if current < 1 {
		if _, err := db.Exec(schemaV1); err != nil {
			return err
		}
	}

	_, err := db.Exec(`
		DELETE FROM schema_version;
		INSERT INTO schema_version (version) VALUES (?);
	`, schemaVersion)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	snap.Version = SnapshotVersion

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	blob, err := compress(raw)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO saves (id, data) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		snap.ID, blob,
	)
	if err != nil {
		return fmt.Errorf("writing save %s: %w", snap.ID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM saves`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}

		snap, err := s.decode(blob)
		if err != nil {
			// One bad record must not sink the whole listing.
			s.log.Warn().Str("save", id).Err(err).Msg("skipping unreadable save")
			continue
		}
		summaries = append(summaries, snap.summary())
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastPlayed.After(summaries[j].LastPlayed)
	})
	return summaries, nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	var blob []byte
	row := s.db.QueryRowContext(ctx, `SELECT data FROM saves WHERE id = ?`, id)
	if err := row.Scan(&blob); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading save %s: %w", id, err)
	}
	return s.decode(blob)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM saves WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting save %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) decode(blob []byte) (*Snapshot, error) {
	raw, err := decompress(blob)
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(raw)
}

// SetConfig stores a configuration value, overwriting any existing one.
func (s *SQLiteStore) SetConfig(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO configuration (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetConfig returns the stored value for key, or "" when unset.
func (s *SQLiteStore) GetConfig(key string) (string, error) {
	var value string
	row := s.db.QueryRow(`SELECT value FROM configuration WHERE key = ?`, key)
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}
