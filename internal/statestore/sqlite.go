package statestore

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const pointerSchema = `
CREATE TABLE IF NOT EXISTS pointers (
	role         TEXT PRIMARY KEY,
	devbox_id    TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	blueprint_id TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMP NOT NULL
)`

// SQLiteStore keeps pointers in an embedded sqlite database, for
// installations that want durable state shared across working directories.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and ensures
// the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}
	if _, err := db.Exec(pointerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(role string) (string, error) {
	return s.lookup(role, "devbox_id")
}

func (s *SQLiteStore) Set(role, id string) error {
	return s.upsert(role, "devbox_id", id)
}

func (s *SQLiteStore) GetURL(role string) (string, error) {
	return s.lookup(role, "url")
}

func (s *SQLiteStore) SetURL(role, url string) error {
	return s.upsert(role, "url", url)
}

func (s *SQLiteStore) GetBlueprintID(role string) (string, error) {
	return s.lookup(role, "blueprint_id")
}

func (s *SQLiteStore) SetBlueprintID(role, id string) error {
	return s.upsert(role, "blueprint_id", id)
}

// column names are fixed by the callers above, never user input.
func (s *SQLiteStore) lookup(role, column string) (string, error) {
	var value string
	err := s.db.QueryRow(
		fmt.Sprintf(`SELECT %s FROM pointers WHERE role = ?`, column), role,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading pointer for role %s: %w", role, err)
	}
	return value, nil
}

func (s *SQLiteStore) upsert(role, column, value string) error {
	query := fmt.Sprintf(
		`INSERT INTO pointers (role, %[1]s, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(role) DO UPDATE SET %[1]s = excluded.%[1]s, updated_at = excluded.updated_at`,
		column,
	)
	if _, err := s.db.Exec(query, role, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("saving pointer for role %s: %w", role, err)
	}
	return nil
}
