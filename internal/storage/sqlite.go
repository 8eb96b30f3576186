package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/crimson-sun/ember/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS offline_queue (
	key        TEXT PRIMARY KEY,
	items      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLite stores each key's queue as one row, replaced wholesale on Save.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database at dbPath.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite storage: %w: %w", ErrUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite storage: open: %w: %w", ErrUnavailable, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite storage: schema: %w: %w", ErrUnavailable, err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(key string) ([]model.CachedItem, error) {
	var raw string
	err := s.db.QueryRow(`SELECT items FROM offline_queue WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite storage: load %s: %w", key, err)
	}
	var items []model.CachedItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("sqlite storage: decode %s: %w", key, err)
	}
	return items, nil
}

func (s *SQLite) Save(key string, items []model.CachedItem) error {
	if items == nil {
		items = []model.CachedItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("sqlite storage: marshal: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO offline_queue (key, items, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET items = excluded.items, updated_at = excluded.updated_at`,
		key, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite storage: save %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
