package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/ember/internal/model"
)

// File stores each key as a JSON array in its own file under dir. Writes go
// to a temp file that is renamed into place, so the on-disk queue is always
// a complete document.
type File struct {
	mu  sync.Mutex
	dir string
}

// NewFile creates a File store rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file storage: %w: %w", ErrUnavailable, err)
	}
	return &File{dir: dir}, nil
}

// Load returns the stored queue for key, or nil if nothing was saved.
func (f *File) Load(key string) ([]model.CachedItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file storage: read %s: %w", key, err)
	}
	var items []model.CachedItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("file storage: decode %s: %w", key, err)
	}
	return items, nil
}

// Save replaces the stored queue for key.
func (f *File) Save(key string, items []model.CachedItem) error {
	if items == nil {
		items = []model.CachedItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("file storage: marshal: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("file storage: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("file storage: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file storage: close: %w", err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("file storage: rename: %w", err)
	}
	return nil
}

func (f *File) Close() error {
	return nil
}

func (f *File) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, key)
	return filepath.Join(f.dir, safe+".json")
}
