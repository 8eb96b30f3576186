// Package storage persists the offline store's queue under a string key.
package storage

import (
	"errors"
	"slices"
	"sync"

	"github.com/crimson-sun/ember/internal/model"
)

// Storage persists one ordered list of cached items per key. Save always
// replaces the whole list so a reader never sees a partial queue.
type Storage interface {
	Load(key string) ([]model.CachedItem, error)
	Save(key string, items []model.CachedItem) error
	Close() error
}

// ErrUnavailable reports that the backing store can't be used at all.
var ErrUnavailable = errors.New("storage unavailable")

// Memory keeps queues in process memory. Useful for tests and as the
// fallback when durable storage is missing.
type Memory struct {
	mu    sync.Mutex
	data  map[string][]model.CachedItem
	saves int
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]model.CachedItem)}
}

func (m *Memory) Load(key string) ([]model.CachedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.data[key]), nil
}

func (m *Memory) Save(key string, items []model.CachedItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = slices.Clone(items)
	m.saves++
	return nil
}

// Saves returns how many times Save has been called.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *Memory) Close() error {
	return nil
}
